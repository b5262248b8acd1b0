// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package campaign

import (
	"errors"
	"strconv"
)

// State is the lifecycle stage of a campaign. The numeric values are stable
// and are what presentation layers map to labels.
type State uint8

const (
	StatePreparing State = iota
	StateActive
	StateSuccess
	StateFailed
	StateClosed
)

var stateNames = [...]string{
	StatePreparing: "Preparing",
	StateActive:    "Active",
	StateSuccess:   "Success",
	StateFailed:    "Failed",
	StateClosed:    "Closed",
}

func (s State) String() string {
	if !s.Valid() {
		return "Unknown(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// Valid returns true if the state is one of the known lifecycle stages
func (s State) Valid() bool {
	return s <= StateClosed
}

// CanTransition reports whether to is a direct successor of s in the
// campaign state graph:
//
//	Preparing -> Active -> {Success, Failed}
//	Success -> Closed
func (s State) CanTransition(to State) bool {
	switch s {
	case StatePreparing:
		return to == StateActive
	case StateActive:
		return to == StateSuccess || to == StateFailed
	case StateSuccess:
		return to == StateClosed
	default:
		return false
	}
}

// ParseState accepts either the numeric code or the label of a state
func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if s == name {
			return State(i), nil //nolint:gosec // bounded by stateNames
		}
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || !State(v).Valid() {
		return 0, errors.New("unknown campaign state: " + s)
	}
	return State(v), nil
}
