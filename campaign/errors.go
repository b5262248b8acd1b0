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
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("not owner")
	ErrInvalidState     = errors.New("invalid state")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrExpired          = errors.New("expired")
	ErrInvalidAmount    = errors.New("contribution must be positive")
	ErrNotEnded         = errors.New("campaign not ended")
	ErrNoContribution   = errors.New("no contribution")
	ErrTransferFailed   = errors.New("transfer failed")

	// ErrIllegalTransition is returned when a mutation would move the
	// campaign along an edge outside its state graph
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrInconsistentRecord is returned when restoring a ledger from stored
	// data that violates the ledger invariants
	ErrInconsistentRecord = errors.New("inconsistent campaign record")
)

// StateError is returned when an operation is not permitted in the current
// campaign state. It matches ErrInvalidState with errors.Is.
type StateError struct {
	Op   string
	Have State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (state=%s)", e.Op, ErrInvalidState, e.Have)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// ParameterError describes a rejected creation parameter. It matches
// ErrInvalidParameter with errors.Is.
type ParameterError struct {
	Field  string
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidParameter, e.Field, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// TransferError wraps a failure reported by the transfer primitive. It
// matches both ErrTransferFailed and the underlying cause.
type TransferError struct {
	Err    error
	To     Identity
	Amount uint64
}

func (e *TransferError) Error() string {
	return fmt.Sprintf(
		"%s: to=%s amount=%d: %v",
		ErrTransferFailed,
		e.To,
		e.Amount,
		e.Err,
	)
}

func (e *TransferError) Unwrap() []error {
	return []error{ErrTransferFailed, e.Err}
}
