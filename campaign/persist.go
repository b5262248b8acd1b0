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
	"context"
	"time"
)

// Transferrer moves funds out of campaign custody. It is called at most once
// per successful withdraw or refund, without any ledger lock held.
type Transferrer interface {
	Transfer(ctx context.Context, to Identity, amount uint64) error
}

// Record is the persisted form of a campaign's scalar fields
type Record struct {
	Deadline    time.Time
	CreatedAt   time.Time
	Owner       Identity
	Name        string
	ID          ID
	Goal        uint64
	TotalRaised uint64
	Withdrawn   uint64
	State       State
}

// Contribution is a contributor's cumulative balance and its position in
// first-contribution order
type Contribution struct {
	Contributor Identity
	Amount      uint64
	Position    int
}

// Change is a single committed ledger mutation. Record always carries the
// complete post-mutation record. Contribution is set when a contributor
// balance changed, and NewContributor when that contributor was appended to
// the contributor list by this change.
type Change struct {
	Contribution   *Contribution
	Record         Record
	NewContributor bool
}

// Persister durably records ledger changes. A returned error rejects the
// operation and leaves the ledger untouched.
type Persister interface {
	PersistCampaign(ctx context.Context, change Change) error
}
