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

import "github.com/blinklabs-io/crowdfund/event"

const (
	StateChangedEventType event.EventType = "campaign.state_changed"
	ContributionEventType event.EventType = "campaign.contribution"
	WithdrawalEventType   event.EventType = "campaign.withdrawal"
	RefundEventType       event.EventType = "campaign.refund"
)

// EventTypes lists every event type published by a Ledger
var EventTypes = []event.EventType{
	StateChangedEventType,
	ContributionEventType,
	WithdrawalEventType,
	RefundEventType,
}

// StateChangedEvent is emitted on every state transition
type StateChangedEvent struct {
	Campaign ID
	Old      State
	New      State
}

func (e StateChangedEvent) CampaignID() ID { return e.Campaign }

// ContributionEvent is emitted on every accepted contribution
type ContributionEvent struct {
	Contributor Identity
	Campaign    ID
	Amount      uint64
}

func (e ContributionEvent) CampaignID() ID { return e.Campaign }

// WithdrawalEvent is emitted once the owner payout has been transferred
type WithdrawalEvent struct {
	Owner    Identity
	Campaign ID
	Amount   uint64
}

func (e WithdrawalEvent) CampaignID() ID { return e.Campaign }

// RefundEvent is emitted once a refund has been transferred
type RefundEvent struct {
	Contributor Identity
	Campaign    ID
	Amount      uint64
}

func (e RefundEvent) CampaignID() ID { return e.Campaign }
