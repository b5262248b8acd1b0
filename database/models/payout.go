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

package models

import "github.com/blinklabs-io/crowdfund/database/types"

// Payout is a completed transfer out of campaign custody
type Payout struct {
	Recipient string       `gorm:"index;size:255;not null"`
	ID        uint         `gorm:"primarykey"`
	Time      int64        `gorm:"not null"`
	Amount    types.Uint64 `gorm:"not null"`
}

func (Payout) TableName() string {
	return "payout"
}
