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

import (
	"errors"

	"github.com/blinklabs-io/crowdfund/database/types"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// Campaign is the current record of a campaign ledger. The id is assigned
// by the registry, not by the database.
type Campaign struct {
	Owner       string       `gorm:"index;size:255;not null"`
	Name        string       `gorm:"size:512;not null"`
	ID          uint64       `gorm:"primaryKey;autoIncrement:false"`
	Deadline    int64        `gorm:"not null"`
	CreatedUnix int64        `gorm:"not null"`
	Goal        types.Uint64 `gorm:"not null"`
	TotalRaised types.Uint64 `gorm:"not null"`
	Withdrawn   types.Uint64 `gorm:"not null"`
	State       uint8        `gorm:"index;not null"`
}

func (Campaign) TableName() string {
	return "campaign"
}

// Contribution is an append-only history of cumulative contributor
// balances. The row with the highest id for a contributor is current.
type Contribution struct {
	Identity   string       `gorm:"index:idx_contribution_identity;size:255;not null"`
	ID         uint         `gorm:"primarykey"`
	CampaignID uint64       `gorm:"index:idx_contribution_identity;not null"`
	Cumulative types.Uint64 `gorm:"not null"`
}

func (Contribution) TableName() string {
	return "contribution"
}

// Contributor is the append-only list of distinct contributors of a
// campaign in order of first contribution
type Contributor struct {
	Identity   string `gorm:"uniqueIndex:idx_contributor_identity;size:255;not null"`
	ID         uint   `gorm:"primarykey"`
	CampaignID uint64 `gorm:"uniqueIndex:idx_contributor_identity;uniqueIndex:idx_contributor_position;not null"`
	Position   int    `gorm:"uniqueIndex:idx_contributor_position;not null"`
}

func (Contributor) TableName() string {
	return "contributor"
}
