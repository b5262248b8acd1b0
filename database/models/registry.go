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

// RegistryEntry places a campaign in the global and per-creator creation
// order
type RegistryEntry struct {
	Creator         string `gorm:"uniqueIndex:idx_registry_creator;size:255;not null"`
	ID              uint   `gorm:"primarykey"`
	CampaignID      uint64 `gorm:"uniqueIndex;not null"`
	Position        int    `gorm:"uniqueIndex;not null"`
	CreatorPosition int    `gorm:"uniqueIndex:idx_registry_creator;not null"`
}

func (RegistryEntry) TableName() string {
	return "registry_entry"
}
