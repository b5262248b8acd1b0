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

package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/blinklabs-io/crowdfund/database/models"
	"github.com/blinklabs-io/crowdfund/database/plugin"
	_ "github.com/blinklabs-io/crowdfund/database/plugin/metadata/mysql"
	_ "github.com/blinklabs-io/crowdfund/database/plugin/metadata/postgres"
	_ "github.com/blinklabs-io/crowdfund/database/plugin/metadata/sqlite"
)

type MetadataStore interface {
	plugin.Plugin

	// Database
	Close() error
	DB() *gorm.DB

	// Campaigns
	CreateCampaign(context.Context, *models.Campaign, *models.RegistryEntry) error
	SaveCampaign(
		context.Context,
		*models.Campaign,
		*models.Contribution, // optional
		*models.Contributor, // optional
	) error
	GetCampaign(context.Context, uint64) (*models.Campaign, error)
	GetCampaigns(context.Context) (map[uint64]models.Campaign, error)
	GetRegistryEntries(context.Context) ([]models.RegistryEntry, error)
	GetContributors(context.Context, uint64) ([]models.Contributor, error)
	GetContributions(context.Context, uint64) (map[string]uint64, error)
	GetContributionHistory(context.Context, uint64) ([]models.Contribution, error)

	// Payouts
	AddPayout(context.Context, *models.Payout) error
	GetPayouts(
		context.Context,
		string, // recipient, empty for all
	) ([]models.Payout, error)
}

// New starts the named metadata plugin
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		logger,
		promRegistry,
	)
	if err != nil {
		return nil, err
	}
	store, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"metadata plugin '%s' does not implement MetadataStore",
			pluginName,
		)
	}
	return store, nil
}
