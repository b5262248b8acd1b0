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

package database

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/database/models"
	"github.com/blinklabs-io/crowdfund/database/types"
	"github.com/blinklabs-io/crowdfund/registry"
)

func campaignModel(rec campaign.Record) *models.Campaign {
	return &models.Campaign{
		ID:          uint64(rec.ID),
		Owner:       string(rec.Owner),
		Name:        rec.Name,
		Deadline:    rec.Deadline.Unix(),
		CreatedUnix: rec.CreatedAt.Unix(),
		Goal:        types.Uint64(rec.Goal),
		TotalRaised: types.Uint64(rec.TotalRaised),
		Withdrawn:   types.Uint64(rec.Withdrawn),
		State:       uint8(rec.State),
	}
}

func campaignRecord(m models.Campaign) campaign.Record {
	return campaign.Record{
		ID:          campaign.ID(m.ID),
		Owner:       campaign.Identity(m.Owner),
		Name:        m.Name,
		Deadline:    time.Unix(m.Deadline, 0).UTC(),
		CreatedAt:   time.Unix(m.CreatedUnix, 0).UTC(),
		Goal:        uint64(m.Goal),
		TotalRaised: uint64(m.TotalRaised),
		Withdrawn:   uint64(m.Withdrawn),
		State:       campaign.State(m.State),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// PersistCampaign implements campaign.Persister
func (d *Database) PersistCampaign(
	ctx context.Context,
	change campaign.Change,
) (err error) {
	ctx, span := tracer.Start(
		ctx,
		"PersistCampaign",
		trace.WithAttributes(
			attribute.Int64("campaign.id", int64(change.Record.ID)), //nolint:gosec // ids are small
			attribute.String("campaign.state", change.Record.State.String()),
		),
	)
	defer func() { endSpan(span, err) }()
	var contribution *models.Contribution
	var contributor *models.Contributor
	if c := change.Contribution; c != nil {
		contribution = &models.Contribution{
			Identity:   string(c.Contributor),
			CampaignID: uint64(change.Record.ID),
			Cumulative: types.Uint64(c.Amount),
		}
		if change.NewContributor {
			contributor = &models.Contributor{
				Identity:   string(c.Contributor),
				CampaignID: uint64(change.Record.ID),
				Position:   c.Position,
			}
		}
	}
	if err := d.metadata.SaveCampaign(
		ctx,
		campaignModel(change.Record),
		contribution,
		contributor,
	); err != nil {
		return fmt.Errorf("persist campaign %s: %w", change.Record.ID, err)
	}
	return nil
}

// CreateCampaign implements registry.Store
func (d *Database) CreateCampaign(
	ctx context.Context,
	entry registry.Entry,
) (err error) {
	ctx, span := tracer.Start(
		ctx,
		"CreateCampaign",
		trace.WithAttributes(
			attribute.Int64("campaign.id", int64(entry.Record.ID)), //nolint:gosec // ids are small
			attribute.Int("registry.index", entry.GlobalIndex),
		),
	)
	defer func() { endSpan(span, err) }()
	if err := d.metadata.CreateCampaign(
		ctx,
		campaignModel(entry.Record),
		&models.RegistryEntry{
			Creator:         string(entry.Record.Owner),
			CampaignID:      uint64(entry.Record.ID),
			Position:        entry.GlobalIndex,
			CreatorPosition: entry.CreatorIndex,
		},
	); err != nil {
		return fmt.Errorf("create campaign %s: %w", entry.Record.ID, err)
	}
	return nil
}

// LoadCampaigns implements registry.Store
func (d *Database) LoadCampaigns(
	ctx context.Context,
) (ret []registry.Stored, err error) {
	ctx, span := tracer.Start(ctx, "LoadCampaigns")
	defer func() { endSpan(span, err) }()
	entries, err := d.metadata.GetRegistryEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	campaigns, err := d.metadata.GetCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load campaigns: %w", err)
	}
	ret = make([]registry.Stored, 0, len(entries))
	for _, entry := range entries {
		m, ok := campaigns[entry.CampaignID]
		if !ok {
			return nil, fmt.Errorf(
				"%w: registry entry %d",
				models.ErrCampaignNotFound,
				entry.CampaignID,
			)
		}
		contributions, err := d.contributions(ctx, entry.CampaignID)
		if err != nil {
			return nil, err
		}
		ret = append(ret, registry.Stored{
			Entry: registry.Entry{
				Record:       campaignRecord(m),
				GlobalIndex:  entry.Position,
				CreatorIndex: entry.CreatorPosition,
			},
			Contributions: contributions,
		})
	}
	span.SetAttributes(attribute.Int("campaign.count", len(ret)))
	return ret, nil
}

// contributions returns the contributor balances of a campaign in
// first-contribution order
func (d *Database) contributions(
	ctx context.Context,
	campaignID uint64,
) ([]campaign.Contribution, error) {
	contributors, err := d.metadata.GetContributors(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load contributors of %d: %w", campaignID, err)
	}
	balances, err := d.metadata.GetContributions(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load contributions of %d: %w", campaignID, err)
	}
	ret := make([]campaign.Contribution, 0, len(contributors))
	for _, c := range contributors {
		ret = append(ret, campaign.Contribution{
			Contributor: campaign.Identity(c.Identity),
			Amount:      balances[c.Identity],
			Position:    c.Position,
		})
	}
	return ret, nil
}

// ContributionHistory returns every cumulative balance recorded for a
// campaign, oldest first
func (d *Database) ContributionHistory(
	ctx context.Context,
	id campaign.ID,
) ([]campaign.Contribution, error) {
	rows, err := d.metadata.GetContributionHistory(ctx, uint64(id))
	if err != nil {
		return nil, err
	}
	positions := make(map[string]int)
	contributors, err := d.metadata.GetContributors(ctx, uint64(id))
	if err != nil {
		return nil, err
	}
	for _, c := range contributors {
		positions[c.Identity] = c.Position
	}
	ret := make([]campaign.Contribution, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, campaign.Contribution{
			Contributor: campaign.Identity(row.Identity),
			Amount:      uint64(row.Cumulative),
			Position:    positions[row.Identity],
		})
	}
	return ret, nil
}
