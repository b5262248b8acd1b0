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

// Package gormstore implements the metadata store queries shared by every
// gorm-backed metadata plugin.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/blinklabs-io/crowdfund/database/models"
)

type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New wraps an open gorm handle, enabling tracing and migrating the schema
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	// Configure tracing for GORM
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	for _, model := range models.MigrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.AutoMigrate(model); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DB returns the underlying gorm handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return sqlDB.Close()
}

// CreateCampaign inserts a campaign and its registry entry in one
// transaction
func (s *Store) CreateCampaign(
	ctx context.Context,
	c *models.Campaign,
	entry *models.RegistryEntry,
) error {
	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(c); result.Error != nil {
			return result.Error
		}
		if result := txn.Create(entry); result.Error != nil {
			return result.Error
		}
		return nil
	})
}

// SaveCampaign updates a campaign record and appends the optional
// contribution and contributor rows in one transaction
func (s *Store) SaveCampaign(
	ctx context.Context,
	c *models.Campaign,
	contribution *models.Contribution,
	contributor *models.Contributor,
) error {
	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		result := txn.Model(&models.Campaign{}).
			Where("id = ?", c.ID).
			Updates(map[string]any{
				"state":        c.State,
				"total_raised": c.TotalRaised,
				"withdrawn":    c.Withdrawn,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %d", models.ErrCampaignNotFound, c.ID)
		}
		if contributor != nil {
			if result := txn.Create(contributor); result.Error != nil {
				return result.Error
			}
		}
		if contribution != nil {
			if result := txn.Create(contribution); result.Error != nil {
				return result.Error
			}
		}
		return nil
	})
}

func (s *Store) GetCampaign(ctx context.Context, id uint64) (*models.Campaign, error) {
	ret := &models.Campaign{}
	result := s.db.WithContext(ctx).Where("id = ?", id).First(ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", models.ErrCampaignNotFound, id)
		}
		return nil, result.Error
	}
	return ret, nil
}

// GetCampaigns returns every campaign keyed by id
func (s *Store) GetCampaigns(ctx context.Context) (map[uint64]models.Campaign, error) {
	var rows []models.Campaign
	if result := s.db.WithContext(ctx).Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make(map[uint64]models.Campaign, len(rows))
	for _, row := range rows {
		ret[row.ID] = row
	}
	return ret, nil
}

// GetRegistryEntries returns the registry in global creation order
func (s *Store) GetRegistryEntries(ctx context.Context) ([]models.RegistryEntry, error) {
	var ret []models.RegistryEntry
	result := s.db.WithContext(ctx).Order("position").Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetContributors returns the contributor list of a campaign in order
func (s *Store) GetContributors(
	ctx context.Context,
	campaignID uint64,
) ([]models.Contributor, error) {
	var ret []models.Contributor
	result := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("position").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// GetContributions returns the current cumulative balance of each
// contributor of a campaign
func (s *Store) GetContributions(
	ctx context.Context,
	campaignID uint64,
) (map[string]uint64, error) {
	var rows []models.Contribution
	result := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	ret := make(map[string]uint64)
	for _, row := range rows {
		ret[row.Identity] = uint64(row.Cumulative)
	}
	return ret, nil
}

// GetContributionHistory returns every cumulative balance recorded for a
// campaign, oldest first
func (s *Store) GetContributionHistory(
	ctx context.Context,
	campaignID uint64,
) ([]models.Contribution, error) {
	var ret []models.Contribution
	result := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

func (s *Store) AddPayout(ctx context.Context, payout *models.Payout) error {
	return s.db.WithContext(ctx).Create(payout).Error
}

// GetPayouts returns payouts to recipient, or all payouts when recipient
// is empty, oldest first
func (s *Store) GetPayouts(
	ctx context.Context,
	recipient string,
) ([]models.Payout, error) {
	var ret []models.Payout
	query := s.db.WithContext(ctx).Order("id")
	if recipient != "" {
		query = query.Where("recipient = ?", recipient)
	}
	if result := query.Find(&ret); result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}
