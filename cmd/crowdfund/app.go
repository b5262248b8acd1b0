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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/database"
	"github.com/blinklabs-io/crowdfund/event"
	"github.com/blinklabs-io/crowdfund/internal/config"
	"github.com/blinklabs-io/crowdfund/registry"
	"github.com/blinklabs-io/crowdfund/transfer"
)

// app holds the components backing a single CLI invocation
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *database.Database
	bus      *event.EventBus
	journal  *database.Journal
	registry *registry.Registry
}

func openApp(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*app, error) {
	db, err := database.New(&database.Config{
		DataDir:        cfg.DatabasePath,
		Logger:         logger,
		PromRegistry:   promRegistry,
		BlobPlugin:     cfg.BlobPlugin,
		MetadataPlugin: cfg.MetadataPlugin,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	bus := event.NewEventBus(promRegistry, logger)
	journal := db.RegisterJournal(bus)
	reg, err := registry.New(registry.Config{
		Transferrer: transfer.NewRecorder(
			db,
			transfer.WithRecorderLogger(logger),
		),
		Store:         db,
		EventBus:      bus,
		PromRegistry:  promRegistry,
		Logger:        logger,
		MaxNameLength: cfg.MaxNameLength,
	})
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if err := reg.Load(ctx); err != nil {
		return nil, errors.Join(
			fmt.Errorf("loading campaigns: %w", err),
			db.Close(),
		)
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		bus:      bus,
		journal:  journal,
		registry: reg,
	}, nil
}

func (a *app) Close() error {
	a.journal.Stop()
	a.bus.Stop()
	return a.db.Close()
}

// caller returns the identity commands act as
func (a *app) caller() (campaign.Identity, error) {
	if a.cfg.Identity == "" {
		return "", errors.New(
			"no identity: use --as or set identity in the config file",
		)
	}
	return campaign.Identity(a.cfg.Identity), nil
}

func (a *app) ledger(arg string) (*campaign.Ledger, error) {
	id, err := campaign.ParseID(arg)
	if err != nil {
		return nil, err
	}
	return a.registry.Campaign(id)
}

// runWithApp opens the application for the duration of fn, inside a span
// named after the command
func runWithApp(
	cmd *cobra.Command,
	fn func(ctx context.Context, a *app) error,
) (err error) {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logger := slog.Default()
	shutdown, err := setupTracing(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if shutdownErr := shutdown(context.Background()); shutdownErr != nil {
			logger.Warn("failed to flush traces", "error", shutdownErr)
		}
	}()
	ctx, span := otel.Tracer("github.com/blinklabs-io/crowdfund/cmd/crowdfund").
		Start(cmd.Context(), cmd.CommandPath())
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	promRegistry := prometheus.NewRegistry()
	a, err := openApp(ctx, cfg, logger, promRegistry)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	if closeErr := a.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("closing database: %w", closeErr))
	}
	// The operation itself is committed, but its events are not all in the
	// journal
	if journalErr := a.journal.Err(); journalErr != nil {
		err = errors.Join(err, journalErr)
	}
	if globalFlags.metricsFile != "" {
		if writeErr := prometheus.WriteToTextfile(globalFlags.metricsFile, promRegistry); writeErr != nil {
			err = errors.Join(err, fmt.Errorf("writing metrics: %w", writeErr))
		}
	}
	return err
}
