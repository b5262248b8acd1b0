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

package postgres

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/driver/postgres"

	"github.com/blinklabs-io/crowdfund/database/plugin/metadata/internal/gormstore"
)

// MetadataStorePostgres stores campaign metadata in Postgres.
type MetadataStorePostgres struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	server       gormstore.Server
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...PostgresOptionFunc) (*MetadataStorePostgres, error) {
	db := &MetadataStorePostgres{}
	for _, opt := range opts {
		opt(db)
	}
	db.server.Fill(defaultServer())
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	// Note: Database initialization happens in Start()
	return db, nil
}

// SetLogger implements the plugin.Instrumentable interface
func (d *MetadataStorePostgres) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumentable interface
func (d *MetadataStorePostgres) SetPromRegistry(reg prometheus.Registerer) {
	d.promRegistry = reg
}

// connString returns the configured DSN, or a keyword/value string built
// from the server settings
func (d *MetadataStorePostgres) connString() string {
	if dsn := strings.TrimSpace(d.server.DSN); dsn != "" {
		return dsn
	}
	s := d.server
	parts := []string{
		"host=" + s.Host,
		"user=" + s.User,
		"password=" + s.Password,
		"dbname=" + s.Database,
		"port=" + strconv.FormatUint(s.Port, 10),
		"sslmode=" + s.SSLMode,
	}
	if s.TimeZone != "" {
		parts = append(parts, "TimeZone="+s.TimeZone)
	}
	return strings.Join(parts, " ")
}

// Start implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Start() error {
	metadataDb, err := d.server.Connect(postgres.Open(d.connString()))
	if err != nil {
		return err
	}
	d.logger.Info(
		"connected to postgres metadata store",
		"addr", d.server.Addr(),
		"database", d.server.Database,
	)
	store, err := gormstore.New(metadataDb, d.logger)
	if err != nil {
		if sqlDB, dbErr := metadataDb.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	d.Store = store
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStorePostgres) Stop() error {
	return d.Close()
}

// Close closes the connection pool. It is a no-op before Start.
func (d *MetadataStorePostgres) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
