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

// Package database combines a metadata store holding campaign state with a
// blob store holding the event journal.
package database

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/blinklabs-io/crowdfund/database/plugin"
	"github.com/blinklabs-io/crowdfund/database/plugin/blob"
	"github.com/blinklabs-io/crowdfund/database/plugin/metadata"
)

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

var tracer = otel.Tracer("github.com/blinklabs-io/crowdfund/database")

type Config struct {
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	BlobPlugin     string
	MetadataPlugin string
	// DataDir is handed to both plugins. Empty means in-memory storage.
	DataDir string
}

type Database struct {
	config   *Config
	logger   *slog.Logger
	blob     blob.BlobStore
	metadata metadata.MetadataStore
}

// Blob returns the underling blob store instance
func (d *Database) Blob() blob.BlobStore {
	return d.blob
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.config.DataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Metadata returns the underlying metadata store instance
func (d *Database) Metadata() metadata.MetadataStore {
	return d.metadata
}

// Close cleans up the database connections
func (d *Database) Close() error {
	var err error
	// Close metadata
	if d.metadata != nil {
		err = errors.Join(err, d.metadata.Close())
	}
	// Close blob
	if d.blob != nil {
		err = errors.Join(err, d.blob.Close())
	}
	return err
}

// New starts the configured metadata and blob plugins
func New(config *Config) (*Database, error) {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if config.BlobPlugin == "" {
		config.BlobPlugin = DefaultBlobPlugin
	}
	if config.MetadataPlugin == "" {
		config.MetadataPlugin = DefaultMetadataPlugin
	}
	// Point both plugins at our data dir. Plugins without a data-dir
	// option ignore it.
	if err := plugin.SetPluginOption(
		plugin.PluginTypeMetadata,
		config.MetadataPlugin,
		"data-dir",
		config.DataDir,
	); err != nil {
		return nil, err
	}
	if err := plugin.SetPluginOption(
		plugin.PluginTypeBlob,
		config.BlobPlugin,
		"data-dir",
		config.DataDir,
	); err != nil {
		return nil, err
	}
	db := &Database{
		config: config,
		logger: config.Logger.With("component", "database"),
	}
	metadataDb, err := metadata.New(
		config.MetadataPlugin,
		db.logger,
		config.PromRegistry,
	)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	db.metadata = metadataDb
	blobDb, err := blob.New(
		config.BlobPlugin,
		db.logger,
		config.PromRegistry,
	)
	if err != nil {
		_ = metadataDb.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	db.blob = blobDb
	db.logger.Debug(
		"database opened",
		"metadata_plugin", config.MetadataPlugin,
		"blob_plugin", config.BlobPlugin,
		"data_dir", config.DataDir,
	)
	return db, nil
}
