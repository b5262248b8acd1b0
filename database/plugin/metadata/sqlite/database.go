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

package sqlite

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/crowdfund/database/plugin/metadata/internal/gormstore"
)

const (
	DefaultMaxConnections = 5
	DefaultBusyTimeout    = 5000 // milliseconds
	DefaultVacuumInterval = 24   // hours
)

// settings are the tunables shared by the plugin options and the store
type settings struct {
	dataDir        string
	maxConnections int
	busyTimeout    uint64
	vacuumInterval uint64
}

func defaultSettings() settings {
	return settings{
		dataDir:        ".crowdfund",
		maxConnections: DefaultMaxConnections,
		busyTimeout:    DefaultBusyTimeout,
		vacuumInterval: DefaultVacuumInterval,
	}
}

// memoryDbCounter gives every in-memory store its own shared-cache name
var memoryDbCounter atomic.Uint64

// MetadataStoreSqlite is a SQLite-based implementation of the metadata store.
// It holds campaign records, contributor lists, the registry and payouts.
type MetadataStoreSqlite struct {
	*gormstore.Store
	settings
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	timerVacuum  *time.Timer
	timerMutex   sync.Mutex
	closed       bool
	vacuumWG     sync.WaitGroup
}

// New creates and starts a SQLite metadata store. Uses an in-memory database
// if dataDir is empty.
func New(
	dataDir string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (*MetadataStoreSqlite, error) {
	db, err := NewWithOptions(
		WithDataDir(dataDir),
		WithLogger(logger),
		WithPromRegistry(promRegistry),
	)
	if err != nil {
		return nil, err
	}
	if err := db.Start(); err != nil {
		return nil, err
	}
	return db, nil
}

// NewWithOptions creates an unstarted SQLite metadata store
func NewWithOptions(opts ...SqliteOptionFunc) (*MetadataStoreSqlite, error) {
	db := &MetadataStoreSqlite{}
	for _, opt := range opts {
		opt(db)
	}
	if db.maxConnections == 0 {
		db.maxConnections = DefaultMaxConnections
	}
	if db.busyTimeout == 0 {
		db.busyTimeout = DefaultBusyTimeout
	}
	if db.maxConnections < 0 {
		return nil, fmt.Errorf(
			"invalid max connections: %d",
			db.maxConnections,
		)
	}
	if db.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		db.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return db, nil
}

// SetLogger implements the plugin.Instrumentable interface
func (d *MetadataStoreSqlite) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumentable interface
func (d *MetadataStoreSqlite) SetPromRegistry(reg prometheus.Registerer) {
	d.promRegistry = reg
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Start() error {
	var dsn string
	maxConns := d.maxConnections
	if d.dataDir == "" {
		// Use in-memory database when no data directory is specified, useful for testing
		// cache=shared lets the pool's connections see the same database
		dsn = fmt.Sprintf(
			"file:crowdfund-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)",
			memoryDbCounter.Add(1),
		)
		maxConns = 1
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to read data dir: %w", err)
			}
			// Create data directory
			if err := os.MkdirAll(d.dataDir, fs.ModePerm); err != nil {
				return fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		metadataDbPath := filepath.Join(
			d.dataDir,
			"metadata.sqlite",
		)
		// WAL journal mode, wait on locks instead of failing, increase cache size to 50MB (from 2MB)
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=cache_size(-50000)&_pragma=foreign_keys(1)",
			metadataDbPath,
			d.busyTimeout,
		)
	}
	metadataDb, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return err
	}
	sqlDB, err := metadataDb.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(maxConns)
	store, err := gormstore.New(metadataDb, d.logger)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	d.Store = store
	d.timerMutex.Lock()
	d.closed = false
	d.timerMutex.Unlock()
	// Schedule periodic database vacuum to free unused space
	d.scheduleVacuum()
	d.logger.Debug(
		"opened sqlite metadata store",
		"component", "database",
		"data_dir", d.dataDir,
	)
	return nil
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreSqlite) Stop() error {
	return d.Close()
}

func (d *MetadataStoreSqlite) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	// Track this vacuum operation while we know the store is open
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()

	if result := d.DB().Exec("VACUUM"); result.Error != nil {
		return result.Error
	}
	return nil
}

// scheduleVacuum schedules the next vacuum. A zero interval or an
// in-memory database disables vacuuming.
func (d *MetadataStoreSqlite) scheduleVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed || d.vacuumInterval == 0 || d.dataDir == "" {
		return
	}

	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	interval := time.Duration(min(d.vacuumInterval, 1<<20)) * time.Hour //nolint:gosec // bounded
	f := func() {
		d.logger.Debug(
			"running vacuum on sqlite metadata database",
		)
		// schedule next run
		defer d.scheduleVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in metadata store",
				"component", "database",
				"error", err,
			)
		}
	}
	d.timerVacuum = time.AfterFunc(interval, f)
}

// Close shuts down the database connection and stops background processes.
func (d *MetadataStoreSqlite) Close() error {
	d.timerMutex.Lock()
	if d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()

	// Wait for any in-flight vacuum operations to complete
	d.vacuumWG.Wait()

	// Guard against nil store (e.g., if Start() failed or was never called)
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
