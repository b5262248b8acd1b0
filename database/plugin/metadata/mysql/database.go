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

package mysql

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	gormmysql "gorm.io/driver/mysql"

	"github.com/blinklabs-io/crowdfund/database/plugin/metadata/internal/gormstore"
)

// errUnknownDatabase is the server error number for a missing schema
const errUnknownDatabase = 1049

// MetadataStoreMysql stores campaign metadata in MySQL.
type MetadataStoreMysql struct {
	*gormstore.Store
	promRegistry prometheus.Registerer
	logger       *slog.Logger
	server       gormstore.Server
}

// NewWithOptions creates a new database with options
func NewWithOptions(opts ...MysqlOptionFunc) (*MetadataStoreMysql, error) {
	db := &MetadataStoreMysql{}
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
func (d *MetadataStoreMysql) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumentable interface
func (d *MetadataStoreMysql) SetPromRegistry(reg prometheus.Registerer) {
	d.promRegistry = reg
}

// connString returns the DSN to connect with and the database name it
// selects
func (d *MetadataStoreMysql) connString() (string, string) {
	s := d.server
	if dsn := strings.TrimSpace(s.DSN); dsn != "" {
		if parsedDB, ok := parseMysqlDatabaseFromDSN(dsn); ok {
			return dsn, parsedDB
		}
		return dsn, s.Database
	}
	cfg := mysql.NewConfig()
	cfg.User = s.User
	cfg.Passwd = s.Password
	cfg.Net = "tcp"
	cfg.Addr = s.Addr()
	cfg.DBName = s.Database
	cfg.ParseTime = true
	cfg.AllowNativePasswords = true
	cfg.Loc = s.Location()
	if s.SSLMode != "" {
		cfg.TLSConfig = s.SSLMode
	}
	return cfg.FormatDSN(), s.Database
}

// Start implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Start() error {
	dsn, dbName := d.connString()
	metadataDb, err := d.server.Connect(gormmysql.Open(dsn))
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == errUnknownDatabase {
			created, createErr := d.ensureDatabaseExists(dsn, dbName)
			if createErr != nil {
				return errors.Join(err, createErr)
			}
			if created {
				metadataDb, err = d.server.Connect(gormmysql.Open(dsn))
			}
		}
		if err != nil {
			return err
		}
	}
	d.logger.Info(
		"connected to mysql metadata store",
		"addr", d.server.Addr(),
		"database", dbName,
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

func (d *MetadataStoreMysql) ensureDatabaseExists(
	dsn string,
	dbName string,
) (bool, error) {
	if dbName == "" {
		return false, nil
	}
	adminDsn, ok := stripDatabaseFromDSN(dsn)
	if !ok {
		return false, nil
	}
	adminDb, err := d.server.Connect(gormmysql.Open(adminDsn))
	if err != nil {
		return false, err
	}
	sqlAdminDb, err := adminDb.DB()
	if err != nil {
		return false, err
	}
	defer sqlAdminDb.Close()
	d.logger.Info(
		"creating mysql database",
		"database", dbName,
	)
	if result := adminDb.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", dbName)); result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

func parseMysqlDatabaseFromDSN(dsn string) (string, bool) {
	base := dsn
	if idx := strings.Index(base, "?"); idx >= 0 {
		base = base[:idx]
	}
	slash := strings.LastIndex(base, "/")
	if slash < 0 || slash == len(base)-1 {
		return "", false
	}
	return base[slash+1:], true
}

func stripDatabaseFromDSN(dsn string) (string, bool) {
	base := dsn
	params := ""
	if idx := strings.Index(dsn, "?"); idx >= 0 {
		base = dsn[:idx]
		params = dsn[idx+1:]
	}
	slash := strings.LastIndex(base, "/")
	if slash < 0 {
		return "", false
	}
	base = base[:slash+1]
	if params == "" {
		return base, true
	}
	return base + "?" + params, true
}

// Stop implements the plugin.Plugin interface
func (d *MetadataStoreMysql) Stop() error {
	return d.Close()
}

// Close closes the connection pool
func (d *MetadataStoreMysql) Close() error {
	// Guard against nil store (e.g., if Start() failed or was never called)
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}
