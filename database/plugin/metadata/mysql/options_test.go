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
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/crowdfund/database/plugin"
	"github.com/blinklabs-io/crowdfund/database/plugin/metadata/internal/gormstore"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m, err := NewWithOptions(
		WithServer(gormstore.Server{
			Host:     "db.local",
			Port:     3307,
			User:     "crowdfund",
			Password: "secret",
			Database: "campaigns",
			SSLMode:  "true",
		}),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, "db.local:3307", m.server.Addr())
	assert.Equal(t, "crowdfund", m.server.User)
	assert.Equal(t, "secret", m.server.Password)
	assert.Equal(t, "campaigns", m.server.Database)
	assert.Equal(t, "UTC", m.server.TimeZone)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, defaultServer(), m.server)
	assert.Equal(t, "localhost:3306", m.server.Addr())
	assert.Equal(t, "root", m.server.User)
	assert.Equal(t, "crowdfund", m.server.Database)
}

func TestConnString(t *testing.T) {
	m, err := NewWithOptions(WithServer(gormstore.Server{
		Host:     "db.local",
		Password: "secret",
		SSLMode:  "skip-verify",
	}))
	require.NoError(t, err)
	dsn, database := m.connString()
	assert.Equal(t, "crowdfund", database)
	assert.True(t, strings.HasPrefix(dsn, "root:secret@tcp(db.local:3306)/crowdfund?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tls=skip-verify")
}

func TestConnStringDSNOverrides(t *testing.T) {
	m, err := NewWithOptions(
		WithServer(gormstore.Server{Database: "ignored"}),
		WithDSN(" u:p@tcp(h:1)/campaigns?parseTime=true "),
	)
	require.NoError(t, err)
	dsn, database := m.connString()
	assert.Equal(t, "u:p@tcp(h:1)/campaigns?parseTime=true", dsn)
	assert.Equal(t, "campaigns", database)
}

func TestCmdlineOptions(t *testing.T) {
	t.Cleanup(func() { cmdlineOptions.server = defaultServer() })
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "mysql", "database", "funds"))
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "mysql", "port", 3310))
	m, ok := NewFromCmdlineOptions().(*MetadataStoreMysql)
	require.True(t, ok)
	assert.Equal(t, "funds", m.server.Database)
	assert.Equal(t, "localhost:3310", m.server.Addr())
}

func TestDSNHelpers(t *testing.T) {
	db, ok := parseMysqlDatabaseFromDSN("u:p@tcp(h:1)/campaigns?x=y")
	assert.True(t, ok)
	assert.Equal(t, "campaigns", db)

	_, ok = parseMysqlDatabaseFromDSN("u:p@tcp(h:1)/")
	assert.False(t, ok)

	stripped, ok := stripDatabaseFromDSN("u:p@tcp(h:1)/campaigns?x=y")
	assert.True(t, ok)
	assert.Equal(t, "u:p@tcp(h:1)/?x=y", stripped)

	stripped, ok = stripDatabaseFromDSN("u:p@tcp(h:1)/campaigns")
	assert.True(t, ok)
	assert.Equal(t, "u:p@tcp(h:1)/", stripped)

	_, ok = stripDatabaseFromDSN("nothing")
	assert.False(t, ok)
}

func TestCloseBeforeStart(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}
