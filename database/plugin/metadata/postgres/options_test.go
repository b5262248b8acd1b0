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
			Port:     6543,
			User:     "crowdfund",
			Password: "secret",
			Database: "campaigns",
			SSLMode:  "require",
			TimeZone: "Europe/Berlin",
		}),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, "db.local:6543", m.server.Addr())
	assert.Equal(t, "crowdfund", m.server.User)
	assert.Equal(t, "campaigns", m.server.Database)
	assert.Equal(t, "require", m.server.SSLMode)
	assert.Same(t, logger, m.logger)
	assert.Equal(t, reg, m.promRegistry)
}

func TestDefaults(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.Equal(t, defaultServer(), m.server)
	assert.Equal(t, "localhost:5432", m.server.Addr())
	assert.Equal(t, uint64(gormstore.DefaultMaxOpenConns), m.server.MaxOpenConns)
	assert.NotNil(t, m.logger)
}

func TestConnString(t *testing.T) {
	m, err := NewWithOptions(WithServer(gormstore.Server{
		Host:     "db.local",
		Password: "secret",
		Database: "campaigns",
	}))
	require.NoError(t, err)
	assert.Equal(
		t,
		"host=db.local user=postgres password=secret dbname=campaigns port=5432 sslmode=disable TimeZone=UTC",
		m.connString(),
	)
}

func TestConnStringDSNOverrides(t *testing.T) {
	m, err := NewWithOptions(
		WithServer(gormstore.Server{Host: "ignored"}),
		WithDSN("  postgres://u:p@h:1/db  "),
	)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h:1/db", m.connString())
}

func TestCmdlineOptions(t *testing.T) {
	t.Cleanup(func() { cmdlineOptions.server = defaultServer() })
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "postgres", "host", "pg.internal"))
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeMetadata, "postgres", "max-open-conns", 7))
	p := NewFromCmdlineOptions()
	m, ok := p.(*MetadataStorePostgres)
	require.True(t, ok)
	assert.Equal(t, "pg.internal", m.server.Host)
	assert.Equal(t, uint64(7), m.server.MaxOpenConns)
}

func TestCloseBeforeStart(t *testing.T) {
	m, err := NewWithOptions()
	require.NoError(t, err)
	assert.NoError(t, m.Close())
}
