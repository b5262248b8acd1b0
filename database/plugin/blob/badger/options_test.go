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

package badger

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/blinklabs-io/crowdfund/database/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	b, err := New(
		WithDataDir("/tmp/test"),
		WithBlockCacheSize(123456789),
		WithIndexCacheSize(987654321),
		WithGc(false),
		WithGcInterval(time.Minute),
		WithValueLogFileSize(1<<20),
		WithMemTableSize(1<<22),
		WithValueThreshold(1024),
		WithSyncWrites(false),
		WithLogger(logger),
		WithPromRegistry(reg),
	)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test", b.dataDir)
	assert.Equal(t, uint64(123456789), b.blockCacheSize)
	assert.Equal(t, uint64(987654321), b.indexCacheSize)
	assert.False(t, b.gcEnabled)
	assert.Equal(t, time.Minute, b.gcInterval)
	assert.Equal(t, int64(1<<20), b.valueLogFileSize)
	assert.Equal(t, int64(1<<22), b.memTableSize)
	assert.Equal(t, int64(1024), b.valueThreshold)
	assert.False(t, b.syncWrites)
	assert.Same(t, logger, b.logger)
	assert.Equal(t, reg, b.promRegistry)
}

func TestDefaults(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	assert.True(t, b.gcEnabled)
	assert.True(t, b.syncWrites)
	assert.Equal(t, DefaultGcInterval, b.gcInterval)
	assert.Equal(t, uint64(DefaultBlockCacheSize), b.blockCacheSize)
	assert.Equal(t, uint64(DefaultIndexCacheSize), b.indexCacheSize)
	assert.Nil(t, b.DB())
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(WithValueThreshold(DefaultValueThreshold + 1))
	require.Error(t, err)
	_, err = New(WithGcInterval(0))
	require.Error(t, err)
}

func TestNewFromCmdlineOptions(t *testing.T) {
	p := NewFromCmdlineOptions()
	b, ok := p.(*BlobStoreBadger)
	require.True(t, ok)
	assert.Equal(t, ".crowdfund", b.dataDir)
	assert.True(t, b.gcEnabled)
}

func TestNewFromCmdlineOptionsOverrides(t *testing.T) {
	saved := cmdlineOptions
	t.Cleanup(func() { cmdlineOptions = saved })
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "badger", "gc-interval", 15))
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "badger", "sync-writes", false))
	b, ok := NewFromCmdlineOptions().(*BlobStoreBadger)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, b.gcInterval)
	assert.False(t, b.syncWrites)
}

func TestNewFromCmdlineOptionsInvalid(t *testing.T) {
	saved := cmdlineOptions
	t.Cleanup(func() { cmdlineOptions = saved })
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "badger", "gc-interval", 0))
	p := NewFromCmdlineOptions()
	_, ok := p.(*plugin.ErrorPlugin)
	require.True(t, ok)
	require.Error(t, p.Start())
}

func TestBadgerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newBadgerLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Debugf("hidden %d\n", 1)
	l.Warningf("value log %s\n", "rotated")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="value log rotated"`)
	assert.Contains(t, out, "store=badger")
	newBadgerLogger(nil).Errorf("discarded")
}
