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
	"sync"
	"time"

	"github.com/blinklabs-io/crowdfund/database/plugin"
)

// Default cache sizes for BadgerDB (in bytes)
const (
	DefaultBlockCacheSize = 67108864 // 64MB
	DefaultIndexCacheSize = 33554432 // 32MB
)

type pluginSettings struct {
	dataDir        string
	blockCacheSize uint64
	indexCacheSize uint64
	gcInterval     uint64 // minutes
	gcEnabled      bool
	syncWrites     bool
}

func defaultPluginSettings() pluginSettings {
	return pluginSettings{
		dataDir:        ".crowdfund",
		blockCacheSize: DefaultBlockCacheSize,
		indexCacheSize: DefaultIndexCacheSize,
		gcInterval:     uint64(DefaultGcInterval / time.Minute),
		gcEnabled:      true,
		syncWrites:     true,
	}
}

var (
	cmdlineOptions      = defaultPluginSettings()
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	defaults := defaultPluginSettings()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeBlob,
			Name:               "badger",
			Description:        "BadgerDB local key-value store holding the event journal",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for badger storage (empty for in-memory)",
					DefaultValue: defaults.dataDir,
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "block-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Badger block cache size in bytes",
					DefaultValue: defaults.blockCacheSize,
					Dest:         &(cmdlineOptions.blockCacheSize),
				},
				{
					Name:         "index-cache-size",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Badger index cache size in bytes",
					DefaultValue: defaults.indexCacheSize,
					Dest:         &(cmdlineOptions.indexCacheSize),
				},
				{
					Name:         "gc",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Enable value log garbage collection",
					DefaultValue: defaults.gcEnabled,
					Dest:         &(cmdlineOptions.gcEnabled),
				},
				{
					Name:         "gc-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Minutes between value log garbage collection runs",
					DefaultValue: defaults.gcInterval,
					Dest:         &(cmdlineOptions.gcInterval),
				},
				{
					Name:         "sync-writes",
					Type:         plugin.PluginOptionTypeBool,
					Description:  "Fsync every journal write",
					DefaultValue: defaults.syncWrites,
					Dest:         &(cmdlineOptions.syncWrites),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	s := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()
	p, err := New(
		WithDataDir(s.dataDir),
		WithBlockCacheSize(s.blockCacheSize),
		WithIndexCacheSize(s.indexCacheSize),
		WithGc(s.gcEnabled),
		WithGcInterval(time.Duration(s.gcInterval)*time.Minute),
		WithSyncWrites(s.syncWrites),
	)
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
