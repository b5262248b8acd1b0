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
	"sync"

	"github.com/blinklabs-io/crowdfund/database/plugin"
)

var (
	cmdlineOptions      = defaultSettings()
	cmdlineOptionsMutex sync.RWMutex
)

// Register plugin
func init() {
	defaults := defaultSettings()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "sqlite",
			Description:        "SQLite relational database (default)",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: []plugin.PluginOption{
				{
					Name:         "data-dir",
					Type:         plugin.PluginOptionTypeString,
					Description:  "Data directory for sqlite storage (empty for in-memory)",
					DefaultValue: defaults.dataDir,
					Dest:         &(cmdlineOptions.dataDir),
				},
				{
					Name:         "max-connections",
					Type:         plugin.PluginOptionTypeInt,
					Description:  "Maximum open connections",
					DefaultValue: defaults.maxConnections,
					Dest:         &(cmdlineOptions.maxConnections),
				},
				{
					Name:         "busy-timeout",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Milliseconds to wait on a locked database",
					DefaultValue: defaults.busyTimeout,
					Dest:         &(cmdlineOptions.busyTimeout),
				},
				{
					Name:         "vacuum-interval",
					Type:         plugin.PluginOptionTypeUint,
					Description:  "Hours between VACUUM runs (0 disables)",
					DefaultValue: defaults.vacuumInterval,
					Dest:         &(cmdlineOptions.vacuumInterval),
				},
			},
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	s := cmdlineOptions
	cmdlineOptionsMutex.RUnlock()
	// Logger and promRegistry are handed over by plugin.StartPlugin
	p, err := NewWithOptions(withSettings(s))
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
