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
	"sync"

	"github.com/blinklabs-io/crowdfund/database/plugin"
	"github.com/blinklabs-io/crowdfund/database/plugin/metadata/internal/gormstore"
)

var (
	cmdlineOptions struct {
		server gormstore.Server
	}
	cmdlineOptionsMutex sync.RWMutex
)

func defaultServer() gormstore.Server {
	s := gormstore.Server{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Database: "postgres",
		SSLMode:  "disable",
		TimeZone: "UTC",
	}
	s.Fill(gormstore.Server{})
	return s
}

// Register plugin
func init() {
	cmdlineOptions.server = defaultServer()
	plugin.Register(
		plugin.PluginEntry{
			Type:               plugin.PluginTypeMetadata,
			Name:               "postgres",
			Description:        "Postgres relational database",
			NewFromOptionsFunc: NewFromCmdlineOptions,
			Options: cmdlineOptions.server.PluginOptions(
				"Postgres",
				defaultServer(),
			),
		},
	)
}

func NewFromCmdlineOptions() plugin.Plugin {
	cmdlineOptionsMutex.RLock()
	server := cmdlineOptions.server
	cmdlineOptionsMutex.RUnlock()
	// Logger and promRegistry are handed over by plugin.StartPlugin
	p, err := NewWithOptions(WithServer(server))
	if err != nil {
		// Return a plugin that defers the error to Start()
		return plugin.NewErrorPlugin(err)
	}
	return p
}
