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

package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/blinklabs-io/crowdfund/campaign"
	"github.com/blinklabs-io/crowdfund/database/plugin"
)

type ctxKey string

const configContextKey ctxKey = "crowdfund.config"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
	DefaultDatabasePath   = ".crowdfund"
)

// ErrPluginListRequested is returned when the user requests to list available plugins
// This is not an error condition but a successful operation that displays plugin information
var ErrPluginListRequested = errors.New("plugin list requested")

type tempConfig struct {
	Config   yaml.Node                 `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	BlobPlugin      string `yaml:"blobPlugin"      split_words:"true"`
	MetadataPlugin  string `yaml:"metadataPlugin"  split_words:"true"`
	Identity        string `yaml:"identity"`
	TracingEndpoint string `yaml:"tracingEndpoint" split_words:"true"`
	MaxNameLength   int    `yaml:"maxNameLength"   split_words:"true"`
	Tracing         bool   `yaml:"tracing"`
	TracingStdout   bool   `yaml:"tracingStdout"   split_words:"true"`
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:   DefaultDatabasePath,
		BlobPlugin:     DefaultBlobPlugin,
		MetadataPlugin: DefaultMetadataPlugin,
		MaxNameLength:  campaign.MaxNameLength,
	}
}

var globalConfig = DefaultConfig()

// defaultConfigFile returns the first config file found in the user and
// system config locations
func defaultConfigFile() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(homeDir, ".crowdfund", "crowdfund.yaml")
		if _, err := os.Stat(userPath); err == nil {
			return userPath
		}
	}
	systemPath := "/etc/crowdfund/crowdfund.yaml"
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}
	return ""
}

// LoadConfig builds the configuration from defaults, the YAML config file
// and the environment, in increasing order of precedence. Plugin sections
// of the config file and plugin environment variables are applied to the
// plugin registry.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		configFile = defaultConfigFile()
	}
	if configFile != "" {
		if err := loadFile(cfg, configFile); err != nil {
			return nil, err
		}
	}
	// Process environment variables
	if err := envconfig.Process("crowdfund", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Process plugin environment variables
	if err := plugin.ProcessEnvVars(); err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func loadFile(cfg *Config, configFile string) error {
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	// First unmarshal into temp config to handle plugin sections
	var tempCfg tempConfig
	if err := yaml.Unmarshal(buf, &tempCfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	if tempCfg.Config.Kind != 0 {
		// Overlay config section values onto the defaults
		if err := tempCfg.Config.Decode(cfg); err != nil {
			return fmt.Errorf("error parsing config section: %w", err)
		}
	} else {
		// Otherwise unmarshal the whole file as main config
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// Process plugin configurations
	blobConfig := make(map[string]map[string]any)
	maps.Copy(blobConfig, tempCfg.Blob)
	metadataConfig := make(map[string]map[string]any)
	maps.Copy(metadataConfig, tempCfg.Metadata)
	if tempCfg.Database != nil {
		if name, sections := pluginSections("blob", tempCfg.Database.Blob); name != "" || len(sections) > 0 {
			if name != "" {
				cfg.BlobPlugin = name
			}
			maps.Copy(blobConfig, sections)
		}
		if name, sections := pluginSections("metadata", tempCfg.Database.Metadata); name != "" || len(sections) > 0 {
			if name != "" {
				cfg.MetadataPlugin = name
			}
			maps.Copy(metadataConfig, sections)
		}
	}
	if err := plugin.ProcessConfig(plugin.PluginTypeBlob, blobConfig); err != nil {
		return fmt.Errorf("error processing blob plugin config: %w", err)
	}
	if err := plugin.ProcessConfig(plugin.PluginTypeMetadata, metadataConfig); err != nil {
		return fmt.Errorf("error processing metadata plugin config: %w", err)
	}
	return nil
}

// pluginSections splits a database.<kind> config section into the selected
// plugin name and the per-plugin option maps
func pluginSections(
	kind string,
	section map[string]any,
) (string, map[string]map[string]any) {
	var name string
	ret := make(map[string]map[string]any)
	for k, v := range section {
		if k == "plugin" {
			if pluginName, ok := v.(string); ok {
				name = pluginName
			}
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			ret[k] = val
		case map[any]any:
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			ret[k] = stringAnyMap
		default:
			// Log skipped non-map config entries
			fmt.Fprintf(os.Stderr, "warning: skipping %s config entry %q: expected map, got %T\n", kind, k, v)
		}
	}
	return name, ret
}

// Validate checks the configuration for values no component accepts
func (c *Config) Validate() error {
	if c.MaxNameLength < 0 || c.MaxNameLength > campaign.MaxNameLength {
		return fmt.Errorf(
			"invalid maxNameLength: %d (must be between 1 and %d, or 0 for the default)",
			c.MaxNameLength,
			campaign.MaxNameLength,
		)
	}
	if c.BlobPlugin == "" {
		c.BlobPlugin = DefaultBlobPlugin
	}
	if c.MetadataPlugin == "" {
		c.MetadataPlugin = DefaultMetadataPlugin
	}
	if c.Tracing && c.TracingStdout && c.TracingEndpoint != "" {
		return errors.New("tracingStdout and tracingEndpoint are mutually exclusive")
	}
	return nil
}

// ListPlugins writes the available plugins of the requested kind to stdout
// and returns ErrPluginListRequested, or returns nil when neither plugin
// name is "list"
func (c *Config) ListPlugins() error {
	listed := false
	if c.BlobPlugin == "list" {
		fmt.Println("Available blob plugins:")
		for _, p := range plugin.GetPlugins(plugin.PluginTypeBlob) {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		listed = true
	}
	if c.MetadataPlugin == "list" {
		fmt.Println("Available metadata plugins:")
		for _, p := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
			fmt.Printf("  %s: %s\n", p.Name, p.Description)
		}
		listed = true
	}
	if listed {
		return ErrPluginListRequested
	}
	return nil
}

func GetConfig() *Config {
	return globalConfig
}
