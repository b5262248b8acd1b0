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

package plugin

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeNone PluginType = iota
	PluginTypeMetadata
	PluginTypeBlob
)

// EnvVarPrefix prefixes the environment variables read by ProcessEnvVars
const EnvVarPrefix = "CROWDFUND_DATABASE"

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeBlob:
		return "blob"
	default:
		return "unknown"
	}
}

type PluginOptionType int

const (
	PluginOptionTypeNone PluginOptionType = iota
	PluginOptionTypeString
	PluginOptionTypeBool
	PluginOptionTypeInt
	PluginOptionTypeUint
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

var pluginEntries []PluginEntry

// Register adds a plugin entry. It is meant to be called from package init.
func Register(pluginEntry PluginEntry) {
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered plugin entries of the given type
func GetPlugins(pluginType PluginType) []PluginEntry {
	ret := []PluginEntry{}
	for _, p := range pluginEntries {
		if p.Type == pluginType {
			ret = append(ret, p)
		}
	}
	return ret
}

// GetPlugin returns a new, unstarted instance of the named plugin, or nil if
// no such plugin is registered
func GetPlugin(pluginType PluginType, name string) Plugin {
	for _, p := range pluginEntries {
		if p.Type == pluginType && p.Name == name {
			return p.NewFromOptionsFunc()
		}
	}
	return nil
}

func flagName(pluginType PluginType, pluginName, optionName string) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(pluginType),
		pluginName,
		optionName,
	)
}

// PopulateCmdlineOptions adds a flag for every plugin option, named
// <type>-<plugin>-<option>
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			name := flagName(p.Type, p.Name, opt.Name)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				def, ok2 := opt.DefaultValue.(string)
				if !ok || !ok2 {
					return fmt.Errorf("option %s: expected string", name)
				}
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				def, ok2 := opt.DefaultValue.(bool)
				if !ok || !ok2 {
					return fmt.Errorf("option %s: expected bool", name)
				}
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				def, ok2 := opt.DefaultValue.(int)
				if !ok || !ok2 {
					return fmt.Errorf("option %s: expected int", name)
				}
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				def, ok2 := opt.DefaultValue.(uint64)
				if !ok || !ok2 {
					return fmt.Errorf("option %s: expected uint64", name)
				}
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf(
					"unknown plugin option type %d for option %s",
					opt.Type,
					name,
				)
			}
		}
	}
	return nil
}

// ProcessEnvVars sets plugin options from environment variables named
// CROWDFUND_DATABASE_<TYPE>_<PLUGIN>_<OPTION>, upper-cased with dashes
// replaced by underscores
func ProcessEnvVars() error {
	for _, p := range pluginEntries {
		for _, opt := range p.Options {
			envName := strings.ToUpper(
				strings.ReplaceAll(
					EnvVarPrefix+"_"+flagName(p.Type, p.Name, opt.Name),
					"-",
					"_",
				),
			)
			value, ok := os.LookupEnv(envName)
			if !ok {
				continue
			}
			if err := opt.setFromString(value); err != nil {
				return fmt.Errorf("%s: %w", envName, err)
			}
		}
	}
	return nil
}

// ProcessConfig sets plugin options from a parsed config section, keyed by
// plugin name and then option name
func ProcessConfig(
	pluginType PluginType,
	pluginConfig map[string]map[string]any,
) error {
	for pluginName, options := range pluginConfig {
		for optionName, value := range options {
			err := SetPluginOption(pluginType, pluginName, optionName, value)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (o PluginOption) setFromString(value string) error {
	switch o.Type {
	case PluginOptionTypeString:
		return o.set(value)
	case PluginOptionTypeBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		return o.set(v)
	case PluginOptionTypeInt:
		v, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		return o.set(v)
	case PluginOptionTypeUint:
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		return o.set(v)
	default:
		return fmt.Errorf("unknown plugin option type %d", o.Type)
	}
}
