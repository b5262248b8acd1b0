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
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

type Plugin interface {
	Start() error
	Stop() error
}

// Instrumentable is implemented by plugins that accept a logger and a
// prometheus registerer before they are started
type Instrumentable interface {
	SetLogger(*slog.Logger)
	SetPromRegistry(prometheus.Registerer)
}

// ErrorPlugin is a plugin that always returns an error on Start()
type ErrorPlugin struct {
	Err error
}

func (e *ErrorPlugin) Start() error {
	return e.Err
}

func (e *ErrorPlugin) Stop() error {
	return nil
}

// NewErrorPlugin creates a new error plugin that returns the given error on Start()
func NewErrorPlugin(err error) Plugin {
	return &ErrorPlugin{Err: err}
}

// StartPlugin gets a plugin from the registry, hands it the logger and
// prometheus registerer if it accepts them, and starts it
func StartPlugin(
	pluginType PluginType,
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (Plugin, error) {
	p := GetPlugin(pluginType, pluginName)
	if p == nil {
		return nil, fmt.Errorf(
			"%s plugin '%s' not found",
			PluginTypeName(pluginType),
			pluginName,
		)
	}
	if inst, ok := p.(Instrumentable); ok {
		if logger != nil {
			inst.SetLogger(logger)
		}
		if promRegistry != nil {
			inst.SetPromRegistry(promRegistry)
		}
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %s plugin '%s': %w",
			PluginTypeName(pluginType),
			pluginName,
			err,
		)
	}
	return p, nil
}

// SetPluginOption sets the value of a named option for a plugin entry, for
// example to point data-dir at the configured location before the plugin is
// started. Unknown options are ignored so callers can set options that only
// some implementations have.
// It writes option destinations without synchronization and must only be
// called during initialization.
func SetPluginOption(
	pluginType PluginType,
	pluginName string,
	optionName string,
	value any,
) error {
	for _, p := range pluginEntries {
		if p.Type != pluginType || p.Name != pluginName {
			continue
		}
		for _, opt := range p.Options {
			if opt.Name != optionName {
				continue
			}
			if err := opt.set(value); err != nil {
				return fmt.Errorf("option %s: %w", optionName, err)
			}
			return nil
		}
		return nil
	}
	return fmt.Errorf(
		"plugin %s of type %s not found",
		pluginName,
		PluginTypeName(pluginType),
	)
}

// set performs a type-checked assignment into the option's Dest pointer
func (o PluginOption) set(value any) error {
	switch o.Type {
	case PluginOptionTypeString:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("invalid type %T: expected string", value)
		}
		return assign(o.Dest, v)
	case PluginOptionTypeBool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("invalid type %T: expected bool", value)
		}
		return assign(o.Dest, v)
	case PluginOptionTypeInt:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("invalid type %T: expected int", value)
		}
		return assign(o.Dest, v)
	case PluginOptionTypeUint:
		switch tv := value.(type) {
		case uint64:
			return assign(o.Dest, tv)
		case int:
			if tv < 0 {
				return fmt.Errorf("invalid value %d: negative int", tv)
			}
			return assign(o.Dest, uint64(tv))
		default:
			return fmt.Errorf("invalid type %T: expected uint64 or int", value)
		}
	default:
		return fmt.Errorf("unknown plugin option type %d", o.Type)
	}
}

func assign[T any](dest any, v T) error {
	if dest == nil {
		return fmt.Errorf("nil destination, expected *%T", v)
	}
	ptr, ok := dest.(*T)
	if !ok || ptr == nil {
		return fmt.Errorf("invalid destination type %T, expected *%T", dest, v)
	}
	*ptr = v
	return nil
}
