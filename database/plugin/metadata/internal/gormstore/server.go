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

package gormstore

import (
	"net"
	"strconv"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/crowdfund/database/plugin"
)

const (
	DefaultMaxOpenConns    = 100
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 60 // minutes
)

// Server is the connection configuration shared by the metadata plugins
// that talk to a database server
type Server struct {
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	TimeZone string
	// DSN overrides the fields above when set
	DSN             string
	Port            uint64
	MaxOpenConns    uint64
	MaxIdleConns    uint64
	ConnMaxLifetime uint64 // minutes
}

// Fill sets unset fields from defaults. Pool sizes missing from both fall
// back to the package defaults.
func (s *Server) Fill(defaults Server) {
	fillString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fillUint := func(dst *uint64, def uint64, fallback uint64) {
		if *dst == 0 {
			*dst = def
		}
		if *dst == 0 {
			*dst = fallback
		}
	}
	fillString(&s.Host, defaults.Host)
	fillString(&s.User, defaults.User)
	fillString(&s.Database, defaults.Database)
	fillString(&s.SSLMode, defaults.SSLMode)
	fillString(&s.TimeZone, defaults.TimeZone)
	fillUint(&s.Port, defaults.Port, 0)
	fillUint(&s.MaxOpenConns, defaults.MaxOpenConns, DefaultMaxOpenConns)
	fillUint(&s.MaxIdleConns, defaults.MaxIdleConns, DefaultMaxIdleConns)
	fillUint(&s.ConnMaxLifetime, defaults.ConnMaxLifetime, DefaultConnMaxLifetime)
}

// Addr returns host:port
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.FormatUint(s.Port, 10))
}

// Location resolves TimeZone, falling back to UTC
func (s Server) Location() *time.Location {
	if s.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PluginOptions returns plugin options writing into the fields of s.
// product names the server in the option descriptions.
func (s *Server) PluginOptions(
	product string,
	defaults Server,
) []plugin.PluginOption {
	defaults.Fill(Server{})
	str := func(name, desc string, def string, dest *string) plugin.PluginOption {
		return plugin.PluginOption{
			Name:         name,
			Type:         plugin.PluginOptionTypeString,
			Description:  product + " " + desc,
			DefaultValue: def,
			Dest:         dest,
		}
	}
	num := func(name, desc string, def uint64, dest *uint64) plugin.PluginOption {
		return plugin.PluginOption{
			Name:         name,
			Type:         plugin.PluginOptionTypeUint,
			Description:  product + " " + desc,
			DefaultValue: def,
			Dest:         dest,
		}
	}
	return []plugin.PluginOption{
		str("host", "host", defaults.Host, &s.Host),
		num("port", "port", defaults.Port, &s.Port),
		str("user", "user", defaults.User, &s.User),
		// No default password: credentials always come from the user
		str("password", "password", "", &s.Password),
		str("database", "database name", defaults.Database, &s.Database),
		str("ssl-mode", "TLS mode", defaults.SSLMode, &s.SSLMode),
		str("timezone", "session time zone", defaults.TimeZone, &s.TimeZone),
		str("dsn", "DSN (overrides the other connection options when set)", "", &s.DSN),
		num("max-open-conns", "connection pool size", defaults.MaxOpenConns, &s.MaxOpenConns),
		num("max-idle-conns", "idle connections kept open", defaults.MaxIdleConns, &s.MaxIdleConns),
		num("conn-max-lifetime", "connection lifetime in minutes", defaults.ConnMaxLifetime, &s.ConnMaxLifetime),
	}
}

// Connect opens dialector with the settings shared by every server plugin
// and sizes the connection pool
func (s Server) Connect(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(
		dialector,
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			PrepareStmt:            true,
		},
	)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(int(min(s.MaxOpenConns, 1<<20))) //nolint:gosec // bounded
	sqlDB.SetMaxIdleConns(int(min(s.MaxIdleConns, 1<<20))) //nolint:gosec // bounded
	sqlDB.SetConnMaxLifetime(
		time.Duration(min(s.ConnMaxLifetime, 1<<20)) * time.Minute, //nolint:gosec // bounded
	)
	return db, nil
}
