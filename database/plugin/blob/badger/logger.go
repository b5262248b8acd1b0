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
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// badgerLogger routes badger's printf-style logging into slog. Badger
// terminates most messages with a newline, which is trimmed.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &badgerLogger{
		logger: logger.With("component", "database", "store", "badger"),
	}
}

func (b *badgerLogger) log(level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !b.logger.Enabled(ctx, level) {
		return
	}
	b.logger.Log(
		ctx,
		level,
		strings.TrimRight(fmt.Sprintf(msg, args...), "\n"),
	)
}

func (b *badgerLogger) Infof(msg string, args ...any) {
	b.log(slog.LevelInfo, msg, args)
}

func (b *badgerLogger) Warningf(msg string, args ...any) {
	b.log(slog.LevelWarn, msg, args)
}

func (b *badgerLogger) Debugf(msg string, args ...any) {
	b.log(slog.LevelDebug, msg, args)
}

func (b *badgerLogger) Errorf(msg string, args ...any) {
	b.log(slog.LevelError, msg, args)
}
