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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/crowdfund/database/types"
)

const (
	// sequenceBandwidth is the number of values leased per sequence refill
	sequenceBandwidth = 100
	// gcDiscardRatio is the share of stale data a value log file needs
	// before GC rewrites it
	gcDiscardRatio = 0.5
)

// BlobStoreBadger stores the event journal in badger. Data is not persisted
// when no data directory is configured.
type BlobStoreBadger struct {
	promRegistry     prometheus.Registerer
	db               *badger.DB
	logger           *slog.Logger
	metrics          *blobMetrics
	gcCancel         context.CancelFunc
	sequences        map[string]*badger.Sequence
	dataDir          string
	gcWg             sync.WaitGroup
	sequenceMutex    sync.Mutex
	blockCacheSize   uint64
	indexCacheSize   uint64
	valueLogFileSize int64
	memTableSize     int64
	valueThreshold   int64
	gcInterval       time.Duration
	gcEnabled        bool
	syncWrites       bool
}

// New creates a new, unstarted blob store
func New(opts ...BlobStoreBadgerOptionFunc) (*BlobStoreBadger, error) {
	d := &BlobStoreBadger{
		gcEnabled:        true,
		syncWrites:       true,
		gcInterval:       DefaultGcInterval,
		blockCacheSize:   DefaultBlockCacheSize,
		indexCacheSize:   DefaultIndexCacheSize,
		valueLogFileSize: int64(DefaultValueLogFileSize),
		memTableSize:     int64(DefaultMemTableSize),
		valueThreshold:   int64(DefaultValueThreshold),
	}
	for _, opt := range opts {
		opt(d)
	}
	switch {
	case d.valueThreshold > int64(DefaultValueThreshold):
		return nil, fmt.Errorf(
			"value threshold %d exceeds maximum of %d",
			d.valueThreshold,
			DefaultValueThreshold,
		)
	case d.gcInterval <= 0:
		return nil, fmt.Errorf("invalid GC interval: %s", d.gcInterval)
	}
	return d, nil
}

// SetLogger implements the plugin.Instrumentable interface
func (d *BlobStoreBadger) SetLogger(logger *slog.Logger) {
	d.logger = logger
}

// SetPromRegistry implements the plugin.Instrumentable interface
func (d *BlobStoreBadger) SetPromRegistry(reg prometheus.Registerer) {
	d.promRegistry = reg
}

// badgerOptions builds the options shared by both modes and then applies
// either the in-memory or the on-disk settings
func (d *BlobStoreBadger) badgerOptions() (badger.Options, error) {
	dir := ""
	if d.dataDir != "" {
		if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
			return badger.Options{}, fmt.Errorf("create data dir: %w", err)
		}
		dir = filepath.Join(d.dataDir, "blob")
	}
	opts := badger.DefaultOptions(dir).
		WithLogger(newBadgerLogger(d.logger)).
		WithLoggingLevel(badger.WARNING).
		WithBlockCacheSize(int64(d.blockCacheSize)). //nolint:gosec // option sizes are bytes
		WithIndexCacheSize(int64(d.indexCacheSize)). //nolint:gosec // option sizes are bytes
		WithMemTableSize(d.memTableSize).
		WithValueThreshold(d.valueThreshold)
	if dir == "" {
		return opts.WithInMemory(true), nil
	}
	return opts.
		WithValueLogFileSize(d.valueLogFileSize).
		WithSyncWrites(d.syncWrites).
		WithCompression(options.Snappy), nil
}

// Start implements the plugin.Plugin interface
func (d *BlobStoreBadger) Start() error {
	if d.db != nil {
		return errors.New("blob store already started")
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	opts, err := d.badgerOptions()
	if err != nil {
		return err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}
	d.db = db
	d.sequences = make(map[string]*badger.Sequence)
	d.metrics = newBlobMetrics(d.promRegistry)
	// An in-memory store has no value log to collect
	if d.gcEnabled && d.dataDir != "" {
		ctx, cancel := context.WithCancel(context.Background())
		d.gcCancel = cancel
		d.gcWg.Add(1)
		go d.runGc(ctx)
	}
	d.logger.Debug(
		"opened badger blob store",
		"component", "database",
		"data_dir", d.dataDir,
		"sync_writes", d.syncWrites,
	)
	return nil
}

func (d *BlobStoreBadger) runGc(ctx context.Context) {
	defer d.gcWg.Done()
	ticker := time.NewTicker(d.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		// Each successful pass rewrites one file, so keep going until
		// there is nothing left to reclaim
		for ctx.Err() == nil {
			err := d.db.RunValueLogGC(gcDiscardRatio)
			if err == nil {
				d.metrics.gcRuns.Inc()
				continue
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				d.logger.Warn(
					"blob value log GC failed",
					"component", "database",
					"error", err,
				)
			}
			break
		}
	}
}

// Stop implements the plugin.Plugin interface
func (d *BlobStoreBadger) Stop() error {
	return d.Close()
}

// Close stops background GC, releases leased sequence ranges and closes the
// database. It is safe to call more than once.
func (d *BlobStoreBadger) Close() error {
	if d.gcCancel != nil {
		d.gcCancel()
		d.gcWg.Wait()
		d.gcCancel = nil
	}
	if d.db == nil {
		return nil
	}
	var errs []error
	d.sequenceMutex.Lock()
	for key, seq := range d.sequences {
		if err := seq.Release(); err != nil {
			errs = append(errs, fmt.Errorf("release sequence %s: %w", key, err))
		}
	}
	d.sequences = nil
	d.sequenceMutex.Unlock()
	errs = append(errs, d.db.Close())
	d.db = nil
	return errors.Join(errs...)
}

// DB returns the underlying badger handle, or nil when the store is closed
func (d *BlobStoreBadger) DB() *badger.DB {
	return d.db
}

// NewTransaction opens a transaction. On a closed store the returned
// transaction fails every operation with types.ErrBlobStoreUnavailable.
func (d *BlobStoreBadger) NewTransaction(update bool) types.Txn {
	t := &txn{store: d}
	if d.db != nil {
		t.tx = d.db.NewTransaction(update)
	}
	return t
}

func (d *BlobStoreBadger) Get(tx types.Txn, key []byte) ([]byte, error) {
	btx, err := d.unwrap(tx)
	if err != nil {
		return nil, err
	}
	it, err := btx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, types.ErrBlobKeyNotFound
	} else if err != nil {
		return nil, err
	}
	val, err := it.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	d.metrics.observe("get", len(val))
	return val, nil
}

func (d *BlobStoreBadger) Set(tx types.Txn, key, val []byte) error {
	btx, err := d.unwrap(tx)
	if err != nil {
		return err
	}
	if err := btx.Set(key, val); err != nil {
		return err
	}
	d.metrics.observe("set", len(val))
	return nil
}

func (d *BlobStoreBadger) Delete(tx types.Txn, key []byte) error {
	btx, err := d.unwrap(tx)
	if err != nil {
		return err
	}
	if err := btx.Delete(key); err != nil {
		return err
	}
	d.metrics.observe("delete", 0)
	return nil
}

// NewIterator creates an iterator within a transaction. Items must be read
// before the transaction ends.
func (d *BlobStoreBadger) NewIterator(
	tx types.Txn,
	opts types.BlobIteratorOptions,
) types.BlobIterator {
	btx, err := d.unwrap(tx)
	if err != nil {
		return failedIterator{err: err}
	}
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = opts.Prefix
	iterOpts.Reverse = opts.Reverse
	return iterator{btx.NewIterator(iterOpts)}
}

// NextSequence returns the next value of the named monotonic sequence. The
// first value of a new sequence is 0. Values leased but not handed out
// before an unclean shutdown are skipped.
func (d *BlobStoreBadger) NextSequence(
	ctx context.Context,
	key []byte,
) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.sequenceMutex.Lock()
	defer d.sequenceMutex.Unlock()
	if d.db == nil || d.sequences == nil {
		return 0, types.ErrBlobStoreUnavailable
	}
	seq, ok := d.sequences[string(key)]
	if !ok {
		var err error
		if seq, err = d.db.GetSequence(key, sequenceBandwidth); err != nil {
			return 0, fmt.Errorf("get sequence: %w", err)
		}
		d.sequences[string(key)] = seq
	}
	return seq.Next()
}
