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
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/blinklabs-io/crowdfund/database/types"
)

var (
	errForeignTxn  = errors.New("transaction belongs to a different blob store")
	errTxnFinished = errors.New("transaction already committed or rolled back")
)

// txn is the types.Txn handed out by the store. A txn opened on a closed
// store has no badger transaction behind it and fails every operation.
type txn struct {
	store *BlobStoreBadger
	tx    *badger.Txn
	done  bool
}

func (t *txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.tx == nil {
		return types.ErrBlobStoreUnavailable
	}
	// badger discards the transaction when the commit fails
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	if !t.done && t.tx != nil {
		t.tx.Discard()
	}
	t.done = true
	return nil
}

// unwrap returns the live badger transaction behind a txn from this store
func (d *BlobStoreBadger) unwrap(tx types.Txn) (*badger.Txn, error) {
	if tx == nil {
		return nil, types.ErrNilTxn
	}
	t, ok := tx.(*txn)
	switch {
	case !ok:
		return nil, types.ErrTxnWrongType
	case t.store != d:
		return nil, errForeignTxn
	case t.done:
		return nil, errTxnFinished
	case t.tx == nil:
		return nil, types.ErrBlobStoreUnavailable
	}
	return t.tx, nil
}

type iterator struct {
	*badger.Iterator
}

func (it iterator) Item() types.BlobItem {
	return item{it.Iterator.Item()}
}

func (iterator) Err() error { return nil }

type item struct {
	*badger.Item
}

// Key returns a copy, since badger reuses the key buffer on Next
func (i item) Key() []byte {
	return i.KeyCopy(nil)
}

// failedIterator is returned when the iterator could not be created. It
// is never valid and reports the cause from Err.
type failedIterator struct {
	err error
}

func (failedIterator) Rewind()                    {}
func (failedIterator) Seek([]byte)                {}
func (failedIterator) Valid() bool                { return false }
func (failedIterator) ValidForPrefix([]byte) bool { return false }
func (failedIterator) Next()                      {}
func (failedIterator) Item() types.BlobItem       { return nil }
func (failedIterator) Close()                     {}
func (f failedIterator) Err() error               { return f.err }
