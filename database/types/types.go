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

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

// Uint64 stores a uint64 as a decimal string, which every metadata backend
// can hold without overflowing a signed integer column
//
//nolint:recvcheck
type Uint64 uint64

func (u Uint64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

// Scan accepts the decimal string form as well as the integer form some
// drivers return for numeric-looking text
func (u *Uint64) Scan(val any) error {
	var text string
	switch v := val.(type) {
	case int64:
		if v < 0 {
			return fmt.Errorf("scan Uint64: negative value %d", v)
		}
		*u = Uint64(v)
		return nil
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return fmt.Errorf("scan Uint64: unsupported type %T", val)
	}
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("scan Uint64: %w", err)
	}
	*u = Uint64(parsed)
	return nil
}

// GormDataType keeps the column a string type regardless of the
// underlying Go kind
func (Uint64) GormDataType() string {
	return "string"
}

var (
	// ErrBlobKeyNotFound is returned by blob reads of a missing key
	ErrBlobKeyNotFound = errors.New("blob key not found")
	// ErrTxnWrongType is returned when a store is handed another store
	// implementation's transaction
	ErrTxnWrongType = errors.New("invalid transaction type")
	ErrNilTxn       = errors.New("nil transaction")
	// ErrBlobStoreUnavailable is returned by a blob store that is not
	// started or already closed
	ErrBlobStoreUnavailable = errors.New("blob store unavailable")
)

// BlobItem is the entry under an iterator's cursor
type BlobItem interface {
	Key() []byte
	ValueCopy(dst []byte) ([]byte, error)
}

// BlobIterator provides key iteration over the blob store. Items must only
// be accessed while the transaction that created the iterator is active.
type BlobIterator interface {
	Rewind()
	Seek(prefix []byte)
	Valid() bool
	ValidForPrefix(prefix []byte) bool
	Next()
	Item() BlobItem
	Close()
	Err() error
}

// BlobIteratorOptions configures blob iterator creation
type BlobIteratorOptions struct {
	Prefix  []byte
	Reverse bool
}

// Txn is a simple transaction handle for commit/rollback only
type Txn interface {
	Commit() error
	Rollback() error
}
