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

package database

import (
	"fmt"

	"github.com/blinklabs-io/crowdfund/database/types"
)

// blobDo executes fn in the context of a blob transaction. Any errors
// returned will result in the transaction being rolled back. Read-only
// transactions are always discarded.
func (d *Database) blobDo(readWrite bool, fn func(types.Txn) error) error {
	txn := d.blob.NewTransaction(readWrite)
	if err := fn(txn); err != nil {
		if err2 := txn.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if !readWrite {
		return txn.Rollback()
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}
