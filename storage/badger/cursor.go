// Copyright 2025 Poiesic Systems
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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/storage"
)

// CursorRepository implements storage.CursorRepository for BadgerDB.
type CursorRepository struct {
	backend *Backend
}

var _ storage.CursorRepository = (*CursorRepository)(nil)

// NewCursorRepository creates a new CursorRepository.
func NewCursorRepository(backend *Backend) *CursorRepository {
	return &CursorRepository{
		backend: backend,
	}
}

// SaveCursor persists the cursor of a folder.
func (r *CursorRepository) SaveCursor(ctx context.Context, cursor *core.Cursor) error {
	if cursor.Folder == "" {
		return core.ErrEmptyFolder
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		cursor.UpdatedAt = time.Now().UTC()
		value, err := storage.MarshalCursor(cursor)
		if err != nil {
			return err
		}
		if err := tx.Set(makeCursorKey(cursor.Folder), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadCursor retrieves the cursor of a folder.
// Returns nil, nil if no cursor exists.
func (r *CursorRepository) LoadCursor(ctx context.Context, folder string) (*core.Cursor, error) {
	var cursor *core.Cursor
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		cursor, err = readValue(tx, makeCursorKey(folder), storage.UnmarshalCursor)
		return err
	}, false)

	return cursor, err
}
