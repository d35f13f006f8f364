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

import "github.com/poiesic/mailsift/storage"

// Store implements storage.Store over a single BadgerDB database.
type Store struct {
	*RecordRepository
	*CursorRepository
	*NotificationRepository

	backend *Backend
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) a store in the directory at path.
func Open(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewStore(backend), nil
}

// OpenMemory opens an in-memory store for testing.
// Caller must close the store when done.
func OpenMemory() (*Store, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return NewStore(backend), nil
}

// NewStore builds the repositories over an open backend.
func NewStore(backend *Backend) *Store {
	return &Store{
		RecordRepository:       NewRecordRepository(backend),
		CursorRepository:       NewCursorRepository(backend),
		NotificationRepository: NewNotificationRepository(backend),
		backend:                backend,
	}
}

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.backend.Close()
}
