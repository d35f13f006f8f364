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

// Package storage provides the storage abstraction layer for mailsift.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic:
//
//   - RecordRepository: email records and the raw messages behind them
//   - CursorRepository: the last ingested UID of each mailbox folder
//   - NotificationRepository: notification delivery state
//   - Store: all of the above over one database
//
// The vector index lives in its own package; the records stored here are the
// source of truth it is rebuilt from.
//
// # Usage
//
//	store, err := badger.Open("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.OpenMemory()
//
// # Concurrency
//
// All repository implementations are thread-safe. Writers that read, modify
// and write back a record serialize on a KeyedMutex for that record id.
package storage
