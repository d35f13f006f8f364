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

package reindex

import (
	"context"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator pages through the processed records of a store.
type RecordIterator struct {
	repo      storage.RecordRepository
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each batch (defaults when <= 0)
func NewRecordIterator(repo storage.RecordRepository, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach calls fn with successive batches of processed records in id
// order. Batches hold at most batchSize records and are never empty.
// Iteration stops on the first error from fn; context cancellation is
// checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.EmailRecord) error) error {
	var after core.ID
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := it.repo.ScanRecords(ctx, after, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		after = page[len(page)-1].Id

		batch := make([]*core.EmailRecord, 0, len(page))
		for _, record := range page {
			if record.State == core.StateProcessed {
				batch = append(batch, record)
			}
		}
		if len(batch) > 0 {
			if err := fn(batch); err != nil {
				return err
			}
		}

		if len(page) < it.batchSize {
			return nil
		}
	}
}

// Count returns the number of processed records.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	n := 0
	err := it.ForEach(ctx, func(records []*core.EmailRecord) error {
		n += len(records)
		return nil
	})
	return n, err
}
