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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/retry"
	"github.com/poiesic/mailsift/storage"
)

// Config holds configuration for the rebuild operation.
type Config struct {
	// BatchSize is the number of records to embed per call
	BatchSize int

	// Retry governs embedding calls that fail
	Retry retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize: DefaultBatchSize,
		Retry:     retry.DefaultPolicy(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("reindex config: BatchSize must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("reindex config: %w", retry.ErrInvalidMaxAttempts)
	}
	return nil
}

// Target is the index being rebuilt.
type Target interface {
	Rebuild(ctx context.Context, entries []index.Entry) error
	Upsert(ctx context.Context, entry index.Entry) error
	Delete(ctx context.Context, ids ...core.ID) error
	Has(id core.ID) bool
	Len() int
}

// Result summarizes a finished rebuild.
type Result struct {
	// Records is the number of processed records now in the index.
	Records int

	// Stamped counts records whose IndexedAt changed.
	Stamped int

	// Refreshed counts records processed while the rebuild ran, whose
	// entries were written again after the swap.
	Refreshed int

	Elapsed time.Duration
}

// Rebuilder reconstructs the vector index from processed records.
type Rebuilder struct {
	repo      storage.RecordRepository
	target    Target
	config    *Config
	processor *BatchProcessor
	iterator  *RecordIterator
	progress  Progress
	lock      func(core.ID) func()
	logger    *slog.Logger
}

// Option configures a Rebuilder.
type Option func(*Rebuilder) error

// WithProgress reports progress to p.
func WithProgress(p Progress) Option {
	return func(r *Rebuilder) error {
		if p == nil {
			p = nopProgress{}
		}
		r.progress = p
		return nil
	}
}

// WithRecordLock serializes record updates with other writers. lock must
// return the function that releases the lock.
func WithRecordLock(lock func(core.ID) func()) Option {
	return func(r *Rebuilder) error {
		r.lock = lock
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rebuilder) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRebuilder creates a new rebuilder. A nil config uses DefaultConfig.
func NewRebuilder(repo storage.RecordRepository, target Target, embedder ai.Embedder, config *Config, opts ...Option) (*Rebuilder, error) {
	if repo == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if target == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &Rebuilder{
		repo:      repo,
		target:    target,
		config:    config,
		processor: NewBatchProcessor(embedder, config.Retry),
		iterator:  NewRecordIterator(repo, config.BatchSize),
		progress:  nopProgress{},
		lock:      func(core.ID) func() { return func() {} },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reindex")
	return r, nil
}

// Run re-embeds every processed record and atomically replaces the index
// contents. On error the index is left as it was. Afterwards every processed
// record has an entry and IndexedAt set, and no other record has either.
//
// Records the pipeline processes while the rebuild runs can miss the
// snapshot that replaces the index. Once the swap is done they are embedded
// again under the record lock.
func (r *Rebuilder) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	r.logger.Info("rebuilding index", "records", total, "batch_size", r.config.BatchSize)
	r.progress.Start(total)

	entries := make([]index.Entry, 0, total)
	err = r.iterator.ForEach(ctx, func(records []*core.EmailRecord) error {
		batch, err := r.processor.Process(ctx, records)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		entries = append(entries, batch...)
		r.progress.Increment(len(records))
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := r.target.Rebuild(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to replace index: %w", err)
	}
	r.progress.Finish()

	result := &Result{Records: len(entries)}
	err = r.reconcile(ctx, start, result)
	metrics.SetIndexEntries(r.target.Len())
	if err != nil {
		return nil, err
	}

	result.Elapsed = time.Since(start)
	r.logger.Info("index rebuilt", "records", result.Records, "stamped", result.Stamped,
		"refreshed", result.Refreshed, "elapsed", result.Elapsed)
	return result, nil
}

// reconcile brings records and the rebuilt index in line. since is when the
// rebuild started; processed records updated after it are embedded again.
func (r *Rebuilder) reconcile(ctx context.Context, since time.Time, result *Result) error {
	var stale []core.ID
	err := r.repo.ForEachRecord(ctx, func(record *core.EmailRecord) error {
		if r.needsReconcile(record, since) {
			stale = append(stale, record.Id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range stale {
		if err := r.reconcileOne(ctx, id, since, result); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rebuilder) needsReconcile(record *core.EmailRecord, since time.Time) bool {
	if record.State != core.StateProcessed {
		return record.IsIndexed() || r.target.Has(record.Id)
	}
	return !record.IsIndexed() || !r.target.Has(record.Id) || record.UpdatedAt.After(since)
}

func (r *Rebuilder) reconcileOne(ctx context.Context, id core.ID, since time.Time, result *Result) error {
	unlock := r.lock(id)
	defer unlock()

	record, err := r.repo.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !r.needsReconcile(record, since) {
		return nil
	}

	now := time.Now().UTC()
	if record.State != core.StateProcessed {
		if r.target.Has(id) {
			if err := r.target.Delete(ctx, id); err != nil {
				return fmt.Errorf("failed to remove entry %s: %w", id, err)
			}
		}
		if !record.IsIndexed() {
			return nil
		}
		record.IndexedAt = nil
		result.Stamped++
		return r.repo.UpdateRecord(ctx, record)
	}

	if !r.target.Has(id) || record.UpdatedAt.After(since) {
		entries, err := r.processor.Process(ctx, []*core.EmailRecord{record})
		if err != nil {
			return fmt.Errorf("failed to refresh record %s: %w", id, err)
		}
		if err := r.target.Upsert(ctx, entries[0]); err != nil {
			return fmt.Errorf("failed to refresh record %s: %w", id, err)
		}
		result.Refreshed++
		r.logger.Debug("refreshed record processed during rebuild", "id", id)
	}
	if record.IsIndexed() {
		return nil
	}
	record.IndexedAt = &now
	result.Stamped++
	return r.repo.UpdateRecord(ctx, record)
}
