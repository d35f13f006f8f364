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

// Package mailsift wires the mail intelligence pipeline together: the
// record store, the vector index, the model gateway, the ingestion poller
// and pipeline, the notification dispatcher and the searcher.
package mailsift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/ai/openai"
	"github.com/poiesic/mailsift/config"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/ingestion"
	"github.com/poiesic/mailsift/mailbox"
	"github.com/poiesic/mailsift/mailbox/imap"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/notify"
	"github.com/poiesic/mailsift/reindex"
	"github.com/poiesic/mailsift/search"
	"github.com/poiesic/mailsift/storage"
	"github.com/poiesic/mailsift/storage/badger"
)

// ErrMailboxNotConfigured is returned by Run when no mailbox is configured.
var ErrMailboxNotConfigured = errors.New("mailbox not configured")

// System is a running mailsift instance.
type System struct {
	cfg        *config.Config
	store      *badger.Store
	index      *index.Index
	provider   ai.AIProvider
	pipeline   *ingestion.Pipeline
	poller     *ingestion.Poller
	dispatcher *notify.Dispatcher
	searcher   *search.Searcher
	logger     *slog.Logger
}

// Option configures a System.
type Option func(*options)

type options struct {
	provider ai.AIProvider
	fetcher  mailbox.Fetcher
	channel  notify.Channel
	logger   *slog.Logger
	inMemory bool
}

// WithProvider replaces the gateway built from the configuration.
func WithProvider(p ai.AIProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithFetcher replaces the IMAP mailbox built from the configuration.
func WithFetcher(f mailbox.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithChannel replaces the notification channel built from the configuration.
func WithChannel(c notify.Channel) Option {
	return func(o *options) { o.channel = c }
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithInMemoryStore keeps records in memory instead of under the data dir.
func WithInMemoryStore() Option {
	return func(o *options) { o.inMemory = true }
}

// Open builds a System from cfg. The mailbox is optional: without one the
// system serves queries and maintenance but Run fails.
func Open(cfg *config.Config, opts ...Option) (*System, error) {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	s := &System{cfg: cfg, logger: o.logger.With("component", "system")}
	if err := s.open(o); err != nil {
		s.closeResources()
		return nil, err
	}
	return s, nil
}

func (s *System) open(o *options) error {
	cfg := s.cfg
	var err error

	if o.inMemory {
		s.store, err = badger.OpenMemory()
	} else {
		s.store, err = badger.Open(cfg.RecordsPath())
	}
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}

	indexOpts := []index.Option{index.WithLogger(o.logger)}
	if cfg.AI.Dimension > 0 {
		indexOpts = append(indexOpts, index.WithDimension(cfg.AI.Dimension))
	}
	if s.index, err = index.Open(cfg.IndexPath(), indexOpts...); err != nil {
		return fmt.Errorf("opening vector index: %w", err)
	}
	metrics.SetIndexEntries(s.index.Len())

	s.provider = o.provider
	if s.provider == nil {
		aiConfig := cfg.AIConfig()
		if err := aiConfig.Validate(); err != nil {
			return err
		}
		provider, err := openai.NewProvider(aiConfig)
		if err != nil {
			return fmt.Errorf("creating model gateway: %w", err)
		}
		s.provider = ai.NewRetryingProvider(provider, aiConfig.RetryPolicy(), aiConfig.CallTimeout)
	}

	channel := o.channel
	if channel == nil {
		if channel, err = newChannel(cfg, o.logger); err != nil {
			return err
		}
	}
	s.dispatcher, err = notify.NewDispatcher(s.store, s.store, channel, cfg.NotifyConfig(), notify.WithLogger(o.logger))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	s.pipeline, err = ingestion.NewPipeline(s.store, s.index, s.provider,
		ingestion.WithPoolSize(cfg.Pipeline.Workers),
		ingestion.WithMaxInputChars(cfg.Pipeline.MaxInputChars),
		ingestion.WithStaleAfter(cfg.Pipeline.StaleAfter),
		ingestion.WithNotifier(s.dispatcher),
		ingestion.WithAlerter(s.dispatcher),
		ingestion.WithLogger(o.logger),
	)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	fetcher := o.fetcher
	if fetcher == nil && cfg.Mailbox.Host != "" {
		if fetcher, err = imap.NewClient(cfg.IMAPConfig()); err != nil {
			return err
		}
	}
	if fetcher != nil {
		s.poller, err = ingestion.NewPoller(fetcher, s.store, s.pipeline,
			ingestion.WithFolders(cfg.Mailbox.Folders...),
			ingestion.WithInterval(cfg.Mailbox.PollInterval),
			ingestion.WithMaxBackoff(cfg.Mailbox.MaxBackoff),
			ingestion.WithMarkSeen(cfg.Mailbox.MarkSeen),
			ingestion.WithPollerLogger(o.logger),
		)
		if err != nil {
			return fmt.Errorf("creating poller: %w", err)
		}
	}

	s.searcher, err = search.NewSearcher(s.store, s.index, s.provider,
		search.WithDefaultK(cfg.Search.DefaultK),
		search.WithMaxContextChars(cfg.Search.MaxContextChars),
		search.WithLogger(o.logger),
	)
	if err != nil {
		return fmt.Errorf("creating searcher: %w", err)
	}
	return nil
}

func newChannel(cfg *config.Config, logger *slog.Logger) (notify.Channel, error) {
	if cfg.Notify.Channel == config.ChannelSMTP {
		return notify.NewSMTPChannel(cfg.SMTPConfig())
	}
	return notify.NewLogChannel(logger), nil
}

// Run recovers interrupted work, then polls the mailbox, sweeps
// notifications and requeues stale pending records until ctx is done. In-flight records are drained by Close.
func (s *System) Run(ctx context.Context) error {
	if s.poller == nil {
		return ErrMailboxNotConfigured
	}

	stats, err := s.pipeline.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering: %w", err)
	}
	s.logger.Info("recovered interrupted work",
		"requeued", stats.Requeued, "reindexed", stats.Reindexed, "notified", stats.Notified)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.poller.Run(gctx) })
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.pipeline.RunRequeue(gctx, 0) })
	return g.Wait()
}

// PollOnce runs a single poll cycle over every folder.
func (s *System) PollOnce(ctx context.Context) (*ingestion.CycleStats, error) {
	if s.poller == nil {
		return nil, ErrMailboxNotConfigured
	}
	return s.poller.RunCycle(ctx)
}

// Ingest hands a message to the pipeline as the poller would.
func (s *System) Ingest(ctx context.Context, raw *core.RawMessage) (bool, error) {
	return s.pipeline.Enqueue(ctx, raw)
}

// Wait blocks until queued records and triggered notifications finish.
func (s *System) Wait() {
	s.pipeline.Wait()
	s.dispatcher.Wait()
}

// ListRecords returns records matching filter, newest first.
func (s *System) ListRecords(ctx context.Context, filter *storage.RecordFilter) ([]*core.EmailRecord, error) {
	return s.store.ListRecords(ctx, filter)
}

// GetRecord returns a record and the raw message it came from.
func (s *System) GetRecord(ctx context.Context, id core.ID) (*core.EmailRecord, *core.RawMessage, error) {
	record, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	raw, err := s.store.GetRawMessage(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, err
	}
	return record, raw, nil
}

// Reprocess runs the pipeline on a stored record again, synchronously.
func (s *System) Reprocess(ctx context.Context, id core.ID) (*core.EmailRecord, error) {
	return s.pipeline.ProcessID(ctx, id, ingestion.ProcessOptions{Force: true})
}

// Search returns the k records most similar to query.
func (s *System) Search(ctx context.Context, query string, k int, filter *index.Filter, monitor search.SearchMonitor) ([]*core.SearchResult, error) {
	return s.searcher.SearchWithMonitor(ctx, query, k, filter, monitor)
}

// Answer answers question from the most relevant records.
func (s *System) Answer(ctx context.Context, question string, filter *index.Filter) (*search.Answer, error) {
	return s.searcher.AnswerWithFilter(ctx, question, filter)
}

// Stats summarizes records, the index and notifications.
func (s *System) Stats(ctx context.Context) (*core.Stats, error) {
	stats := &core.Stats{
		ByState:       make(map[core.ProcessingState]int),
		ByCategory:    make(map[core.Category]int),
		ByImportance:  make(map[core.Importance]int),
		Notifications: make(map[core.NotificationStatus]int),
		IndexEntries:  s.index.Len(),
	}

	err := s.store.ForEachRecord(ctx, func(r *core.EmailRecord) error {
		stats.TotalRecords++
		stats.ByState[r.State]++
		if r.State == core.StateProcessed {
			stats.ByCategory[r.Category]++
			stats.ByImportance[r.Importance]++
		}
		if r.IsIndexed() {
			stats.Indexed++
		}
		if r.ReceivedAt.After(stats.LatestAt) {
			stats.LatestAt = r.ReceivedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		stats.Notifications[e.Status]++
	}
	return stats, nil
}

// RebuildIndex re-embeds every processed record and atomically replaces
// the vector index. A nil progress reports nothing.
func (s *System) RebuildIndex(ctx context.Context, progress reindex.Progress) (*reindex.Result, error) {
	opts := []reindex.Option{
		reindex.WithRecordLock(s.pipeline.LockRecord),
		reindex.WithLogger(s.logger),
	}
	if progress != nil {
		opts = append(opts, reindex.WithProgress(progress))
	}

	rcfg := reindex.DefaultConfig()
	if s.cfg.AI.MaxAttempts > 0 {
		rcfg.Retry = s.cfg.AIConfig().RetryPolicy()
	}
	rebuilder, err := reindex.NewRebuilder(s.store, s.index, s.provider.Embedder(), rcfg, opts...)
	if err != nil {
		return nil, err
	}
	return rebuilder.Run(ctx)
}

// TestNotification sends a test message through the notification channel.
func (s *System) TestNotification(ctx context.Context) error {
	return s.dispatcher.SendTest(ctx)
}

// RetryFailed resubmits failed records that are not quarantined.
func (s *System) RetryFailed(ctx context.Context) (int, error) {
	return s.pipeline.RetryFailed(ctx)
}

// Close drains in-flight work within the configured shutdown timeout and
// releases every resource.
func (s *System) Close() error {
	return s.closeResources()
}

func (s *System) closeResources() error {
	timeout := s.cfg.Pipeline.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var errs []error
	if s.pipeline != nil {
		errs = append(errs, s.pipeline.Close(timeout))
	}
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Close(timeout))
	}
	if s.provider != nil {
		errs = append(errs, s.provider.Close())
	}
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("error closing system", "err", err)
		return err
	}
	return nil
}
