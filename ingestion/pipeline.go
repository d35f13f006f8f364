package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/storage"
)

// DefaultStaleAfter is how long a record may sit pending, not scheduled,
// before RequeueStale schedules it again.
const DefaultStaleAfter = 10 * time.Minute

// Notifier receives the ids of processed high-importance records.
// Enqueue must be idempotent.
type Notifier interface {
	Enqueue(ctx context.Context, recordID core.ID) error
}

// Alerter reports conditions that need an operator. Implementations log
// their own delivery failures.
type Alerter interface {
	Alert(ctx context.Context, subject, message string, details map[string]string) error
}

// ProcessOptions holds optional parameters for Process.
type ProcessOptions struct {
	// Force reprocesses records that are already processed or quarantined.
	Force bool
}

// RecoverStats reports what Recover did.
type RecoverStats struct {
	Requeued  int
	Reindexed int
	Notified  int // includes records whose event already existed
}

// Pipeline orchestrates processing of ingested messages.
type Pipeline struct {
	records    storage.RecordRepository
	index      VectorIndex
	provider   ai.AIProvider
	notifier   Notifier
	alerter    Alerter
	proc       *processor
	pool       *ants.Pool
	poolSize   int
	locks      storage.KeyedMutex
	inflight   sync.WaitGroup
	scheduled  map[core.ID]struct{}
	schedMu    sync.Mutex
	maxChars   int
	staleAfter time.Duration
	logger     *slog.Logger

	// ctx is handed to pool workers; Close cancels it when the drain
	// timeout passes.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithNotifier sets where high-importance records are announced.
// Without one, nothing is announced.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) error {
		p.notifier = n
		return nil
	}
}

// WithAlerter sets who is told about quarantined records.
func WithAlerter(a Alerter) Option {
	return func(p *Pipeline) error {
		p.alerter = a
		return nil
	}
}

// WithMaxInputChars bounds the summarizer input in runes.
// Default is DefaultMaxInputChars.
func WithMaxInputChars(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("max input chars must be positive, got %d", n)
		}
		p.maxChars = n
		return nil
	}
}

// WithStaleAfter sets how old an unscheduled pending record must be before
// RequeueStale schedules it again. Default is DefaultStaleAfter.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("stale-after must not be negative, got %v", d)
		}
		p.staleAfter = d
		return nil
	}
}

// NewPipeline creates a new processing pipeline.
func NewPipeline(
	records storage.RecordRepository,
	idx VectorIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		records:    records,
		index:      idx,
		provider:   provider,
		poolSize:   poolSize,
		maxChars:   DefaultMaxInputChars,
		staleAfter: DefaultStaleAfter,
		scheduled:  make(map[core.ID]struct{}),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	p.logger = p.logger.With("component", "pipeline")
	p.proc = newProcessor(provider, idx, p.maxChars, p.logger)
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p, nil
}

// Enqueue stores raw as a pending record and schedules it for processing.
// It returns false without scheduling anything when a record for the same
// folder and UID already exists, in any state.
//
// A message that cannot be identified (no folder or UID) is rejected with a
// contract violation. Any other invalid message is stored failed and
// quarantined so it is not fetched again.
func (p *Pipeline) Enqueue(ctx context.Context, raw *core.RawMessage) (bool, error) {
	if raw == nil || raw.Folder == "" || raw.UID == 0 {
		metrics.IncrementIngested("invalid")
		return false, core.ValidateRawMessage(raw)
	}

	record := core.NewPendingRecord(raw)
	invalid := core.ValidateRawMessage(raw)
	if invalid != nil {
		quarantine(record, "validate", invalid)
	}

	created, err := p.records.CreatePending(ctx, record, raw)
	if err != nil {
		return false, err
	}
	if !created {
		metrics.IncrementIngested("duplicate")
		p.logger.Debug("duplicate message skipped", "id", record.Id, "folder", raw.Folder, "uid", raw.UID)
		return false, nil
	}
	if invalid != nil {
		metrics.IncrementIngested("invalid")
		metrics.IncrementProcessed("quarantined")
		p.logger.Warn("invalid message quarantined", "id", record.Id, "folder", raw.Folder, "uid", raw.UID, "err", invalid)
		p.alertQuarantined(ctx, record)
		return true, nil
	}

	metrics.IncrementIngested("new")
	if _, err := p.submit(record.Id); err != nil {
		// The record stays pending; RequeueStale picks it up.
		p.logger.Error("error scheduling record", "id", record.Id, "err", err)
	}
	return true, nil
}

// submit schedules background processing of a stored record. It blocks
// while every worker is busy. It returns false when the record is already
// scheduled.
func (p *Pipeline) submit(id core.ID) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPipelineClosed
	}

	p.schedMu.Lock()
	if _, ok := p.scheduled[id]; ok {
		p.schedMu.Unlock()
		return false, nil
	}
	p.scheduled[id] = struct{}{}
	p.schedMu.Unlock()

	p.inflight.Add(1)
	err := p.pool.Submit(func() {
		defer p.inflight.Done()
		defer p.unschedule(id)
		if _, err := p.ProcessID(p.ctx, id, ProcessOptions{}); err != nil {
			p.logger.Debug("background processing ended with error", "id", id, "err", err)
		}
	})
	if err != nil {
		p.inflight.Done()
		p.unschedule(id)
		return false, err
	}
	return true, nil
}

func (p *Pipeline) unschedule(id core.ID) {
	p.schedMu.Lock()
	delete(p.scheduled, id)
	p.schedMu.Unlock()
}

func (p *Pipeline) isScheduled(id core.ID) bool {
	p.schedMu.Lock()
	defer p.schedMu.Unlock()
	_, ok := p.scheduled[id]
	return ok
}

// ProcessID processes the stored record with the given id.
func (p *Pipeline) ProcessID(ctx context.Context, id core.ID, opts ProcessOptions) (*core.EmailRecord, error) {
	raw, err := p.records.GetRawMessage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading raw message %s: %w", id, err)
	}
	return p.Process(ctx, raw, opts)
}

// Process runs every step for raw synchronously in the caller and returns
// the resulting record. A record is created if none exists yet.
//
// An already processed or quarantined record is returned unchanged unless
// opts.Force is set. A cancelled ctx leaves the record pending.
func (p *Pipeline) Process(ctx context.Context, raw *core.RawMessage, opts ProcessOptions) (*core.EmailRecord, error) {
	if raw == nil || raw.Folder == "" || raw.UID == 0 {
		return nil, core.ValidateRawMessage(raw)
	}
	id := raw.RecordID()

	unlock := p.locks.Lock(id)
	defer unlock()

	record, err := p.records.GetRecord(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		record = core.NewPendingRecord(raw)
		if _, err = p.records.CreatePending(ctx, record, raw); err != nil {
			return nil, err
		}
		record, err = p.records.GetRecord(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if !opts.Force && (record.State == core.StateProcessed || record.Quarantined) {
		return record, nil
	}

	logger := p.logger.With("id", id, "folder", raw.Folder, "uid", raw.UID)

	if err := core.ValidateRawMessage(raw); err != nil {
		record.Attempts++
		quarantine(record, "validate", err)
		return record, p.persistFailure(ctx, logger, record, err)
	}

	result, err := p.proc.analyze(ctx, raw)
	if err != nil {
		return p.fail(ctx, logger, record, err)
	}

	// Summary, category, importance and entities land in one write.
	record.Attempts++
	record.State = core.StateProcessed
	record.Summary = result.summary.Text
	record.Category = result.classification.Category
	record.Importance = result.classification.Importance
	record.Entities = &result.summary.Entities
	record.FailureReason = ""
	record.Quarantined = false
	record.IndexedAt = nil
	if err := core.ValidateProcessedRecord(record); err != nil {
		return nil, err
	}
	if err := p.records.UpdateRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("saving processed record %s: %w", id, err)
	}
	metrics.IncrementProcessed("processed")

	if err := p.stampIndexed(ctx, record, result.vector); err != nil {
		// Recover reindexes records without IndexedAt.
		logger.Error("error indexing record", "err", err)
	}

	p.announce(ctx, logger, record)
	logger.Info("record processed", "category", record.Category, "importance", record.Importance)
	return record, nil
}

// stampIndexed upserts the vector entry and then records IndexedAt.
func (p *Pipeline) stampIndexed(ctx context.Context, record *core.EmailRecord, vector []float32) error {
	if err := p.proc.upsert(ctx, record, vector); err != nil {
		return err
	}
	now := time.Now().UTC()
	record.IndexedAt = &now
	return p.records.UpdateRecord(ctx, record)
}

// announce hands high-importance records to the notifier.
func (p *Pipeline) announce(ctx context.Context, logger *slog.Logger, record *core.EmailRecord) bool {
	if p.notifier == nil || record.Importance != core.ImportanceHigh {
		return false
	}
	if err := p.notifier.Enqueue(ctx, record.Id); err != nil {
		// Recover re-enqueues notifications for high-importance records.
		logger.Error("error enqueueing notification", "err", err)
		return false
	}
	return true
}

// fail records a step failure. Cancellation leaves the record pending.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, record *core.EmailRecord, err error) (*core.EmailRecord, error) {
	if ctx.Err() != nil {
		metrics.IncrementProcessed("interrupted")
		logger.Info("processing interrupted, record left pending", "err", err)
		return record, errors.Join(ctx.Err(), err)
	}

	step, cause := "process", err
	var se *stepError
	if errors.As(err, &se) {
		step, cause = se.step, se.err
	}

	record.Attempts++
	if errors.Is(err, core.ErrContractViolation) {
		quarantine(record, step, cause)
	} else {
		record.State = core.StateFailed
		record.FailureReason = fmt.Sprintf("%s: %v", step, cause)
		record.Quarantined = false
	}
	return record, p.persistFailure(ctx, logger, record, err)
}

func (p *Pipeline) persistFailure(ctx context.Context, logger *slog.Logger, record *core.EmailRecord, cause error) error {
	if err := p.records.UpdateRecord(ctx, record); err != nil {
		return errors.Join(cause, fmt.Errorf("saving failed record %s: %w", record.Id, err))
	}
	if record.Quarantined {
		metrics.IncrementProcessed("quarantined")
		logger.Warn("record quarantined", "reason", record.FailureReason)
		p.alertQuarantined(ctx, record)
	} else {
		metrics.IncrementProcessed("failed")
		logger.Warn("record failed", "reason", record.FailureReason)
	}
	return cause
}

func (p *Pipeline) alertQuarantined(ctx context.Context, record *core.EmailRecord) {
	if p.alerter == nil {
		return
	}
	_ = p.alerter.Alert(ctx, "Message quarantined",
		fmt.Sprintf("Message %d in %s could not be processed and will not be retried automatically.", record.UID, record.Folder),
		map[string]string{
			"record":  record.Id.String(),
			"folder":  record.Folder,
			"uid":     strconv.FormatUint(uint64(record.UID), 10),
			"subject": record.Subject,
			"reason":  record.FailureReason,
		})
}

func quarantine(record *core.EmailRecord, step string, err error) {
	record.State = core.StateFailed
	record.FailureReason = fmt.Sprintf("%s: %v", step, err)
	record.Quarantined = true
}

// Recover repairs work interrupted by a crash or shutdown. It is meant to
// run at startup. It requeues every pending record that is not already
// scheduled, whatever its age, reindexes processed records that lack an
// index entry, and re-enqueues notifications for processed high-importance
// records.
func (p *Pipeline) Recover(ctx context.Context) (*RecoverStats, error) {
	var pending []core.ID
	var unindexed, important []*core.EmailRecord

	err := p.records.ForEachRecord(ctx, func(record *core.EmailRecord) error {
		switch record.State {
		case core.StatePending:
			pending = append(pending, record.Id)
		case core.StateProcessed:
			if !record.IsIndexed() || !p.index.Has(record.Id) {
				unindexed = append(unindexed, record)
			}
			if record.Importance == core.ImportanceHigh {
				important = append(important, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := &RecoverStats{}
	for _, record := range unindexed {
		if err := p.Reindex(ctx, record.Id); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			p.logger.Error("error reindexing record", "id", record.Id, "err", err)
			continue
		}
		stats.Reindexed++
	}
	for _, record := range important {
		if p.announce(ctx, p.logger.With("id", record.Id), record) {
			stats.Notified++
		}
	}
	for _, id := range pending {
		submitted, err := p.submit(id)
		if err != nil {
			return stats, err
		}
		if submitted {
			stats.Requeued++
		}
	}

	if stats.Requeued+stats.Reindexed > 0 {
		p.logger.Info("recovered interrupted work",
			"requeued", stats.Requeued, "reindexed", stats.Reindexed, "notified", stats.Notified)
	}
	return stats, nil
}

// RequeueStale schedules pending records that are not scheduled and have
// not changed for the stale threshold, and returns how many it scheduled.
// Such records were left behind by a failed submit.
func (p *Pipeline) RequeueStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-p.staleAfter)
	pending, err := p.records.ListRecords(ctx, &storage.RecordFilter{
		States: []core.ProcessingState{core.StatePending},
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, record := range pending {
		if record.UpdatedAt.After(cutoff) || p.isScheduled(record.Id) {
			continue
		}
		submitted, err := p.submit(record.Id)
		if err != nil {
			return n, err
		}
		if submitted {
			n++
		}
	}
	if n > 0 {
		p.logger.Info("requeued stale pending records", "records", n)
	}
	return n, nil
}

// RunRequeue calls RequeueStale every interval until ctx is done. A
// non-positive interval uses the stale threshold, or one minute when that
// is zero.
func (p *Pipeline) RunRequeue(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = p.staleAfter
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := p.RequeueStale(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("error requeueing stale records", "err", err)
		}
	}
}

// Reindex re-embeds the summary of a processed record and writes its index
// entry.
func (p *Pipeline) Reindex(ctx context.Context, id core.ID) error {
	unlock := p.locks.Lock(id)
	defer unlock()

	record, err := p.records.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if record.State != core.StateProcessed {
		return nil
	}
	vector, err := p.proc.embed(ctx, record.Summary)
	if err != nil {
		return err
	}
	return p.stampIndexed(ctx, record, vector)
}

// RetryFailed schedules every failed record that is not quarantined and
// returns how many were scheduled.
func (p *Pipeline) RetryFailed(ctx context.Context) (int, error) {
	failed, err := p.records.ListRecords(ctx, &storage.RecordFilter{
		States: []core.ProcessingState{core.StateFailed},
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for _, record := range failed {
		if record.Quarantined {
			continue
		}
		submitted, err := p.submit(record.Id)
		if err != nil {
			return n, err
		}
		if submitted {
			n++
		}
	}
	p.logger.Info("retrying failed records", "records", n)
	return n, nil
}

// LockRecord acquires the per-record lock the pipeline holds while it
// writes a record, and returns the function that releases it.
func (p *Pipeline) LockRecord(id core.ID) (unlock func()) {
	return p.locks.Lock(id)
}

// Wait blocks until every scheduled record has been processed.
func (p *Pipeline) Wait() {
	p.inflight.Wait()
}

// Close stops accepting work and waits up to timeout for in-flight records.
// Work still running after the timeout is cancelled and its records stay
// pending. The pipeline should not be used after calling Close.
func (p *Pipeline) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("shutdown timeout reached, cancelling in-flight records")
		p.cancel()
		<-done
	}
	p.cancel()
	return p.pool.ReleaseTimeout(timeout)
}
