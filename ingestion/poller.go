package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/mailbox"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/retry"
	"github.com/poiesic/mailsift/storage"
)

// Poller defaults.
const (
	DefaultPollInterval = time.Minute
	DefaultMaxBackoff   = 15 * time.Minute
)

// Sink accepts fetched messages. It returns false for duplicates.
// Pipeline.Enqueue is the production Sink.
type Sink interface {
	Enqueue(ctx context.Context, raw *core.RawMessage) (bool, error)
}

// Poller reads new mail from mailbox folders and hands it to a Sink.
// Cycles run one at a time.
type Poller struct {
	fetcher    mailbox.Fetcher
	cursors    storage.CursorRepository
	sink       Sink
	folders    []string
	interval   time.Duration
	maxBackoff time.Duration
	markSeen   bool
	logger     *slog.Logger
}

// PollerOption configures a Poller.
type PollerOption func(*Poller) error

// WithFolders sets the folders to poll. Default is INBOX.
func WithFolders(folders ...string) PollerOption {
	return func(p *Poller) error {
		if len(folders) == 0 {
			return ErrNoFolders
		}
		for _, f := range folders {
			if f == "" {
				return core.ErrEmptyFolder
			}
		}
		p.folders = slices.Clone(folders)
		return nil
	}
}

// WithInterval sets the delay between cycles. Default is DefaultPollInterval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("poll interval must be positive, got %v", d)
		}
		p.interval = d
		return nil
	}
}

// WithMaxBackoff caps the delay after consecutive failed cycles.
// Default is DefaultMaxBackoff.
func WithMaxBackoff(d time.Duration) PollerOption {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("max backoff must be positive, got %v", d)
		}
		p.maxBackoff = d
		return nil
	}
}

// WithMarkSeen flags handed-off messages as read on the server.
func WithMarkSeen(markSeen bool) PollerOption {
	return func(p *Poller) error {
		p.markSeen = markSeen
		return nil
	}
}

// WithPollerLogger sets a custom logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPoller creates a poller.
func NewPoller(fetcher mailbox.Fetcher, cursors storage.CursorRepository, sink Sink, opts ...PollerOption) (*Poller, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if cursors == nil {
		return nil, ErrCursorRepositoryRequired
	}
	if sink == nil {
		return nil, ErrSinkRequired
	}

	p := &Poller{
		fetcher:    fetcher,
		cursors:    cursors,
		sink:       sink,
		folders:    []string{"INBOX"},
		interval:   DefaultPollInterval,
		maxBackoff: DefaultMaxBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "poller")
	return p, nil
}

// Folders returns the polled folders.
func (p *Poller) Folders() []string {
	return slices.Clone(p.folders)
}

// Batch is the set of new messages fetched from one folder. The folder
// cursor moves only when the batch is committed.
type Batch struct {
	Folder   string
	Messages []*core.RawMessage

	since     uint32
	cursors   storage.CursorRepository
	committed bool
}

// HighestUID returns the largest UID in the batch, or the cursor position
// the batch was fetched from when it is empty.
func (b *Batch) HighestUID() uint32 {
	if len(b.Messages) == 0 {
		return b.since
	}
	return b.Messages[len(b.Messages)-1].UID
}

// Commit advances the folder cursor past every message in the batch.
func (b *Batch) Commit(ctx context.Context) error {
	if b.committed {
		return ErrBatchCommitted
	}
	if b.HighestUID() > b.since {
		err := b.cursors.SaveCursor(ctx, &core.Cursor{
			Folder:    b.Folder,
			LastUID:   b.HighestUID(),
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	b.committed = true
	return nil
}

// Poll fetches the messages of folder past its cursor, in ascending UID
// order. The cursor is not moved; commit the returned batch once its
// messages are safely handed off.
func (p *Poller) Poll(ctx context.Context, folder string) (*Batch, error) {
	if folder == "" {
		return nil, core.ErrEmptyFolder
	}
	cursor, err := p.cursors.LoadCursor(ctx, folder)
	if err != nil {
		return nil, err
	}
	var since uint32
	if cursor != nil {
		since = cursor.LastUID
	}

	fetched, err := p.fetcher.FetchNew(ctx, folder, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetching %s: %w", core.ErrTransientTransport, folder, err)
	}

	// Servers answer "n:*" with the newest message even when it is older
	// than n.
	msgs := make([]*core.RawMessage, 0, len(fetched))
	for _, msg := range fetched {
		if msg.UID <= since {
			continue
		}
		if msg.Folder == "" {
			msg.Folder = folder
		}
		msgs = append(msgs, msg)
	}
	slices.SortFunc(msgs, func(a, b *core.RawMessage) int { return cmp.Compare(a.UID, b.UID) })

	return &Batch{Folder: folder, Messages: msgs, since: since, cursors: p.cursors}, nil
}

// CycleStats reports the outcome of one poll cycle.
type CycleStats struct {
	Fetched    int
	New        int
	Duplicates int
	Invalid    int
}

// RunCycle polls every folder once. A folder whose fetch fails is skipped
// and the others are still polled; the joined errors are returned.
func (p *Poller) RunCycle(ctx context.Context) (*CycleStats, error) {
	logger := p.logger.With("cycle", uuid.NewString())
	stats := &CycleStats{}
	var errs []error

	for _, folder := range p.folders {
		err := p.pollFolder(ctx, logger.With("folder", folder), folder, stats)
		metrics.RecordPollCycle(folder, err)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logger.Warn("poll failed", "folder", folder, "err", err)
			errs = append(errs, err)
		}
	}

	if stats.Fetched > 0 {
		logger.Info("poll cycle complete",
			"fetched", stats.Fetched, "new", stats.New,
			"duplicates", stats.Duplicates, "invalid", stats.Invalid)
	}
	return stats, errors.Join(errs...)
}

func (p *Poller) pollFolder(ctx context.Context, logger *slog.Logger, folder string, stats *CycleStats) error {
	batch, err := p.Poll(ctx, folder)
	if err != nil {
		return err
	}
	stats.Fetched += len(batch.Messages)

	var handed []*core.RawMessage
	for _, msg := range batch.Messages {
		created, err := p.sink.Enqueue(ctx, msg)
		switch {
		case errors.Is(err, core.ErrContractViolation):
			// Unidentifiable; moving past it is the only option.
			stats.Invalid++
			logger.Warn("unusable message skipped", "uid", msg.UID, "err", err)
		case err != nil:
			// Not handed off: leave the cursor so the next cycle refetches.
			return fmt.Errorf("handing off %s uid %d: %w", folder, msg.UID, err)
		case created:
			stats.New++
			handed = append(handed, msg)
		default:
			stats.Duplicates++
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("committing cursor for %s: %w", folder, err)
	}

	if p.markSeen {
		for _, msg := range handed {
			if err := p.fetcher.MarkSeen(ctx, folder, msg.UID); err != nil {
				logger.Warn("error marking message seen", "uid", msg.UID, "err", err)
			}
		}
	}
	return nil
}

// Run polls on the configured interval until ctx is done. Each delay is
// measured from the end of the previous cycle. Consecutive failed cycles
// back off exponentially up to the configured maximum.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "folders", p.folders, "interval", p.interval)
	failures := 0
	for {
		_, err := p.RunCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("poller stopped")
			return nil
		}

		delay := p.interval
		if err != nil {
			failures++
			delay = max(delay, retry.Backoff(p.interval, p.maxBackoff, failures+1))
			p.logger.Warn("poll cycle failed, backing off", "failures", failures, "delay", delay, "err", err)
		} else {
			failures = 0
		}

		if err := retry.Sleep(ctx, delay); err != nil {
			p.logger.Info("poller stopped")
			return nil
		}
	}
}
