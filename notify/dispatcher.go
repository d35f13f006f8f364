package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/metrics"
	"github.com/poiesic/mailsift/retry"
	"github.com/poiesic/mailsift/storage"
)

// Dispatcher owns the notification events and drives their delivery.
type Dispatcher struct {
	events   storage.NotificationRepository
	records  storage.RecordRepository
	channel  Channel
	alerts   Channel
	config   *Config
	locks    storage.KeyedMutex
	pool     *ants.Pool
	inflight sync.WaitGroup
	now      func() time.Time
	logger   *slog.Logger

	// ctx is used for triggered background attempts; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		d.now = now
		return nil
	}
}

// WithAlertChannel sends operator alerts through ch instead of the
// notification channel.
func WithAlertChannel(ch Channel) Option {
	return func(d *Dispatcher) error {
		if ch == nil {
			return errors.New("alert channel cannot be nil")
		}
		d.alerts = ch
		return nil
	}
}

// NewDispatcher creates a dispatcher. A nil config uses DefaultConfig.
func NewDispatcher(
	events storage.NotificationRepository,
	records storage.RecordRepository,
	channel Channel,
	config *Config,
	opts ...Option,
) (*Dispatcher, error) {
	if events == nil {
		return nil, ErrNotificationRepositoryRequired
	}
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if channel == nil {
		return nil, ErrChannelRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	d := &Dispatcher{
		events:  events,
		records: records,
		channel: channel,
		alerts:  channel,
		config:  config,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	// Triggered attempts never block the pipeline; the sweep covers
	// anything the pool turns away.
	pool, err := ants.NewPool(config.Workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	d.pool = pool
	d.logger = d.logger.With("component", "dispatcher", "channel", channel.Name())
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Enqueue creates the queued event for recordID unless one already exists,
// in any status, and triggers a delivery attempt in the background. In
// digest mode the next sweep makes the attempt instead.
// Calling it again for the same record is a no-op.
func (d *Dispatcher) Enqueue(ctx context.Context, recordID core.ID) error {
	now := d.now().UTC()
	created, err := d.events.CreateNotification(ctx, &core.NotificationEvent{
		RecordId:      recordID,
		Status:        core.NotificationQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	d.logger.Info("notification queued", "record", recordID)
	if d.config.Digest {
		return nil
	}

	d.inflight.Add(1)
	err = d.pool.Submit(func() {
		defer d.inflight.Done()
		if _, err := d.Dispatch(d.ctx, recordID); err != nil {
			d.logger.Debug("triggered attempt failed", "record", recordID, "err", err)
		}
	})
	if err != nil {
		d.inflight.Done()
		d.logger.Debug("attempt deferred to sweep", "record", recordID, "err", err)
	}
	return nil
}

// Dispatch attempts delivery for recordID if its event is queued and due,
// and returns the event as it stands afterwards. Terminal and not-yet-due
// events are returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, recordID core.ID) (*core.NotificationEvent, error) {
	unlock := d.locks.Lock(recordID)
	defer unlock()

	event, err := d.events.GetNotification(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if event.Status.IsTerminal() || event.NextAttemptAt.After(d.now()) {
		return event, nil
	}
	return event, d.attempt(ctx, event)
}

// attempt delivers once and records the outcome. Caller holds the event lock.
func (d *Dispatcher) attempt(ctx context.Context, event *core.NotificationEvent) error {
	err := d.deliver(ctx, event.RecordId)
	if err != nil && ctx.Err() != nil {
		// Shutdown, not a delivery failure; the event stays as it was.
		return errors.Join(ctx.Err(), err)
	}
	return d.settle(ctx, event, err)
}

// settle records the outcome of one delivery attempt. Caller holds the
// event lock.
func (d *Dispatcher) settle(ctx context.Context, event *core.NotificationEvent, err error) error {
	logger := d.logger.With("record", event.RecordId)
	now := d.now().UTC()
	event.AttemptCount++
	event.LastAttemptAt = now

	var result error
	switch {
	case err == nil:
		event.Status = core.NotificationSent
		event.SentAt = now
		event.NextAttemptAt = time.Time{}
		event.LastError = ""
		metrics.IncrementNotification(d.channel.Name(), "sent")
		logger.Info("notification sent", "attempts", event.AttemptCount)

	case event.AttemptCount >= d.config.MaxAttempts:
		event.Status = core.NotificationExhausted
		event.NextAttemptAt = time.Time{}
		event.LastError = err.Error()
		result = fmt.Errorf("%w: record %s after %d attempts: %w", core.ErrExhaustedRetry, event.RecordId, event.AttemptCount, err)
		metrics.IncrementNotification(d.channel.Name(), "exhausted")
		logger.Error("notification delivery exhausted", "attempts", event.AttemptCount, "err", result)

	default:
		delay := retry.Backoff(d.config.BaseDelay, d.config.MaxDelay, event.AttemptCount)
		event.NextAttemptAt = now.Add(delay)
		event.LastError = err.Error()
		result = err
		metrics.IncrementNotification(d.channel.Name(), "failed")
		logger.Warn("notification delivery failed", "attempts", event.AttemptCount, "retry_in", delay, "err", err)
	}

	if uerr := d.events.UpdateNotification(ctx, event); uerr != nil {
		return errors.Join(result, fmt.Errorf("saving notification %s: %w", event.RecordId, uerr))
	}
	if event.Status == core.NotificationExhausted {
		_ = d.Alert(ctx, "Notification delivery exhausted",
			fmt.Sprintf("The notification for record %s was not delivered after %d attempts and will not be retried.",
				event.RecordId, event.AttemptCount),
			map[string]string{"record": event.RecordId.String(), "last_error": event.LastError})
	}
	return result
}

func (d *Dispatcher) deliver(ctx context.Context, recordID core.ID) error {
	record, err := d.records.GetRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("loading record: %w", err)
	}
	raw, err := d.records.GetRawMessage(ctx, recordID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("loading raw message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	defer cancel()
	return d.channel.Deliver(ctx, Compose(record, raw))
}

// Sweep attempts every queued event whose backoff has elapsed and returns
// how many were attempted. In digest mode several due events go out as one
// notification.
func (d *Dispatcher) Sweep(ctx context.Context) (int, error) {
	queued, err := d.events.ListNotifications(ctx, core.NotificationQueued)
	if err != nil {
		return 0, err
	}

	now := d.now()
	var due []core.ID
	for _, event := range queued {
		if !event.NextAttemptAt.After(now) {
			due = append(due, event.RecordId)
		}
	}

	if d.config.Digest && len(due) > 1 {
		n, err := d.dispatchDigest(ctx, due)
		if err != nil && ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, nil
	}

	attempted := 0
	for _, id := range due {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}
		attempted++
		if _, err := d.Dispatch(ctx, id); err != nil && ctx.Err() != nil {
			return attempted, ctx.Err()
		}
	}
	return attempted, nil
}

// dispatchDigest delivers the due events among ids as one notification and
// returns how many events it attempted. The delivery counts as one attempt
// for each of them.
func (d *Dispatcher) dispatchDigest(ctx context.Context, ids []core.ID) (int, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	for _, id := range ids {
		unlock := d.locks.Lock(id)
		defer unlock()
	}

	now := d.now()
	var events []*core.NotificationEvent
	var records []*core.EmailRecord
	var errs []error
	for _, id := range ids {
		event, err := d.events.GetNotification(ctx, id)
		if err != nil {
			return 0, err
		}
		if event.Status.IsTerminal() || event.NextAttemptAt.After(now) {
			continue
		}
		record, err := d.records.GetRecord(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			// Only this event takes the failed attempt.
			errs = append(errs, d.settle(ctx, event, fmt.Errorf("loading record: %w", err)))
			continue
		}
		events = append(events, event)
		records = append(records, record)
	}

	switch len(events) {
	case 0:
		return len(errs), errors.Join(errs...)
	case 1:
		return len(errs) + 1, errors.Join(append(errs, d.attempt(ctx, events[0]))...)
	}

	dctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	err := d.channel.Deliver(dctx, ComposeDigest(records))
	cancel()
	if err != nil && ctx.Err() != nil {
		return 0, errors.Join(ctx.Err(), err)
	}
	d.logger.Info("digest attempted", "records", len(events), "err", err)

	for _, event := range events {
		errs = append(errs, d.settle(ctx, event, err))
	}
	return len(errs), errors.Join(errs...)
}

// Run sweeps on the configured interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started", "interval", d.config.SweepInterval)
	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		if n, err := d.Sweep(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("sweep failed", "err", err)
		} else if n > 0 {
			d.logger.Debug("sweep complete", "attempted", n)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SendTest delivers a test notification directly through the channel.
// No event is recorded.
func (d *Dispatcher) SendTest(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	defer cancel()
	err := d.channel.Deliver(ctx, ComposeTest(d.now()))
	metrics.IncrementNotification(d.channel.Name(), "test_"+metrics.Status(err))
	return err
}

// Alert sends an operator alert through the alert channel. Alerts are not
// recorded or retried; a failure is logged and returned. It does nothing
// when alerts are disabled.
func (d *Dispatcher) Alert(ctx context.Context, subject, message string, details map[string]string) error {
	if !d.config.Alerts {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	defer cancel()
	err := d.alerts.Deliver(ctx, ComposeAlert(subject, message, details, d.now()))
	metrics.IncrementNotification(d.alerts.Name(), "alert_"+metrics.Status(err))
	if err != nil {
		d.logger.Error("error sending alert", "subject", subject, "err", err)
		return err
	}
	d.logger.Info("alert sent", "subject", subject)
	return nil
}

// Wait blocks until triggered background attempts finish.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Close waits up to timeout for background attempts, then cancels the rest
// and releases the worker pool.
func (d *Dispatcher) Close(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		d.cancel()
		<-done
	}
	d.cancel()
	return d.pool.ReleaseTimeout(timeout)
}
