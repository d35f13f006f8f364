package notify

import (
	"context"
	"log/slog"
)

// Channel delivers notifications. Implementations must be thread-safe.
type Channel interface {
	// Name identifies the channel in logs and metrics.
	Name() string

	// Deliver sends n. An error means the notification was not delivered.
	Deliver(ctx context.Context, n *Notification) error
}

// LogChannel "delivers" notifications by logging them. It stands in for a
// real channel when none is configured.
type LogChannel struct {
	logger *slog.Logger
}

var _ Channel = (*LogChannel)(nil)

// NewLogChannel creates a LogChannel. A nil logger uses slog.Default().
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger.With("channel", "log")}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(ctx context.Context, n *Notification) error {
	c.logger.Info("notification", "record", n.RecordID, "subject", n.Subject)
	return nil
}
