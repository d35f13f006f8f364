package storage

import (
	"context"
	"slices"
	"time"

	"github.com/poiesic/mailsift/core"
)

// RecordFilter selects records for listing. Zero-valued fields match everything.
type RecordFilter struct {
	States      []core.ProcessingState
	Categories  []core.Category
	Importances []core.Importance

	// Since and Until bound ReceivedAt: Since <= ReceivedAt < Until.
	Since time.Time
	Until time.Time

	// Limit caps the number of returned records; 0 means no limit.
	Limit  int
	Offset int
}

// Matches reports whether record passes the filter, ignoring Limit and Offset.
func (f *RecordFilter) Matches(record *core.EmailRecord) bool {
	if f == nil {
		return true
	}
	if len(f.States) > 0 && !slices.Contains(f.States, record.State) {
		return false
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, record.Category) {
		return false
	}
	if len(f.Importances) > 0 && !slices.Contains(f.Importances, record.Importance) {
		return false
	}
	if !f.Since.IsZero() && record.ReceivedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !record.ReceivedAt.Before(f.Until) {
		return false
	}
	return true
}

// Validate checks the paging parameters.
func (f *RecordFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Limit < 0 || f.Offset < 0 {
		return ErrInvalidQuery
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return ErrInvalidQuery
	}
	return nil
}

// RecordRepository stores email records and the raw messages they were
// derived from. Implementations must be thread-safe.
type RecordRepository interface {
	// CreatePending stores a pending record together with its raw message
	// in one write, unless a record with the same id already exists.
	// Returns false without writing anything for duplicates.
	CreatePending(ctx context.Context, record *core.EmailRecord, raw *core.RawMessage) (bool, error)

	// Exists reports whether a record with the given id exists in any state.
	Exists(ctx context.Context, id core.ID) (bool, error)

	// GetRecord retrieves a single record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.EmailRecord, error)

	// GetRecords retrieves multiple records by their IDs, in the order given.
	// Returns only the records that exist (no error for missing records).
	GetRecords(ctx context.Context, ids ...core.ID) ([]*core.EmailRecord, error)

	// UpdateRecord replaces an existing record in a single write.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the record doesn't exist.
	UpdateRecord(ctx context.Context, record *core.EmailRecord) error

	// GetRawMessage retrieves the raw message a record was created from.
	// Returns ErrNotFound if it doesn't exist.
	GetRawMessage(ctx context.Context, id core.ID) (*core.RawMessage, error)

	// ListRecords returns records matching filter, most recently received first.
	ListRecords(ctx context.Context, filter *RecordFilter) ([]*core.EmailRecord, error)

	// ScanRecords returns up to limit records with an id greater than after,
	// in ascending id order. It is used to page through every record.
	ScanRecords(ctx context.Context, after core.ID, limit int) ([]*core.EmailRecord, error)

	// ForEachRecord calls fn for every record in id order, stopping at the
	// first error.
	ForEachRecord(ctx context.Context, fn func(*core.EmailRecord) error) error
}

// CursorRepository persists the ingestion cursor of each mailbox folder.
type CursorRepository interface {
	// SaveCursor persists the cursor of a folder.
	SaveCursor(ctx context.Context, cursor *core.Cursor) error

	// LoadCursor retrieves the cursor of a folder.
	// Returns nil, nil if no cursor exists.
	LoadCursor(ctx context.Context, folder string) (*core.Cursor, error)
}

// NotificationRepository persists notification delivery state.
type NotificationRepository interface {
	// CreateNotification stores event unless one exists for the same record.
	// Returns false for duplicates.
	CreateNotification(ctx context.Context, event *core.NotificationEvent) (bool, error)

	// GetNotification retrieves the event for a record.
	// Returns ErrNotFound if it doesn't exist.
	GetNotification(ctx context.Context, recordID core.ID) (*core.NotificationEvent, error)

	// UpdateNotification replaces an existing event.
	// Returns ErrNotFound if it doesn't exist.
	UpdateNotification(ctx context.Context, event *core.NotificationEvent) error

	// ListNotifications returns events with any of the given statuses, or
	// all events when none are given, ordered by record id.
	ListNotifications(ctx context.Context, statuses ...core.NotificationStatus) ([]*core.NotificationEvent, error)
}

// Store bundles the repositories backed by one database.
type Store interface {
	RecordRepository
	CursorRepository
	NotificationRepository

	// Close closes the storage backend and releases resources.
	Close() error
}
