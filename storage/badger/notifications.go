package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/storage"
)

// NotificationRepository implements storage.NotificationRepository for BadgerDB.
type NotificationRepository struct {
	backend *Backend
}

var _ storage.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(backend *Backend) *NotificationRepository {
	return &NotificationRepository{backend: backend}
}

// CreateNotification stores event unless one exists for the same record.
func (r *NotificationRepository) CreateNotification(ctx context.Context, event *core.NotificationEvent) (bool, error) {
	created := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeNotificationKey(event.RecordId)
		exists, err := keyExists(tx, key)
		if err != nil || exists {
			return err
		}

		if event.CreatedAt.IsZero() {
			event.CreatedAt = time.Now().UTC()
		}
		value, err := storage.MarshalNotification(event)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		created = true
		return nil
	}, true)

	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	return created, err
}

// GetNotification retrieves the event for a record.
func (r *NotificationRepository) GetNotification(ctx context.Context, recordID core.ID) (*core.NotificationEvent, error) {
	var event *core.NotificationEvent
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		event, err = readValue(tx, makeNotificationKey(recordID), storage.UnmarshalNotification)
		if err != nil {
			return err
		}
		if event == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return event, err
}

// UpdateNotification replaces an existing event.
func (r *NotificationRepository) UpdateNotification(ctx context.Context, event *core.NotificationEvent) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeNotificationKey(event.RecordId)
		exists, err := keyExists(tx, key)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		value, err := storage.MarshalNotification(event)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListNotifications returns events with any of the given statuses.
func (r *NotificationRepository) ListNotifications(ctx context.Context, statuses ...core.NotificationStatus) ([]*core.NotificationEvent, error) {
	var events []*core.NotificationEvent
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(tx, []byte(notificationPrefix), storage.UnmarshalNotification, func(event *core.NotificationEvent) error {
			if len(statuses) == 0 || slices.Contains(statuses, event.Status) {
				events = append(events, event)
			}
			return nil
		})
	}, false)
	return events, err
}
