package badger

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) *RecordRepository {
	return &RecordRepository{backend: backend}
}

// CreatePending stores a pending record together with its raw message.
func (r *RecordRepository) CreatePending(ctx context.Context, record *core.EmailRecord, raw *core.RawMessage) (bool, error) {
	created := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(record.Id)
		exists, err := keyExists(tx, key)
		if err != nil || exists {
			return err
		}

		record.InsertedAt = time.Now().UTC()
		record.UpdatedAt = record.InsertedAt

		value, err := storage.MarshalRecord(record)
		if err != nil {
			return err
		}
		rawValue, err := storage.MarshalRawMessage(raw)
		if err != nil {
			return err
		}

		if err := tx.Set(key, value); err != nil {
			return err
		}
		if err := tx.Set(makeRawMessageKey(record.Id), rawValue); err != nil {
			return err
		}
		if err := tx.Set(makeRecordDateKey(record.ReceivedAt, record.Id), storage.MarshalID(record.Id)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		created = true
		return nil
	}, true)

	// A conflicting commit means a concurrent writer created the same record.
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	return created, err
}

// Exists reports whether a record with the given id exists.
func (r *RecordRepository) Exists(ctx context.Context, id core.ID) (bool, error) {
	var exists bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		exists, err = keyExists(tx, makeRecordKey(id))
		return err
	}, false)
	return exists, err
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.ID) (*core.EmailRecord, error) {
	var result *core.EmailRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeRecordKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetRecords retrieves multiple records by their IDs.
func (r *RecordRepository) GetRecords(ctx context.Context, ids ...core.ID) ([]*core.EmailRecord, error) {
	var result []*core.EmailRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRecord(tx, makeRecordKey(id))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// UpdateRecord replaces an existing record.
func (r *RecordRepository) UpdateRecord(ctx context.Context, record *core.EmailRecord) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(record.Id)

		old, err := readRecord(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		record.InsertedAt = old.InsertedAt
		record.UpdatedAt = time.Now().UTC()

		value, err := storage.MarshalRecord(record)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}

		// Update date index if the received time changed
		if !old.ReceivedAt.Equal(record.ReceivedAt) {
			if err := tx.Delete(makeRecordDateKey(old.ReceivedAt, old.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeRecordDateKey(record.ReceivedAt, record.Id), storage.MarshalID(record.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRawMessage retrieves the raw message a record was created from.
func (r *RecordRepository) GetRawMessage(ctx context.Context, id core.ID) (*core.RawMessage, error) {
	var result *core.RawMessage
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readValue(tx, makeRawMessageKey(id), storage.UnmarshalRawMessage)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListRecords returns records matching filter, most recently received first.
func (r *RecordRepository) ListRecords(ctx context.Context, filter *storage.RecordFilter) ([]*core.EmailRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var results []*core.EmailRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent records first
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false

		iter := tx.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(recordDatePrefix)
		// Seek past the last possible key with this prefix
		seek := append(bytes.Clone(prefix), bytes.Repeat([]byte{0xff}, 16)...)

		skipped := 0
		for iter.Seek(seek); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := iter.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}

			record, err := readRecord(tx, makeRecordKey(dateKeyID(key)))
			if err != nil {
				return err
			}
			if record == nil || !filter.Matches(record) {
				continue
			}
			if filter != nil && skipped < filter.Offset {
				skipped++
				continue
			}
			results = append(results, record)
			if filter != nil && filter.Limit > 0 && len(results) >= filter.Limit {
				break
			}
		}
		return nil
	}, false)

	return results, err
}

// ScanRecords returns up to limit records with an id greater than after.
func (r *RecordRepository) ScanRecords(ctx context.Context, after core.ID, limit int) ([]*core.EmailRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.EmailRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := makeRecordKey(after)
		for iter.Seek(start); iter.Valid() && len(results) < limit; iter.Next() {
			item := iter.Item()
			if bytes.Equal(item.Key(), start) {
				continue
			}
			var record *core.EmailRecord
			if err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// ForEachRecord calls fn for every record in id order.
func (r *RecordRepository) ForEachRecord(ctx context.Context, fn func(*core.EmailRecord) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		return forEachPrefix(tx, []byte(recordPrefix), storage.UnmarshalRecord, func(record *core.EmailRecord) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(record)
		})
	}, false)
}

// readRecord reads a record from the transaction.
func readRecord(tx *badger.Txn, key []byte) (*core.EmailRecord, error) {
	return readValue(tx, key, storage.UnmarshalRecord)
}
