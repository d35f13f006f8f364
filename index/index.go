package index

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/mailsift/core"
	"go.etcd.io/bbolt"
)

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
	keyDimension  = []byte("dimension")
)

// Metadata is stored with each entry and used by filters.
type Metadata struct {
	Category   core.Category   `json:"c,omitempty"`
	Importance core.Importance `json:"i,omitempty"`
	ReceivedAt time.Time       `json:"r,omitzero"`
}

// Entry is one indexed record.
type Entry struct {
	ID       core.ID
	Vector   []float32
	Metadata Metadata
}

// Match is a query hit.
type Match struct {
	ID       core.ID
	Score    float32
	Metadata Metadata
}

// Filter restricts query results by metadata. Zero-valued fields match everything.
type Filter struct {
	Categories  []core.Category
	Importances []core.Importance

	// Since and Until bound ReceivedAt: Since <= ReceivedAt < Until.
	Since time.Time
	Until time.Time
}

func (f *Filter) matches(m Metadata) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, m.Category) {
		return false
	}
	if len(f.Importances) > 0 && !slices.Contains(f.Importances, m.Importance) {
		return false
	}
	if !f.Since.IsZero() && m.ReceivedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !m.ReceivedAt.Before(f.Until) {
		return false
	}
	return true
}

type storedEntry struct {
	Vector   []float32 `json:"v"`
	Metadata Metadata  `json:"m"`
}

type entry struct {
	vector   []float32 // unit length
	metadata Metadata
}

// Index is a persistent vector index with an in-memory copy for search.
// It is safe for concurrent use; queries run in parallel and never observe
// a partially applied write or rebuild.
type Index struct {
	db        *bbolt.DB
	mu        sync.RWMutex
	entries   map[core.ID]entry
	dimension int
	fixed     bool
	closed    bool
	logger    *slog.Logger
}

// Option configures an Index.
type Option func(*Index) error

// WithDimension fixes the vector dimension. Zero adopts the dimension of
// the first write.
func WithDimension(dimension int) Option {
	return func(idx *Index) error {
		if dimension < 0 {
			return fmt.Errorf("dimension must not be negative: %d", dimension)
		}
		idx.dimension = dimension
		idx.fixed = dimension > 0
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		idx.logger = logger
		return nil
	}
}

// Open opens (or creates) the index file at path and loads it into memory.
func Open(path string, opts ...Option) (*Index, error) {
	idx := &Index{
		entries: make(map[core.ID]entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "vector-index")

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}
	idx.db = db

	if err := idx.load(); err != nil {
		db.Close()
		return nil, err
	}

	idx.logger.Debug("index opened", "path", path, "entries", len(idx.entries), "dimension", idx.dimension)
	return idx, nil
}

// load creates the buckets, reconciles the persisted dimension and reads
// every entry into memory.
func (idx *Index) load() error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		vectors, err := tx.CreateBucketIfNotExists(bucketVectors)
		if err != nil {
			return fmt.Errorf("failed to create vectors bucket: %w", err)
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create meta bucket: %w", err)
		}

		if raw := meta.Get(keyDimension); len(raw) == 4 {
			stored := int(binary.BigEndian.Uint32(raw))
			if idx.fixed && stored != idx.dimension && vectors.Stats().KeyN > 0 {
				return mismatch(idx.dimension, stored)
			}
			if !idx.fixed {
				idx.dimension = stored
			}
		}
		if idx.dimension > 0 {
			if err := putDimension(meta, idx.dimension); err != nil {
				return err
			}
		}

		return vectors.ForEach(func(k, v []byte) error {
			if len(k) != 8 {
				return nil
			}
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil {
				idx.logger.Warn("skipping corrupt index entry", "err", err)
				return nil
			}
			if len(stored.Vector) != idx.dimension {
				idx.logger.Warn("skipping index entry with wrong dimension",
					"id", core.ID(binary.BigEndian.Uint64(k)),
					"dimension", len(stored.Vector))
				return nil
			}
			idx.entries[core.ID(binary.BigEndian.Uint64(k))] = entry{
				vector:   Normalize(stored.Vector),
				metadata: stored.Metadata,
			}
			return nil
		})
	})
}

// Close closes the index file.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}

// Dimension returns the vector dimension, or 0 if none has been set yet.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Has reports whether an entry exists for id.
func (idx *Index) Has(id core.ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.entries[id]
	return ok
}

// CheckDimension returns an error if a vector of length n cannot be stored.
func (idx *Index) CheckDimension(n int) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.checkDimension(n)
}

func (idx *Index) checkDimension(n int) error {
	if n == 0 {
		return mismatch(idx.dimension, 0)
	}
	if idx.dimension > 0 && n != idx.dimension {
		return mismatch(idx.dimension, n)
	}
	return nil
}

func mismatch(want, got int) error {
	return fmt.Errorf("%w: %w: expected %d, got %d", core.ErrContractViolation, ErrDimensionMismatch, want, got)
}

func validateVector(v []float32) error {
	if isZero(v) {
		return fmt.Errorf("%w: %w", core.ErrContractViolation, ErrZeroVector)
	}
	return nil
}

// Upsert inserts or replaces the entry for e.ID.
func (idx *Index) Upsert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if err := idx.checkDimension(len(e.Vector)); err != nil {
		return err
	}
	if err := validateVector(e.Vector); err != nil {
		return err
	}

	data, err := json.Marshal(storedEntry{Vector: e.Vector, Metadata: e.Metadata})
	if err != nil {
		return err
	}

	adopt := idx.dimension == 0
	err = idx.db.Update(func(tx *bbolt.Tx) error {
		if adopt {
			if err := putDimension(tx.Bucket(bucketMeta), len(e.Vector)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketVectors).Put(idKey(e.ID), data)
	})
	if err != nil {
		return err
	}

	if adopt {
		idx.dimension = len(e.Vector)
		idx.logger.Info("adopted index dimension", "dimension", idx.dimension)
	}
	idx.entries[e.ID] = entry{vector: Normalize(e.Vector), metadata: e.Metadata}
	return nil
}

// Delete removes the entries for ids. Missing ids are ignored.
func (idx *Index) Delete(ctx context.Context, ids ...core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	err := idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := b.Delete(idKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(idx.entries, id)
	}
	return nil
}

// Get returns the entry for id with its vector scaled to unit length.
func (idx *Index) Get(ctx context.Context, id core.ID) (*Entry, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Entry{ID: id, Vector: slices.Clone(e.vector), Metadata: e.metadata}, nil
}

// Query returns up to k entries most similar to vector, ordered by
// descending cosine similarity with ties broken by ascending id.
func (idx *Index) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, ErrClosed
	}
	if err := idx.checkDimension(len(vector)); err != nil {
		return nil, err
	}
	if len(idx.entries) == 0 {
		return nil, nil
	}

	query := Normalize(vector)
	matches := make([]Match, 0, len(idx.entries))
	for id, e := range idx.entries {
		if !filter.matches(e.metadata) {
			continue
		}
		matches = append(matches, Match{ID: id, Score: dot(query, e.vector), Metadata: e.metadata})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Rebuild atomically replaces the whole index with entries. If entries has
// duplicate ids the last one wins. On error the index is left unchanged.
func (idx *Index) Rebuild(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	dimension := idx.dimension
	if !idx.fixed && len(entries) > 0 {
		dimension = len(entries[0].Vector)
	}

	next := make(map[core.ID]entry, len(entries))
	encoded := make(map[core.ID][]byte, len(entries))
	for _, e := range entries {
		if len(e.Vector) == 0 || (dimension > 0 && len(e.Vector) != dimension) {
			return fmt.Errorf("entry %s: %w", e.ID, mismatch(dimension, len(e.Vector)))
		}
		if err := validateVector(e.Vector); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		data, err := json.Marshal(storedEntry{Vector: e.Vector, Metadata: e.Metadata})
		if err != nil {
			return err
		}
		next[e.ID] = entry{vector: Normalize(e.Vector), metadata: e.Metadata}
		encoded[e.ID] = data
	}

	err := idx.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketVectors); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketVectors)
		if err != nil {
			return err
		}
		for id, data := range encoded {
			if err := b.Put(idKey(id), data); err != nil {
				return err
			}
		}
		if dimension > 0 {
			return putDimension(tx.Bucket(bucketMeta), dimension)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("index rebuild failed: %w", err)
	}

	idx.entries = next
	idx.dimension = dimension
	idx.logger.Info("index rebuilt", "entries", len(next), "dimension", dimension)
	return nil
}

func idKey(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func putDimension(b *bbolt.Bucket, dimension int) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(dimension))
	return b.Put(keyDimension, buf)
}
