package index

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T, opts ...Option) (*Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, path
}

func TestUpsertAndQuery_Ordering(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0, 0}}))
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 2, Vector: []float32{0.9, 0.1, 0}}))
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 3, Vector: []float32{0, 1, 0}}))

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, core.ID(1), matches[0].ID)
	assert.Equal(t, core.ID(2), matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestQuery_TiesBrokenByAscendingID(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	for _, id := range []core.ID{30, 10, 20} {
		require.NoError(t, idx.Upsert(ctx, Entry{ID: id, Vector: []float32{0, 2, 0}}))
	}

	matches, err := idx.Query(ctx, []float32{0, 1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, []core.ID{10, 20, 30}, []core.ID{matches[0].ID, matches[1].ID, matches[2].ID})
}

func TestUpsert_ReplacesExistingEntry(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{0, 1}, Metadata: Metadata{Category: core.CategoryWork}}))

	assert.Equal(t, 1, idx.Len())
	e, err := idx.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, e.Vector)
	assert.Equal(t, core.CategoryWork, e.Metadata.Category)
}

func TestDimension_AdoptedAndEnforced(t *testing.T) {
	idx, path := openTestIndex(t)
	ctx := context.Background()
	assert.Equal(t, 0, idx.Dimension())

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 2, 3}}))
	assert.Equal(t, 3, idx.Dimension())

	err := idx.Upsert(ctx, Entry{ID: 2, Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrContractViolation)
	assert.False(t, idx.Has(2))

	_, err = idx.Query(ctx, []float32{1, 2, 3, 4}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 3, reopened.Dimension(), "dimension is persisted")
}

func TestDimension_Fixed(t *testing.T) {
	idx, _ := openTestIndex(t, WithDimension(4))
	err := idx.Upsert(context.Background(), Entry{ID: 1, Vector: []float32{1, 2, 3}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.NoError(t, idx.CheckDimension(4))
	assert.ErrorIs(t, idx.CheckDimension(0), ErrDimensionMismatch)
}

func TestQuery_EmptyIndexStillChecksDimension(t *testing.T) {
	idx, _ := openTestIndex(t, WithDimension(4))
	ctx := context.Background()

	_, err := idx.Query(ctx, []float32{1, 0, 0}, 5, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, core.ErrContractViolation)

	_, err = idx.Query(ctx, nil, 5, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	matches, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestOpen_FixedDimensionConflictsWithStoredEntries(t *testing.T) {
	idx, path := openTestIndex(t)
	require.NoError(t, idx.Upsert(context.Background(), Entry{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, idx.Close())

	_, err := Open(path, WithDimension(3))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestUpsert_ZeroVectorRejected(t *testing.T) {
	idx, _ := openTestIndex(t)
	err := idx.Upsert(context.Background(), Entry{ID: 1, Vector: []float32{0, 0}})
	assert.ErrorIs(t, err, ErrZeroVector)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestQuery_Filter(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}, Metadata: Metadata{Category: core.CategoryWork, Importance: core.ImportanceHigh, ReceivedAt: day}}))
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 2, Vector: []float32{1, 0.1}, Metadata: Metadata{Category: core.CategoryAdvertisement, Importance: core.ImportanceLow, ReceivedAt: day.Add(48 * time.Hour)}}))

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, &Filter{Categories: []core.Category{core.CategoryAdvertisement}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID(2), matches[0].ID)

	matches, err = idx.Query(ctx, []float32{1, 0}, 5, &Filter{Until: day.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.ID(1), matches[0].ID)

	matches, err = idx.Query(ctx, []float32{1, 0}, 5, &Filter{Importances: []core.Importance{core.ImportanceMedium}})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_EmptyIndexAndZeroK(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	matches, err := idx.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}}))
	matches, err = idx.Query(ctx, []float32{1, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDeleteAndGet(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 2, Vector: []float32{0, 1}}))
	require.NoError(t, idx.Delete(ctx, 1, 99))

	_, err := idx.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, idx.Len())
}

func TestPersistence_Reopen(t *testing.T) {
	idx, path := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 7, Vector: []float32{0.6, 0.8}, Metadata: Metadata{Importance: core.ImportanceHigh}}))
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	e, err := reopened.Get(ctx, 7)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, e.Vector, 1e-6)
	assert.Equal(t, core.ImportanceHigh, e.Metadata.Importance)
}

func randomEntries(r *rand.Rand, n, dim int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		entries[i] = Entry{ID: core.ID(r.Uint64()), Vector: v}
	}
	return entries
}

func TestRebuild_EquivalentToSequentialUpserts(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	entries := randomEntries(r, 50, 8)
	ctx := context.Background()

	incremental, _ := openTestIndex(t)
	for _, e := range entries {
		require.NoError(t, incremental.Upsert(ctx, e))
	}

	rebuilt, _ := openTestIndex(t)
	// Start from unrelated content so the rebuild has something to replace
	require.NoError(t, rebuilt.Upsert(ctx, Entry{ID: 1, Vector: randomEntries(r, 1, 8)[0].Vector}))
	require.NoError(t, rebuilt.Rebuild(ctx, entries))

	assert.Equal(t, incremental.Len(), rebuilt.Len())
	assert.False(t, rebuilt.Has(1))

	for _, q := range randomEntries(r, 10, 8) {
		want, err := incremental.Query(ctx, q.Vector, 5, nil)
		require.NoError(t, err)
		got, err := rebuilt.Query(ctx, q.Vector, 5, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRebuild_InvalidEntryLeavesIndexUnchanged(t *testing.T) {
	idx, path := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}}))

	err := idx.Rebuild(ctx, []Entry{
		{ID: 2, Vector: []float32{1, 0}},
		{ID: 3, Vector: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.True(t, idx.Has(1))
	assert.False(t, idx.Has(2))

	require.NoError(t, idx.Close())
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 1, reopened.Len())
}

func TestRebuild_ReplacesDimensionWhenNotFixed(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, Entry{ID: 1, Vector: []float32{1, 0}}))

	require.NoError(t, idx.Rebuild(ctx, []Entry{{ID: 2, Vector: []float32{1, 0, 0}}}))
	assert.Equal(t, 3, idx.Dimension())
	assert.Equal(t, 1, idx.Len())
}

func TestConcurrentQueriesDuringRebuild(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	first := randomEntries(r, 20, 4)
	second := randomEntries(r, 30, 4)
	require.NoError(t, idx.Rebuild(ctx, first))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				n := idx.Len()
				assert.True(t, n == 20 || n == 30, "readers see one generation or the other, got %d", n)
				_, err := idx.Query(ctx, []float32{1, 0, 0, 0}, 3, nil)
				assert.NoError(t, err)
			}
		}()
	}
	require.NoError(t, idx.Rebuild(ctx, second))
	wg.Wait()
	assert.Equal(t, 30, idx.Len())
}

func TestCosineAndNormalize(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), Cosine([]float32{0, 0}, []float32{1, 2}))

	n := Normalize([]float32{3, 4})
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, n, 1e-6)
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}
