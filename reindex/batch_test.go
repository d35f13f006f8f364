package reindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/mailsift/ai/mock"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func testRecords() []*core.EmailRecord {
	received := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return []*core.EmailRecord{
		{Id: 1, Summary: "first", Category: core.CategoryWork, Importance: core.ImportanceHigh, ReceivedAt: received},
		{Id: 2, Summary: "second", Category: core.CategoryPersonal, Importance: core.ImportanceLow, ReceivedAt: received},
	}
}

func TestBatchProcessor_Process(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 8
	bp := NewBatchProcessor(embedder, fastPolicy(3))

	entries, err := bp.Process(context.Background(), testRecords())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, core.ID(1), entries[0].ID)
	assert.Equal(t, mock.DeterministicVector("first", 8), entries[0].Vector)
	assert.Equal(t, core.CategoryWork, entries[0].Metadata.Category)
	assert.Equal(t, core.ImportanceHigh, entries[0].Metadata.Importance)
	assert.Equal(t, core.ImportanceLow, entries[1].Metadata.Importance)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	entries, err := NewBatchProcessor(embedder, fastPolicy(1)).Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestBatchProcessor_RetriesTransientFailures(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failures := 2
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("rate limited")
		}
		return [][]float32{{1, 0}, {0, 1}}, nil
	}

	entries, err := NewBatchProcessor(embedder, fastPolicy(3)).Process(context.Background(), testRecords())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, 3, embedder.CallCount())
}

func TestBatchProcessor_GivesUp(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("down")
	}

	_, err := NewBatchProcessor(embedder, fastPolicy(2)).Process(context.Background(), testRecords())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	_, err := NewBatchProcessor(embedder, fastPolicy(3)).Process(context.Background(), testRecords())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrContractViolation)
	assert.Equal(t, 1, embedder.CallCount(), "contract violations are not retried")
}
