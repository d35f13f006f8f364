package reindex

import (
	"context"
	"fmt"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/retry"
)

// BatchProcessor turns batches of processed records into index entries.
type BatchProcessor struct {
	embedder ai.Embedder
	policy   retry.Policy
}

// NewBatchProcessor creates a new batch processor. Embedding calls are
// retried according to policy.
func NewBatchProcessor(embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	if policy.Retryable == nil {
		policy.Retryable = ai.IsRetryable
	}
	return &BatchProcessor{
		embedder: embedder,
		policy:   policy,
	}
}

// Process embeds the summaries of records and returns one entry per record,
// in the same order.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.EmailRecord) ([]index.Entry, error) {
	if len(records) == 0 {
		return nil, nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Summary
	}

	var embeddings [][]float32
	err := retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.policy.MaxAttempts, err)
	}

	if len(embeddings) != len(records) {
		return nil, fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrContractViolation, len(records), len(embeddings))
	}

	entries := make([]index.Entry, len(records))
	for i, record := range records {
		entries[i] = index.Entry{
			ID:     record.Id,
			Vector: embeddings[i],
			Metadata: index.Metadata{
				Category:   record.Category,
				Importance: record.Importance,
				ReceivedAt: record.ReceivedAt,
			},
		}
	}
	return entries, nil
}
