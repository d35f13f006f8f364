package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/ai/mock"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryingProvider_RecoversFromTransientFailure(t *testing.T) {
	inner := mock.NewMockProvider()
	failures := 2
	inner.GetMockSummarizer().SummarizeFunc = func(ctx context.Context, text string) (*ai.Summary, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("503 service unavailable")
		}
		return &ai.Summary{Text: "ok"}, nil
	}

	p := ai.NewRetryingProvider(inner, fastPolicy(3), time.Second)
	summary, err := p.Summarizer().Summarize(context.Background(), "body")
	require.NoError(t, err)
	assert.Equal(t, "ok", summary.Text)
	assert.Equal(t, 3, inner.GetMockSummarizer().CallCount())
}

func TestRetryingProvider_TimeoutExhaustsRetries(t *testing.T) {
	inner := mock.NewMockProvider()
	inner.GetMockClassifier().ClassifyFunc = func(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	p := ai.NewRetryingProvider(inner, fastPolicy(3), 10*time.Millisecond)
	_, err := p.Classifier().Classify(context.Background(), ai.ClassifyInput{Subject: "s"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrGateway)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, inner.GetMockClassifier().CallCount())
}

func TestRetryingProvider_CallerCancellationIsNotGatewayError(t *testing.T) {
	inner := mock.NewMockProvider()
	ctx, cancel := context.WithCancel(context.Background())
	inner.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		cancel()
		return nil, ctx.Err()
	}

	p := ai.NewRetryingProvider(inner, fastPolicy(3), time.Second)
	_, err := p.Embedder().EmbedText(ctx, "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrGateway)
	assert.Equal(t, 1, inner.GetMockEmbedder().CallCount())
}

func TestRetryingProvider_ContractViolationNotRetried(t *testing.T) {
	inner := mock.NewMockProvider()
	inner.GetMockAnswerer().AnswerFunc = func(ctx context.Context, q, c string) (string, error) {
		return "", core.ErrContractViolation
	}

	p := ai.NewRetryingProvider(inner, fastPolicy(3), time.Second)
	_, err := p.Answerer().Answer(context.Background(), "q", "")
	assert.ErrorIs(t, err, core.ErrContractViolation)
	assert.NotErrorIs(t, err, core.ErrGateway)
	assert.Equal(t, 1, inner.GetMockAnswerer().CallCount())
}

func TestRetryingProvider_PassesResultsThrough(t *testing.T) {
	inner := mock.NewMockProvider()
	p := ai.NewRetryingProvider(inner, fastPolicy(1), time.Second)

	vectors, err := p.Embedder().EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, mock.DeterministicVector("a", mock.DefaultDimension), vectors[0])

	class, err := p.Classifier().Classify(context.Background(), ai.ClassifyInput{})
	require.NoError(t, err)
	assert.Equal(t, core.CategoryOther, class.Category)
	assert.NoError(t, p.Close())
}
