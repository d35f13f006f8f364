package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/retry"
)

// IsRetryable reports whether a failed gateway call is worth another try.
// Cancellation and contract violations are final; a per-call deadline and
// any other provider error are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, core.ErrContractViolation) {
		return false
	}
	return true
}

// RetryPolicy returns the retry policy described by the configuration.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		MaxDelay:    c.MaxDelay,
		Retryable:   IsRetryable,
	}
}

// caller runs gateway calls under a per-call timeout and a retry policy.
type caller struct {
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

// call runs fn until it succeeds or the policy gives up. Failures that are
// not caused by the caller's own context are wrapped in core.ErrGateway.
func (c *caller) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, core.ErrContractViolation) {
		return err
	}
	c.logger.Warn("gateway call failed", "op", op, "attempts", attempts, "err", err)
	return fmt.Errorf("%w: %s failed after %d attempt(s): %w", core.ErrGateway, op, attempts, err)
}

// NewRetryingProvider wraps every service of p so each call gets its own
// timeout and is retried with exponential backoff according to policy.
func NewRetryingProvider(p AIProvider, policy retry.Policy, timeout time.Duration) AIProvider {
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	c := &caller{
		policy:  policy,
		timeout: timeout,
		logger:  slog.Default().With("component", "ai-gateway"),
	}
	return &retryingProvider{
		inner:      p,
		embedder:   &retryingEmbedder{inner: p.Embedder(), caller: c},
		summarizer: &retryingSummarizer{inner: p.Summarizer(), caller: c},
		classifier: &retryingClassifier{inner: p.Classifier(), caller: c},
		answerer:   &retryingAnswerer{inner: p.Answerer(), caller: c},
	}
}

type retryingProvider struct {
	inner      AIProvider
	embedder   *retryingEmbedder
	summarizer *retryingSummarizer
	classifier *retryingClassifier
	answerer   *retryingAnswerer
}

func (p *retryingProvider) Embedder() Embedder     { return p.embedder }
func (p *retryingProvider) Summarizer() Summarizer { return p.summarizer }
func (p *retryingProvider) Classifier() Classifier { return p.classifier }
func (p *retryingProvider) Answerer() Answerer     { return p.answerer }
func (p *retryingProvider) Close() error           { return p.inner.Close() }

type retryingEmbedder struct {
	inner  Embedder
	caller *caller
}

func (e *retryingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.caller.call(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = e.inner.EmbedText(ctx, text)
		return err
	})
	return out, err
}

func (e *retryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.caller.call(ctx, "embed", func(ctx context.Context) error {
		var err error
		out, err = e.inner.EmbedTexts(ctx, texts)
		return err
	})
	return out, err
}

type retryingSummarizer struct {
	inner  Summarizer
	caller *caller
}

func (s *retryingSummarizer) Summarize(ctx context.Context, text string) (*Summary, error) {
	var out *Summary
	err := s.caller.call(ctx, "summarize", func(ctx context.Context) error {
		var err error
		out, err = s.inner.Summarize(ctx, text)
		return err
	})
	return out, err
}

type retryingClassifier struct {
	inner  Classifier
	caller *caller
}

func (c *retryingClassifier) Classify(ctx context.Context, in ClassifyInput) (*Classification, error) {
	var out *Classification
	err := c.caller.call(ctx, "classify", func(ctx context.Context) error {
		var err error
		out, err = c.inner.Classify(ctx, in)
		return err
	})
	return out, err
}

type retryingAnswerer struct {
	inner  Answerer
	caller *caller
}

func (a *retryingAnswerer) Answer(ctx context.Context, question, contextText string) (string, error) {
	var out string
	err := a.caller.call(ctx, "answer", func(ctx context.Context) error {
		var err error
		out, err = a.inner.Answer(ctx, question, contextText)
		return err
	})
	return out, err
}
