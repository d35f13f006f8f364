package mock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/poiesic/mailsift/ai"
)

// ErrEmptyText is returned by the default summarizer for blank input.
var ErrEmptyText = errors.New("mock: nothing to summarize")

type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	// If nil, the first sentence of the text becomes the summary.
	SummarizeFunc func(ctx context.Context, text string) (*ai.Summary, error)

	mu        sync.Mutex
	callCount int
	inputs    []string
}

func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

func (m *MockSummarizer) Summarize(ctx context.Context, text string) (*ai.Summary, error) {
	m.mu.Lock()
	m.callCount++
	m.inputs = append(m.inputs, text)
	fn := m.SummarizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if i := strings.IndexAny(text, ".!?\n"); i > 0 {
		text = text[:i+1]
	}
	return &ai.Summary{Text: strings.TrimSpace(text)}, nil
}

func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Inputs returns the texts passed to Summarize, in call order.
func (m *MockSummarizer) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

func (m *MockSummarizer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.inputs = nil
	m.SummarizeFunc = nil
}
