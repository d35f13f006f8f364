package mock

import (
	"context"
	"sync"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
)

type MockClassifier struct {
	// ClassifyFunc is called by Classify if set.
	// If nil, every message is classified as other/medium.
	ClassifyFunc func(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error)

	mu        sync.Mutex
	callCount int
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

func (m *MockClassifier) Classify(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.ClassifyFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, in)
	}
	return &ai.Classification{Category: core.CategoryOther, Importance: core.ImportanceMedium}, nil
}

func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *MockClassifier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ClassifyFunc = nil
}
