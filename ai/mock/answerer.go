package mock

import (
	"context"
	"sync"
)

type MockAnswerer struct {
	// AnswerFunc is called by Answer if set.
	// If nil, the answer echoes the question.
	AnswerFunc func(ctx context.Context, question, contextText string) (string, error)

	mu          sync.Mutex
	callCount   int
	lastContext string
}

func NewMockAnswerer() *MockAnswerer {
	return &MockAnswerer{}
}

func (m *MockAnswerer) Answer(ctx context.Context, question, contextText string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.lastContext = contextText
	fn := m.AnswerFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, question, contextText)
	}
	return "answer: " + question, nil
}

func (m *MockAnswerer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastContext returns the context passed to the most recent Answer call.
func (m *MockAnswerer) LastContext() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastContext
}

func (m *MockAnswerer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.lastContext = ""
	m.AnswerFunc = nil
}
