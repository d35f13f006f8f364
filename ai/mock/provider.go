package mock

import "github.com/poiesic/mailsift/ai"

type MockProvider struct {
	embedder   *MockEmbedder
	summarizer *MockSummarizer
	classifier *MockClassifier
	answerer   *MockAnswerer
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		summarizer: NewMockSummarizer(),
		classifier: NewMockClassifier(),
		answerer:   NewMockAnswerer(),
	}
}

func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *MockProvider) Summarizer() ai.Summarizer {
	return p.summarizer
}

func (p *MockProvider) Classifier() ai.Classifier {
	return p.classifier
}

func (p *MockProvider) Answerer() ai.Answerer {
	return p.answerer
}

func (p *MockProvider) Close() error {
	return nil
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

func (p *MockProvider) GetMockSummarizer() *MockSummarizer {
	return p.summarizer
}

func (p *MockProvider) GetMockClassifier() *MockClassifier {
	return p.classifier
}

func (p *MockProvider) GetMockAnswerer() *MockAnswerer {
	return p.answerer
}
