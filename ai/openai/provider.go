package openai

import (
	"log/slog"

	"github.com/poiesic/mailsift/ai"
)

type Provider struct {
	config     *ai.Config
	embedder   *Embedder
	summarizer *Summarizer
	classifier *Classifier
	answerer   *Answerer
	logger     *slog.Logger
}

func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	summarizer, err := newSummarizer(config)
	if err != nil {
		return nil, err
	}
	classifier, err := newClassifier(config)
	if err != nil {
		return nil, err
	}
	answerer, err := newAnswerer(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:     config,
		embedder:   embedder,
		summarizer: summarizer,
		classifier: classifier,
		answerer:   answerer,
		logger:     slog.Default().With("component", "openai-provider"),
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Summarizer() ai.Summarizer {
	return p.summarizer
}

func (p *Provider) Classifier() ai.Classifier {
	return p.classifier
}

func (p *Provider) Answerer() ai.Answerer {
	return p.answerer
}

func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
