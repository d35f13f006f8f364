package ai

import (
	"context"

	"github.com/poiesic/mailsift/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Summary is the result of summarizing a message body.
type Summary struct {
	// Text is a short prose summary of the message.
	Text string

	// Entities holds the key facts extracted alongside the summary.
	Entities core.Entities
}

// Summarizer condenses a message body into a summary plus extracted facts.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize returns the summary of text. An empty summary is an error.
	Summarize(ctx context.Context, text string) (*Summary, error)
}

// ClassifyInput carries what a classifier sees of a message.
type ClassifyInput struct {
	Subject string
	Sender  string
	Summary string
}

// Classification is the category and importance assigned to a message.
type Classification struct {
	Category   core.Category
	Importance core.Importance
}

// Classifier assigns a category and an importance level to a message.
// Implementations must be thread-safe for concurrent use.
type Classifier interface {
	// Classify returns a classification whose values are members of
	// core.Categories and core.Importances.
	Classify(ctx context.Context, in ClassifyInput) (*Classification, error)
}

// Answerer produces a natural-language answer to a question from the
// supplied context. An empty context is allowed.
type Answerer interface {
	Answer(ctx context.Context, question, contextText string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Summarizer returns the summarization service.
	Summarizer() Summarizer

	// Classifier returns the classification service.
	Classifier() Classifier

	// Answerer returns the question answering service.
	Answerer() Answerer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
