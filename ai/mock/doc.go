// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Summarizer,
// ai.Classifier, ai.Answerer and ai.AIProvider for use in unit tests. The
// mocks allow tests to run without external AI service dependencies and
// enable controlled, deterministic behavior. All mocks are safe for
// concurrent use.
//
// # Usage in Tests
//
//	mockProvider := mock.NewMockProvider()
//	mockProvider.GetMockClassifier().ClassifyFunc = func(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error) {
//	    return &ai.Classification{Category: core.CategoryWork, Importance: core.ImportanceHigh}, nil
//	}
//
//	count := mockProvider.GetMockClassifier().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockSummarizer: Uses the first sentence of the text as the summary
//   - MockClassifier: Classifies everything as other/medium
//   - MockAnswerer: Echoes the question and records the context it was given
package mock
