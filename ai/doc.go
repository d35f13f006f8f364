// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the language model gateway used by
// mailsift.
//
// The gateway has four capabilities, each behind its own interface:
//
//   - Summarizer: condenses a message body into a summary and key facts
//   - Classifier: assigns a category and an importance level
//   - Embedder: turns text into vectors for similarity search
//   - Answerer: answers a question from retrieved context
//
// AIProvider aggregates them for convenient initialization.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can script behavior and count calls.
//
// # Timeouts and Retries
//
// NewRetryingProvider wraps any provider so every call runs under its own
// timeout and is retried with exponential backoff. Failures that survive the
// retry budget are wrapped in core.ErrGateway; cancellation of the caller's
// context is returned as is.
//
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	provider = ai.NewRetryingProvider(provider, cfg.RetryPolicy(), cfg.CallTimeout)
//	defer provider.Close()
//
//	summary, err := provider.Summarizer().Summarize(ctx, body)
package ai
