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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
	"github.com/poiesic/mailsift/index"
	"github.com/poiesic/mailsift/metrics"
)

// Processing steps, used in failure reasons and metrics labels.
const (
	stepSummarize = "summarize"
	stepClassify  = "classify"
	stepEmbed     = "embed"
	stepIndex     = "index"
)

// VectorIndex is the part of the vector index the pipeline writes to.
type VectorIndex interface {
	Upsert(ctx context.Context, e index.Entry) error
	CheckDimension(n int) error
	Has(id core.ID) bool
}

// analysis is the gateway output for one message.
type analysis struct {
	summary        *ai.Summary
	classification *ai.Classification
	vector         []float32
}

// stepError records which step failed.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }
func (e *stepError) Unwrap() error { return e.err }

// processor runs the gateway steps for a single message.
type processor struct {
	summarizer ai.Summarizer
	classifier ai.Classifier
	embedder   ai.Embedder
	index      VectorIndex
	maxChars   int
	logger     *slog.Logger
}

func newProcessor(provider ai.AIProvider, idx VectorIndex, maxChars int, logger *slog.Logger) *processor {
	return &processor{
		summarizer: provider.Summarizer(),
		classifier: provider.Classifier(),
		embedder:   provider.Embedder(),
		index:      idx,
		maxChars:   maxChars,
		logger:     logger.With("processor", "analysis"),
	}
}

// analyze summarizes, classifies and embeds raw. The returned vector has
// already been checked against the index dimension.
func (p *processor) analyze(ctx context.Context, raw *core.RawMessage) (*analysis, error) {
	text := PrepareText(raw, p.maxChars)

	var summary *ai.Summary
	err := timed(stepSummarize, func() (err error) {
		summary, err = p.summarizer.Summarize(ctx, text)
		return err
	})
	if err != nil {
		return nil, &stepError{step: stepSummarize, err: err}
	}

	var class *ai.Classification
	err = timed(stepClassify, func() (err error) {
		class, err = p.classifier.Classify(ctx, ai.ClassifyInput{
			Subject: raw.Subject,
			Sender:  raw.Sender,
			Summary: summary.Text,
		})
		return err
	})
	if err != nil {
		return nil, &stepError{step: stepClassify, err: err}
	}
	class = ai.NormalizeClassification(string(class.Category), string(class.Importance))

	vector, err := p.embed(ctx, summary.Text)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("message analyzed",
		"uid", raw.UID, "folder", raw.Folder,
		"category", class.Category, "importance", class.Importance)

	return &analysis{summary: summary, classification: class, vector: vector}, nil
}

// embed embeds text and checks the result against the index dimension.
func (p *processor) embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := timed(stepEmbed, func() (err error) {
		vector, err = p.embedder.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		return p.index.CheckDimension(len(vector))
	})
	if err != nil {
		return nil, &stepError{step: stepEmbed, err: err}
	}
	return vector, nil
}

// upsert writes the index entry for a processed record.
func (p *processor) upsert(ctx context.Context, record *core.EmailRecord, vector []float32) error {
	return timed(stepIndex, func() error {
		return p.index.Upsert(ctx, index.Entry{
			ID:     record.Id,
			Vector: vector,
			Metadata: index.Metadata{
				Category:   record.Category,
				Importance: record.Importance,
				ReceivedAt: record.ReceivedAt,
			},
		})
	})
}

func timed(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStepDuration(step, err, time.Since(start))
	return err
}
