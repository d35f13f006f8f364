package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/mailsift/ai"
	"github.com/poiesic/mailsift/core"
)

// ErrEmptySummary is returned when the model produces a blank summary.
var ErrEmptySummary = errors.New("model returned an empty summary")

type Summarizer struct {
	chat *chat
}

type summaryResponse struct {
	Summary        string   `json:"summary"`
	KeyPoints      []string `json:"key_points"`
	ActionItems    []string `json:"action_items"`
	ImportantDates []string `json:"important_dates"`
	Contacts       []string `json:"contacts"`
}

func newSummarizer(config *ai.Config) (*Summarizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c, err := newChat(config.CompletionHost, config.APIKey, config.SummaryModel, "openai-summarizer")
	if err != nil {
		return nil, err
	}
	return &Summarizer{chat: c}, nil
}

func NewSummarizer(config *ai.Config) (ai.Summarizer, error) {
	return newSummarizer(config)
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (*ai.Summary, error) {
	var resp summaryResponse
	if err := s.chat.completeJSON(ctx, buildSummaryPrompt(), text, &resp); err != nil {
		return nil, err
	}

	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return nil, ErrEmptySummary
	}

	s.chat.logger.Debug("summarized text",
		"input_length", len(text),
		"summary_length", len(summary),
		"action_items", len(resp.ActionItems))

	return &ai.Summary{
		Text: summary,
		Entities: core.Entities{
			KeyPoints:      compact(resp.KeyPoints),
			ActionItems:    compact(resp.ActionItems),
			ImportantDates: compact(resp.ImportantDates),
			Contacts:       compact(resp.Contacts),
		},
	}, nil
}

// compact trims entries and drops blank ones.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
