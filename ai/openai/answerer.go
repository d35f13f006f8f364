package openai

import (
	"context"
	"strings"

	"github.com/poiesic/mailsift/ai"
)

type Answerer struct {
	chat *chat
}

func newAnswerer(config *ai.Config) (*Answerer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c, err := newChat(config.CompletionHost, config.APIKey, config.AnswerModel, "openai-answerer")
	if err != nil {
		return nil, err
	}
	return &Answerer{chat: c}, nil
}

func NewAnswerer(config *ai.Config) (ai.Answerer, error) {
	return newAnswerer(config)
}

func (a *Answerer) Answer(ctx context.Context, question, contextText string) (string, error) {
	a.chat.logger.Debug("answering question", "question_length", len(question), "context_length", len(contextText))

	answer, err := a.chat.complete(ctx, buildAnswerPrompt(contextText), question)
	if err != nil {
		a.chat.logger.Error("failed to generate answer", "err", err)
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
