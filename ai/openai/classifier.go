package openai

import (
	"context"

	"github.com/poiesic/mailsift/ai"
)

type Classifier struct {
	chat *chat
}

type classificationResponse struct {
	Category   string `json:"category"`
	Importance string `json:"importance"`
}

func newClassifier(config *ai.Config) (*Classifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c, err := newChat(config.CompletionHost, config.APIKey, config.ClassifierModel, "openai-classifier")
	if err != nil {
		return nil, err
	}
	return &Classifier{chat: c}, nil
}

func NewClassifier(config *ai.Config) (ai.Classifier, error) {
	return newClassifier(config)
}

// Classify maps the model's answer onto the closed value sets; values the
// model invents fall back to "other" and "medium".
func (c *Classifier) Classify(ctx context.Context, in ai.ClassifyInput) (*ai.Classification, error) {
	var resp classificationResponse
	if err := c.chat.completeJSON(ctx, buildClassificationPrompt(), buildClassificationInput(in), &resp); err != nil {
		return nil, err
	}

	result := ai.NormalizeClassification(resp.Category, resp.Importance)
	if string(result.Category) != resp.Category || string(result.Importance) != resp.Importance {
		c.chat.logger.Debug("normalized classification",
			"category", resp.Category,
			"importance", resp.Importance,
			"normalized_category", result.Category,
			"normalized_importance", result.Importance)
	}
	return result, nil
}
