package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoChoices is returned when the model produces no completion.
var ErrNoChoices = errors.New("model returned no choices")

// parseAttempts bounds how often a malformed JSON reply is re-requested.
const parseAttempts = 3

// chat is a chat completion client bound to one model.
type chat struct {
	client llms.Model
	logger *slog.Logger
}

func newChat(host, token, model, component string) (*chat, error) {
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &chat{
		client: client,
		logger: slog.Default().With("component", component),
	}, nil
}

func messages(system, user string) []llms.MessageContent {
	return []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}
}

// complete returns the text of the first choice.
func (c *chat) complete(ctx context.Context, system, user string, opts ...llms.CallOption) (string, error) {
	opts = append([]llms.CallOption{llms.WithTemperature(0.0)}, opts...)
	response, err := c.client.GenerateContent(ctx, messages(system, user), opts...)
	if err != nil {
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ErrNoChoices
	}
	return response.Choices[0].Content, nil
}

// completeJSON asks for a JSON object and decodes it into dest. A reply
// that does not parse is re-requested up to parseAttempts times.
func (c *chat) completeJSON(ctx context.Context, system, user string, dest any) error {
	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		content, err := c.complete(ctx, system, user, llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt, "err", err)
			return err
		}

		text := repairJSON(extractJSON(content))
		if err := json.Unmarshal([]byte(text), dest); err != nil {
			lastErr = err
			c.logger.Warn("error parsing model response",
				"attempt", attempt,
				"response", text,
				"err", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("unparseable model response: %w", lastErr)
}

// extractJSON strips code fences and any prose around the outermost object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// repairJSON quotes object keys that are missing their opening quote,
// turning `{summary": "x"}` into `{"summary": "x"}`.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	inString := false
	for i := 0; i < len(in); i++ {
		ch := in[i]
		if ch == '"' && (i == 0 || in[i-1] != '\\') {
			inString = !inString
		}
		out = append(out, ch)
		if inString || (ch != '{' && ch != ',') {
			continue
		}

		j := i + 1
		for j < len(in) && isSpace(in[j]) {
			j++
		}
		k := j
		for k < len(in) && isKeyRune(in[k]) {
			k++
		}
		if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
			out = append(out, in[i+1:j]...)
			out = append(out, '"')
			out = append(out, in[j:k]...)
			i = k - 1
			inString = true
		}
	}
	return string(out)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
