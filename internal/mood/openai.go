package mood

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const classifierPrompt = `
You label the emotional tone of a single user utterance for a voice companion.
Answer with exactly ONE lowercase word from this list and nothing else:
happy, sad, flirty, angry, neutral, fearful, surprised, disgusted, joyful

RULES:
1. Do NOT converse.
2. Do NOT explain.
3. No punctuation, no markdown.
4. If unsure, answer neutral.
`

// OpenAIClassifier asks a chat model for the mood and falls back to keyword
// matching whenever the call fails or the answer is not a known mood.
type OpenAIClassifier struct {
	client openai.Client
	model  string
}

func NewOpenAIClassifier(client openai.Client, model string) *OpenAIClassifier {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAIClassifier{client: client, model: model}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Mood, error) {
	m, err := c.ask(ctx, text)
	if err != nil {
		log.Warn("Mood classifier failed, falling back to keywords", "err", err)
		return Analyze(text), nil
	}
	return m, nil
}

func (c *OpenAIClassifier) ask(ctx context.Context, text string) (Mood, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierPrompt),
			openai.UserMessage(text),
		},
		Model: c.model,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return parseLabel(resp.Choices[0].Message.Content)
}

func parseLabel(content string) (Mood, error) {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(content), ".!\"'`"))
	m := Mood(label)
	if !Known(m) {
		return "", fmt.Errorf("unknown mood label %q", content)
	}

	log.Debug("Classified mood", "mood", m)
	return m, nil
}
