package llm

import (
	"context"
	"net/http"
	"time"
)

// OpenAIStreamer talks to an OpenAI-compatible chat completions endpoint
// and prints the reply as it arrives, delta by delta.
type OpenAIStreamer struct {
	stream httpStream
	model  string
}

type openAIRequest struct {
	Model    string `json:"model"`
	Messages []Turn `json:"messages"`
	Stream   bool   `json:"stream"`
}

// NewOpenAIStreamer takes the full chat completions URL, e.g.
// https://api.openai.com/v1/chat/completions.
func NewOpenAIStreamer(client *http.Client, url, apiKey, model string, timeout time.Duration) *OpenAIStreamer {
	return &OpenAIStreamer{
		stream: httpStream{
			client:  client,
			url:     url,
			headers: map[string]string{"Authorization": "Bearer " + apiKey},
			mode:    ModeIncremental,
			timeout: timeout,
		},
		model: model,
	}
}

func (s *OpenAIStreamer) Stream(ctx context.Context, p Prompt, emit func(string)) (string, error) {
	return s.stream.do(ctx, openAIRequest{
		Model:    s.model,
		Messages: p.Messages(),
		Stream:   true,
	}, emit)
}

func (s *OpenAIStreamer) Mode() Mode { return s.stream.mode }
