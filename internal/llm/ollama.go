package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const ollamaCompletionsPath = "/v1/chat/completions"

// OllamaStreamer uses the OpenAI-compatible endpoint of an Ollama server and
// prints the reply line by line.
type OllamaStreamer struct {
	stream httpStream
	model  string
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Turn        `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

func NewOllamaStreamer(client *http.Client, baseURL, model string, timeout time.Duration) *OllamaStreamer {
	return &OllamaStreamer{
		stream: httpStream{
			client:  client,
			url:     strings.TrimRight(baseURL, "/") + ollamaCompletionsPath,
			mode:    ModeLineBuffered,
			timeout: timeout,
		},
		model: model,
	}
}

func (s *OllamaStreamer) Stream(ctx context.Context, p Prompt, emit func(string)) (string, error) {
	return s.stream.do(ctx, ollamaRequest{
		Model:    s.model,
		Messages: p.Messages(),
		Stream:   true,
		Options: ollamaOptions{
			// -2 lets the model fill the context
			NumPredict:  -2,
			Temperature: 1.0,
		},
	}, emit)
}

func (s *OllamaStreamer) Mode() Mode { return s.stream.mode }
