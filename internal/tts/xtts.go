package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"

	"github.com/spf13/afero"
)

const (
	DefaultXTTSSpeed    = 1.2
	DefaultXTTSLanguage = "en"
)

type XTTSConfig struct {
	URL         string
	Language    string
	Speed       float64
	Temperature float64
	Output      string
}

// XTTSSynthesizer talks to an XTTS-v2 HTTP server that clones the voice of
// the reference sample.
type XTTSSynthesizer struct {
	client *http.Client
	fs     afero.Fs
	cfg    XTTSConfig
}

type xttsRequest struct {
	Text        string  `json:"text"`
	SpeakerWav  string  `json:"speaker_wav"`
	Language    string  `json:"language"`
	Speed       float64 `json:"speed"`
	Temperature float64 `json:"temperature,omitempty"`
}

func NewXTTSSynthesizer(client *http.Client, fs afero.Fs, cfg XTTSConfig) *XTTSSynthesizer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Language == "" {
		cfg.Language = DefaultXTTSLanguage
	}
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultXTTSSpeed
	}
	return &XTTSSynthesizer{client: client, fs: fs, cfg: cfg}
}

func (s *XTTSSynthesizer) Synthesize(ctx context.Context, req Request) (Speech, error) {
	body, err := json.Marshal(xttsRequest{
		Text:        req.Text,
		SpeakerWav:  req.VoiceSample,
		Language:    s.cfg.Language,
		Speed:       s.cfg.Speed,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return Speech{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Speech{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Speech{}, fmt.Errorf("xtts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Speech{}, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(msg)),
		}
	}

	if err := saveStream(s.fs, s.cfg.Output, resp.Body); err != nil {
		return Speech{}, err
	}

	log.Debug("Speech generated", "provider", "xtts", "path", s.cfg.Output)
	return Speech{Path: s.cfg.Output, Format: formatOf(s.cfg.Output)}, nil
}
