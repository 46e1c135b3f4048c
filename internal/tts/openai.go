package tts

import (
	"context"
	"fmt"
	"io"
	log "log/slog"

	openai "github.com/openai/openai-go/v3"
	"github.com/spf13/afero"

	"voxchat/internal/audio"
)

type OpenAIConfig struct {
	Voice  string
	Model  string
	Speed  float64
	Output string
}

type OpenAISynthesizer struct {
	client openai.Client
	fs     afero.Fs
	cfg    OpenAIConfig
}

func NewOpenAISynthesizer(client openai.Client, fs afero.Fs, cfg OpenAIConfig) *OpenAISynthesizer {
	if cfg.Voice == "" {
		cfg.Voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	if cfg.Model == "" {
		cfg.Model = openai.SpeechModelTTS1
	}
	return &OpenAISynthesizer{client: client, fs: fs, cfg: cfg}
}

// Synthesize asks for raw PCM when the output is a .wav file and wraps it
// locally; any other extension is requested as-is and saved verbatim.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req Request) (Speech, error) {
	format := formatOf(s.cfg.Output)
	if format == "" {
		return Speech{}, fmt.Errorf("output %q has no extension", s.cfg.Output)
	}

	params := openai.AudioSpeechNewParams{
		Input: req.Text,
		Model: s.cfg.Model,
		Voice: openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
	}
	if s.cfg.Speed > 0 {
		params.Speed = openai.Float(s.cfg.Speed)
	}
	if format == "wav" {
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormatPCM
	} else {
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormat(format)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return Speech{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Body.Close()

	if format == "wav" {
		err = s.savePCM(resp.Body)
	} else {
		err = saveStream(s.fs, s.cfg.Output, resp.Body)
	}
	if err != nil {
		return Speech{}, err
	}

	log.Debug("Speech generated", "provider", "openai", "path", s.cfg.Output)
	return Speech{Path: s.cfg.Output, Format: format}, nil
}

func (s *OpenAISynthesizer) savePCM(body io.Reader) error {
	pcm, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read pcm: %w", err)
	}

	f, err := createOutput(s.fs, s.cfg.Output)
	if err != nil {
		return err
	}

	if err := audio.WritePCM16WAV(f, audio.PCM16FromBytes(pcm), PCMSampleRate, PCMChannels); err != nil {
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	return f.Close()
}
