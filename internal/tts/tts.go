package tts

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Sample format of OpenAI "pcm" responses.
const (
	PCMSampleRate = 24000
	PCMChannels   = 1
)

type Request struct {
	Text string
	// Reference voice for providers that clone a speaker; ignored by the rest.
	VoiceSample string
}

type Speech struct {
	Path   string
	Format string
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req Request) (Speech, error)
}

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts server: %s", e.Status)
	}
	return fmt.Sprintf("tts server: %s: %s", e.Status, e.Body)
}

// formatOf derives the audio format from the output file extension.
func formatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func createOutput(fs afero.Fs, path string) (afero.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return f, nil
}

// saveStream copies body into path, removing the partial file on failure.
func saveStream(fs afero.Fs, path string, body io.Reader) error {
	f, err := createOutput(fs, path)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		fs.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
