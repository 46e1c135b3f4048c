package mood

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	log "log/slog"

	"github.com/spf13/afero"
)

const PromptsFile = "prompts.json"

var defaultPrompts = map[Mood]string{
	Happy:     "RESPOND WITH JOY AND ENTHUSIASM.",
	Sad:       "RESPOND WITH KINDNESS AND COMFORT.",
	Flirty:    "RESPOND WITH A TOUCH OF MYSTERY AND CHARM.",
	Angry:     "RESPOND CALMLY AND WISELY.",
	Neutral:   "KEEP RESPONSES SHORT AND NATURAL.",
	Fearful:   "RESPOND WITH REASSURANCE.",
	Surprised: "RESPOND WITH AMAZEMENT.",
	Disgusted: "RESPOND WITH UNDERSTANDING.",
	Joyful:    "RESPOND WITH EXUBERANCE.",
}

// DefaultPrompts returns a copy of the built-in mood instructions.
func DefaultPrompts() map[Mood]string {
	out := make(map[Mood]string, len(defaultPrompts))
	for k, v := range defaultPrompts {
		out[k] = v
	}
	return out
}

// PromptStore reads the mood-to-instruction mapping of a character. The file
// is re-read on every lookup so edits apply to the next turn.
type PromptStore struct {
	fs   afero.Fs
	path string
}

func NewPromptStore(fs afero.Fs, path string) *PromptStore {
	return &PromptStore{fs: fs, path: path}
}

// Load never fails: a missing or unreadable file yields the defaults.
func (s *PromptStore) Load() map[Mood]string {
	prompts, err := s.read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("Mood prompts not found, using defaults", "path", s.path)
		} else {
			log.Error("Failed to load mood prompts, using defaults", "path", s.path, "err", err)
		}
		return DefaultPrompts()
	}
	return prompts
}

func (s *PromptStore) read() (map[Mood]string, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, err
	}

	var prompts map[Mood]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if prompts == nil {
		return nil, fmt.Errorf("parse %s: not an object", s.path)
	}

	return prompts, nil
}

// Adjust returns the instruction for m, or "" when the mapping has none.
func (s *PromptStore) Adjust(m Mood) string {
	log.Info("Detected mood", "mood", m)
	return s.Load()[m]
}
