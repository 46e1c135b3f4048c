package chat

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"

	"voxchat/internal/audio"
	"voxchat/internal/llm"
	"voxchat/internal/metrics"
	"voxchat/internal/mood"
	"voxchat/internal/share"
	"voxchat/internal/tts"
)

var quitPhrases = map[string]bool{
	"quit":   true,
	"Quit":   true,
	"Quit.":  true,
	"Exit.":  true,
	"Leave.": true,
}

// IsQuit reports whether the transcript ends the conversation.
func IsQuit(transcript string) bool {
	return quitPhrases[strings.TrimSpace(transcript)]
}

type Recorder interface {
	Record(ctx context.Context, opt audio.RecordOptions) (*audio.Recording, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
}

type MoodPrompts interface {
	Adjust(m mood.Mood) string
}

type Player interface {
	PlayFile(ctx context.Context, path string) error
}

type Cue interface {
	Play(ctx context.Context) error
}

type Ducker interface {
	Duck(ctx context.Context, factor float64, duration time.Duration) error
	Unduck(ctx context.Context, duration time.Duration) error
}

type Publisher interface {
	Publish(ctx context.Context, t share.Turn) error
}

type Config struct {
	// Shown before the reply, e.g. "Ava".
	Character    string
	SystemPrompt string
	VoiceSample  string

	InitialDelay  time.Duration
	SpeechLimit   int
	HistorySize   int
	RecordingsDir string

	DuckFactor float64
	DuckFade   time.Duration
}

// Deps are the collaborators of a session. Cue, Ducker, Publisher and
// Metrics are optional.
type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	LLM         llm.CompletionStreamer
	Classifier  mood.Classifier
	Prompts     MoodPrompts
	TTS         tts.SpeechSynthesizer
	Player      Player
	Cue         Cue
	Ducker      Ducker
	Publisher   Publisher
	Metrics     *metrics.Metrics
	Fs          afero.Fs
	Console     *Console
}

type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateTranscribing State = "transcribing"
	StateThinking     State = "thinking"
	StateSpeaking     State = "speaking"
	StateDone         State = "done"
)

type Status struct {
	State State
	Turns int
}

func (s Status) String() string {
	return fmt.Sprintf("%s, %d turns", s.State, s.Turns)
}

// Session runs the conversation one turn at a time.
type Session struct {
	cfg     Config
	deps    Deps
	history *llm.History

	recordings int

	mu     sync.Mutex
	status Status
}

func NewSession(cfg Config, deps Deps) (*Session, error) {
	switch {
	case deps.Recorder == nil:
		return nil, errors.New("session: no recorder")
	case deps.Transcriber == nil:
		return nil, errors.New("session: no transcriber")
	case deps.LLM == nil:
		return nil, errors.New("session: no completion streamer")
	case deps.TTS == nil:
		return nil, errors.New("session: no speech synthesizer")
	case deps.Player == nil:
		return nil, errors.New("session: no player")
	case deps.Prompts == nil:
		return nil, errors.New("session: no mood prompts")
	case deps.Fs == nil:
		return nil, errors.New("session: no filesystem")
	case deps.Console == nil:
		return nil, errors.New("session: no console")
	}
	if deps.Classifier == nil {
		deps.Classifier = mood.KeywordClassifier{}
	}
	if cfg.SpeechLimit == 0 {
		cfg.SpeechLimit = mood.DefaultSpeechLimit
	}

	return &Session{
		cfg:     cfg,
		deps:    deps,
		history: llm.NewHistory(cfg.HistorySize),
		status:  Status{State: StateIdle},
	}, nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) History() []llm.Turn { return s.history.Turns() }

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = st
}

func (s *Session) turnDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Turns++
}

// recordError marks failures of the input device, which end the session.
type recordError struct{ err error }

func (e *recordError) Error() string { return "record: " + e.err.Error() }
func (e *recordError) Unwrap() error { return e.err }

// Run loops until a quit phrase, ctx cancellation or a recording failure.
// Failures later in a turn are logged and the next turn starts.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateDone)

	first := true
	for {
		if ctx.Err() != nil {
			s.deps.Console.Notice("Quitting the conversation...")
			return nil
		}

		quit, err := s.Turn(ctx, first)
		first = false

		switch {
		case quit:
			s.deps.Console.Notice("Quitting the conversation...")
			return nil
		case err == nil:
		case ctx.Err() != nil:
			s.deps.Console.Notice("Quitting the conversation...")
			return nil
		default:
			var recErr *recordError
			if errors.As(err, &recErr) {
				return err
			}
			log.Error("Turn failed", "err", err)
		}
	}
}

// Turn runs one exchange and reports whether the user asked to quit.
func (s *Session) Turn(ctx context.Context, first bool) (quit bool, err error) {
	outcome := metrics.OutcomeOK
	defer func() {
		switch {
		case err != nil:
			outcome = metrics.OutcomeFailed
		case quit:
			outcome = metrics.OutcomeQuit
		}
		s.deps.Metrics.Turn(outcome)
	}()

	s.setState(StateListening)

	if s.deps.Cue != nil {
		if err := s.deps.Cue.Play(ctx); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	opt := audio.RecordOptions{}
	if first {
		opt.InitialDelay = s.cfg.InitialDelay
	}
	start := time.Now()
	rec, err := s.deps.Recorder.Record(ctx, opt)
	if err != nil {
		return false, &recordError{err: err}
	}
	s.deps.Metrics.Since(metrics.StageRecord, start)
	s.deps.Metrics.RecordingStopped(rec.Reason.String())
	log.Debug("Recorded", "reason", rec.Reason, "samples", rec.Utterance.NumSamples(), "duration", rec.Duration)

	s.saveRecording(rec.Utterance)

	s.setState(StateTranscribing)
	start = time.Now()
	text, err := s.deps.Transcriber.Transcribe(ctx, rec.Utterance.PCM(), rec.Utterance.SampleRate())
	if err != nil {
		return false, fmt.Errorf("transcribe: %w", err)
	}
	s.deps.Metrics.Since(metrics.StageTranscribe, start)
	s.deps.Console.User(text)

	if IsQuit(text) {
		return true, nil
	}
	if strings.TrimSpace(text) == "" {
		log.Info("Nothing was said")
		outcome = metrics.OutcomeEmpty
		return false, nil
	}

	s.setState(StateThinking)
	m, err := s.deps.Classifier.Classify(ctx, text)
	if err != nil {
		log.Warn("Mood classification failed", "err", err)
		m = mood.Analyze(text)
	}
	s.deps.Metrics.Mood(string(m))

	start = time.Now()
	reply, err := s.reply(ctx, text, s.deps.Prompts.Adjust(m))
	if err != nil {
		return false, err
	}
	s.deps.Metrics.Since(metrics.StageComplete, start)
	s.deps.Metrics.Reply(utf8.RuneCountInString(reply))

	s.history.Append(
		llm.Turn{Role: llm.RoleUser, Content: text},
		llm.Turn{Role: llm.RoleAssistant, Content: reply},
	)

	spoken := mood.Truncate(mood.Sanitize(reply), s.cfg.SpeechLimit)
	if spoken != "" {
		s.setState(StateSpeaking)
		if err := s.speak(ctx, spoken); err != nil {
			return false, err
		}
	} else {
		log.Warn("Reply has nothing to say aloud")
	}

	s.turnDone()

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(ctx, share.Turn{User: text, Assistant: reply, Mood: string(m)}); err != nil {
			log.Warn("Failed to share turn", "err", err)
		}
	}
	return false, nil
}

func (s *Session) reply(ctx context.Context, text, moodPrompt string) (string, error) {
	line := true
	if ms, ok := s.deps.LLM.(interface{ Mode() llm.Mode }); ok {
		line = ms.Mode() == llm.ModeLineBuffered
	}

	s.deps.Console.Thinking(s.cfg.Character)
	printed := false
	reply, err := s.deps.LLM.Stream(ctx, llm.Prompt{
		System:  s.cfg.SystemPrompt,
		Mood:    moodPrompt,
		History: s.history.Turns(),
		User:    text,
	}, func(seg string) {
		printed = true
		s.deps.Console.Segment(seg, line)
	})
	s.deps.Console.EndReply(printed && !line)

	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return reply, nil
}

func (s *Session) speak(ctx context.Context, text string) error {
	start := time.Now()
	speech, err := s.deps.TTS.Synthesize(ctx, tts.Request{Text: text, VoiceSample: s.cfg.VoiceSample})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	s.deps.Metrics.Since(metrics.StageSynthesize, start)

	exists, err := afero.Exists(s.deps.Fs, speech.Path)
	if err != nil || !exists {
		log.Error("Audio file not found", "path", speech.Path, "err", err)
		return nil
	}

	if s.deps.Ducker != nil {
		if err := s.deps.Ducker.Duck(ctx, s.cfg.DuckFactor, s.cfg.DuckFade); err != nil {
			log.Warn("Failed to duck other audio", "err", err)
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second+s.cfg.DuckFade)
			defer cancel()
			if err := s.deps.Ducker.Unduck(uctx, s.cfg.DuckFade); err != nil {
				log.Warn("Failed to restore other audio", "err", err)
			}
		}()
	}

	log.Debug("Playing reply", "path", speech.Path, "format", speech.Format)
	start = time.Now()
	if err := s.deps.Player.PlayFile(ctx, speech.Path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	s.deps.Metrics.Since(metrics.StagePlay, start)
	return nil
}

func (s *Session) saveRecording(u *audio.Utterance) {
	if s.cfg.RecordingsDir == "" {
		return
	}

	if err := s.deps.Fs.MkdirAll(s.cfg.RecordingsDir, 0o755); err != nil {
		log.Error("Failed to create recordings dir", "err", err)
		return
	}

	s.recordings++
	name := fmt.Sprintf("%s-%03d.wav", time.Now().Format("20060102-150405"), s.recordings)
	path := filepath.Join(s.cfg.RecordingsDir, name)
	f, err := s.deps.Fs.Create(path)
	if err != nil {
		log.Error("Failed to save recording", "err", err)
		return
	}
	defer f.Close()

	if err := u.WriteWAV(f); err != nil {
		log.Error("Failed to save recording", "path", path, "err", err)
		return
	}
	log.Debug("Saved recording", "path", path)
}
