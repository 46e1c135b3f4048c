package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"voxchat/internal/audio"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderXTTS   = "xtts"
	ProviderEspeak = "espeak"

	ClassifierKeyword = "keyword"
	ClassifierOpenAI  = "openai"
)

type OpenAI struct {
	APIKey   string
	Model    string
	BaseURL  string
	TTSURL   string
	TTSVoice string
	TTSModel string
	TTSSpeed float64
}

type Ollama struct {
	Model   string
	BaseURL string
}

type XTTS struct {
	URL      string
	Speed    float64
	Language string
}

type Whisper struct {
	Model    string
	Language string
	Beam     int
}

type Config struct {
	EnvFile  string
	LogLevel string

	Character     string
	CharactersDir string
	OutputDir     string
	OutputFile    string
	// Recordings are written here when non-empty.
	RecordingsDir string

	ModelProvider  string
	TTSProvider    string
	MoodClassifier string

	OpenAI  OpenAI
	Ollama  Ollama
	XTTS    XTTS
	Whisper Whisper

	EspeakVoice string

	Detector     audio.DetectorConfig
	InitialDelay time.Duration

	HistorySize int
	SpeechLimit int
	LLMTimeout  time.Duration

	Duck       bool
	DuckFactor float64

	Proxy         string
	Share         bool
	ShareURL      string
	MetricsAddr   string
	ControlSocket string
	BeepFile      string
}

// Load parses args, loads the env file (existing variables win) and reads
// the environment. The result is validated.
func Load(args []string) (*Config, error) {
	fl := cli.NewFlagSet("voxchat", cli.ContinueOnError)
	envFile := fl.StringP("env", "e", ".env", "Env file path")
	logLevel := fl.StringP("log", "l", "info", "Log level")
	share := fl.Bool("share", false, "Mirror turns to the hub at SHARE_URL")
	proxyAddr := fl.StringP("proxy", "p", "", "Socks proxy address")
	character := fl.StringP("character", "c", "", "Character name (overrides CHARACTER_NAME)")
	recordings := fl.String("save-recordings", "", "Directory to keep user recordings in")
	metricsAddr := fl.String("metrics", "", "Address to serve prometheus metrics on, e.g. :9090")
	if err := fl.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", *envFile, err)
	}

	e := &env{}
	det := audio.DefaultDetectorConfig()
	det.SilenceThreshold = e.float("SILENCE_THRESHOLD", det.SilenceThreshold)
	det.SilenceDuration = e.float("SILENCE_DURATION", det.SilenceDuration)
	det.MaxSpeechDuration = e.float("MAX_SPEECH_DURATION", det.MaxSpeechDuration)

	cfg := &Config{
		EnvFile:  *envFile,
		LogLevel: *logLevel,

		Character:     first(*character, e.str("CHARACTER_NAME", "")),
		CharactersDir: e.str("CHARACTERS_DIR", "."),
		OutputDir:     e.str("OUTPUT_DIR", "outputs"),
		OutputFile:    e.str("OUTPUT_FILE", "output.wav"),
		RecordingsDir: first(*recordings, e.str("RECORDINGS_DIR", "")),

		ModelProvider:  strings.ToLower(e.str("MODEL_PROVIDER", ProviderOllama)),
		TTSProvider:    strings.ToLower(e.str("TTS_PROVIDER", ProviderOpenAI)),
		MoodClassifier: strings.ToLower(e.str("MOOD_CLASSIFIER", ClassifierKeyword)),

		OpenAI: OpenAI{
			APIKey:   e.str("OPENAI_API_KEY", ""),
			Model:    e.str("OPENAI_MODEL", "gpt-4o"),
			BaseURL:  e.str("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			TTSURL:   e.str("OPENAI_TTS_URL", "https://api.openai.com/v1/audio/speech"),
			TTSVoice: e.str("OPENAI_TTS_VOICE", "alloy"),
			TTSModel: e.str("OPENAI_TTS_MODEL", "tts-1"),
			TTSSpeed: e.float("OPENAI_TTS_SPEED", 0),
		},
		Ollama: Ollama{
			Model:   e.str("OLLAMA_MODEL", "llama3"),
			BaseURL: e.str("OLLAMA_BASE_URL", "http://localhost:11434"),
		},
		XTTS: XTTS{
			URL:      e.str("XTTS_URL", "http://localhost:8020/tts_to_audio/"),
			Speed:    e.float("XTTS_SPEED", 1.2),
			Language: e.str("XTTS_LANGUAGE", "en"),
		},
		Whisper: Whisper{
			Model:    e.str("WHISPER_MODEL", "third_party/whisper.cpp/models/ggml-medium.en.bin"),
			Language: e.str("WHISPER_LANGUAGE", "en"),
			Beam:     e.int("WHISPER_BEAM_SIZE", 5),
		},

		EspeakVoice: e.str("ESPEAK_VOICE", "en"),

		Detector:     det,
		InitialDelay: e.duration("INITIAL_DELAY", 2*time.Second),

		HistorySize: e.int("HISTORY_SIZE", 20),
		SpeechLimit: e.int("SPEECH_LIMIT", 400),
		LLMTimeout:  e.duration("LLM_TIMEOUT", 30*time.Second),

		Duck:       e.bool("DUCK", true),
		DuckFactor: e.float("DUCK_FACTOR", 0.3),

		Proxy:         first(*proxyAddr, e.str("SOCKS_PROXY", "")),
		Share:         *share,
		ShareURL:      e.str("SHARE_URL", ""),
		MetricsAddr:   first(*metricsAddr, e.str("METRICS_ADDR", "")),
		ControlSocket: e.str("CONTROL_SOCKET", filepath.Join(os.TempDir(), "voxchat.sock")),
		BeepFile:      e.str("BEEP_FILE", "beep.mp3"),
	}

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Character == "" {
		errs = append(errs, errors.New("CHARACTER_NAME not set"))
	}

	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	case ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("unknown MODEL_PROVIDER %q", c.ModelProvider))
	}

	switch c.TTSProvider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
		if !strings.HasSuffix(c.OpenAI.TTSURL, speechPath) {
			errs = append(errs, fmt.Errorf("OPENAI_TTS_URL must end with %s", speechPath))
		}
	case ProviderXTTS, ProviderEspeak:
	default:
		errs = append(errs, fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider))
	}

	switch c.MoodClassifier {
	case ClassifierKeyword:
	case ClassifierOpenAI:
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MOOD_CLASSIFIER %q", c.MoodClassifier))
	}

	if _, err := audio.NewSilenceDetector(c.Detector); err != nil {
		errs = append(errs, err)
	}
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.HistorySize))
	}
	if c.Share && c.ShareURL == "" {
		errs = append(errs, errors.New("--share needs SHARE_URL"))
	}
	if c.DuckFactor < 0 || c.DuckFactor > 1 {
		errs = append(errs, fmt.Errorf("DUCK_FACTOR must be within [0, 1], got %g", c.DuckFactor))
	}

	return dedupe(errs)
}

const speechPath = "/audio/speech"

// SpeechBaseURL is OPENAI_TTS_URL without the endpoint, as the openai client
// expects.
func (c *Config) SpeechBaseURL() string {
	return strings.TrimSuffix(c.OpenAI.TTSURL, strings.TrimPrefix(speechPath, "/"))
}

// APIBaseURL is OPENAI_BASE_URL without the chat completions endpoint.
func (c *Config) APIBaseURL() string {
	return strings.TrimSuffix(c.OpenAI.BaseURL, "chat/completions")
}

func (c *Config) CharacterDir() string {
	return filepath.Join(c.CharactersDir, c.Character)
}

func (c *Config) CharacterPrompt() string {
	return filepath.Join(c.CharacterDir(), c.Character+".txt")
}

func (c *Config) VoiceSample() string {
	return filepath.Join(c.CharacterDir(), c.Character+".wav")
}

func (c *Config) MoodPrompts() string {
	return filepath.Join(c.CharacterDir(), "prompts.json")
}

func (c *Config) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputFile)
}

// DisplayName capitalizes the first letter of the character name.
func (c *Config) DisplayName() string {
	if c.Character == "" {
		return ""
	}
	r := []rune(c.Character)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go durations ("2s") or plain seconds ("2.5").
func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func dedupe(errs []error) error {
	seen := make(map[string]bool, len(errs))
	var out []error
	for _, err := range errs {
		if seen[err.Error()] {
			continue
		}
		seen[err.Error()] = true
		out = append(out, err)
	}
	return errors.Join(out...)
}
