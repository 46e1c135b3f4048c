package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	"github.com/mattn/go-isatty"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	cli "github.com/spf13/pflag"

	"voxchat/internal/audio"
	"voxchat/internal/chat"
	"voxchat/internal/config"
	"voxchat/internal/ipc"
	"voxchat/internal/llm"
	"voxchat/internal/metrics"
	"voxchat/internal/mood"
	"voxchat/internal/notify"
	"voxchat/internal/proxy"
	"voxchat/internal/share"
	"voxchat/internal/tts"
	"voxchat/internal/tts/espeak"
	"voxchat/pkg/stt"
)

const duckFade = 300 * time.Millisecond

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, cli.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "voxchat:", err)
		os.Exit(1)
	}

	tty := isatty.IsTerminal(os.Stdout.Fd())
	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:   logLevelMap[cfg.LogLevel],
		NoColor: !tty,
	})))

	if err := run(cfg, tty); err != nil {
		log.Error("voxchat failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, tty bool) error {
	log.Info("Booting up", "character", cfg.Character, "llm", cfg.ModelProvider, "tts", cfg.TTSProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()

	system, err := afero.ReadFile(fs, cfg.CharacterPrompt())
	if err != nil {
		return fmt.Errorf("read character prompt: %w", err)
	}

	// Completions stream for as long as the model talks, the idle timeout
	// lives in the streamer.
	streamClient, err := proxy.NewClient(cfg.Proxy, 0)
	if err != nil {
		return err
	}
	httpClient, err := proxy.NewClient(cfg.Proxy, proxy.DefaultTimeout)
	if err != nil {
		return err
	}
	log.Debug("Loaded http clients", "proxy", cfg.Proxy)

	streamer := newStreamer(cfg, streamClient)
	classifier := newClassifier(cfg, httpClient)

	synth, err := newSynthesizer(cfg, fs, httpClient)
	if err != nil {
		return err
	}

	rec := audio.NewRecorder(cfg.Detector)
	if err := rec.Init(); err != nil {
		return fmt.Errorf("init audio: %w", err)
	}
	defer rec.Close()
	log.Debug("Loaded recorder")

	whisper, err := stt.NewTranscriber(cfg.Whisper.Model, stt.Options{
		Language: cfg.Whisper.Language,
		BeamSize: cfg.Whisper.Beam,
	})
	if err != nil {
		return fmt.Errorf("init whisper: %w", err)
	}
	defer whisper.Close()
	log.Debug("Loaded whisper", "model", cfg.Whisper.Model)

	deps := chat.Deps{
		Recorder:    rec,
		Transcriber: whisper,
		LLM:         streamer,
		Classifier:  classifier,
		Prompts:     mood.NewPromptStore(fs, cfg.MoodPrompts()),
		TTS:         synth,
		Player:      audio.NewPlayer(fs),
		Fs:          fs,
		Console:     chat.NewConsole(os.Stdout, tty),
	}

	if ok, _ := afero.Exists(fs, cfg.BeepFile); ok {
		deps.Cue = notify.NewCue(fs, cfg.BeepFile)
	} else {
		log.Warn("Cue sound not found, recording without it", "path", cfg.BeepFile)
	}

	if cfg.Duck {
		deps.Ducker = audio.NewDucker([]string{"voxchat", "PortAudio"}, 10)
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		deps.Metrics = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				log.Error("Metrics server stopped", "err", err)
			}
		}()
	}

	if cfg.Share {
		pub, err := share.Dial(ctx, cfg.ShareURL, cfg.Character, share.Options{})
		if err != nil {
			return fmt.Errorf("connect to hub: %w", err)
		}
		defer pub.Close()
		deps.Publisher = pub
	}

	session, err := chat.NewSession(chat.Config{
		Character:     cfg.DisplayName(),
		SystemPrompt:  string(system),
		VoiceSample:   cfg.VoiceSample(),
		InitialDelay:  cfg.InitialDelay,
		SpeechLimit:   cfg.SpeechLimit,
		HistorySize:   cfg.HistorySize,
		RecordingsDir: cfg.RecordingsDir,
		DuckFactor:    cfg.DuckFactor,
		DuckFade:      duckFade,
	}, deps)
	if err != nil {
		return err
	}

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	ctl, err := ipc.StartServer(cfg.ControlSocket, func(msg ipc.ControlMessage) ipc.Reply {
		switch msg.Cmd {
		case ipc.CmdQuit:
			log.Info("Quit requested")
			quit()
			return ipc.Reply{OK: true}
		case ipc.CmdStatus:
			return ipc.Reply{OK: true, Status: session.Status().String()}
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Reply{Error: "unknown command " + msg.Cmd}
		}
	})
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer ctl.Close()

	log.Info("Boot up - successful")
	deps.Console.Notice("Chatting with %s on %s. To stop chatting say Quit or Leave.", cfg.DisplayName(), modelName(cfg))
	return session.Run(ctx)
}

func modelName(cfg *config.Config) string {
	if cfg.ModelProvider == config.ProviderOpenAI {
		return cfg.OpenAI.Model
	}
	return cfg.Ollama.Model
}

func newStreamer(cfg *config.Config, client *http.Client) llm.CompletionStreamer {
	if cfg.ModelProvider == config.ProviderOpenAI {
		return llm.NewOpenAIStreamer(client, cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.LLMTimeout)
	}
	return llm.NewOllamaStreamer(client, cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.LLMTimeout)
}

func newClassifier(cfg *config.Config, client *http.Client) mood.Classifier {
	if cfg.MoodClassifier != config.ClassifierOpenAI {
		return mood.KeywordClassifier{}
	}
	api := openai.NewClient(
		option.WithAPIKey(cfg.OpenAI.APIKey),
		option.WithHTTPClient(client),
		option.WithBaseURL(cfg.APIBaseURL()),
	)
	return mood.NewOpenAIClassifier(api, "")
}

func newSynthesizer(cfg *config.Config, fs afero.Fs, client *http.Client) (tts.SpeechSynthesizer, error) {
	if err := fs.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	switch cfg.TTSProvider {
	case config.ProviderXTTS:
		return tts.NewXTTSSynthesizer(client, fs, tts.XTTSConfig{
			URL:         cfg.XTTS.URL,
			Language:    cfg.XTTS.Language,
			Speed:       cfg.XTTS.Speed,
			Temperature: 0.2,
			Output:      cfg.OutputPath(),
		}), nil
	case config.ProviderEspeak:
		return espeak.New(fs, espeak.Config{
			Voice:  cfg.EspeakVoice,
			Output: cfg.OutputPath(),
		}), nil
	default:
		api := openai.NewClient(
			option.WithAPIKey(cfg.OpenAI.APIKey),
			option.WithHTTPClient(client),
			option.WithBaseURL(cfg.SpeechBaseURL()),
		)
		return tts.NewOpenAISynthesizer(api, fs, tts.OpenAIConfig{
			Voice:  cfg.OpenAI.TTSVoice,
			Model:  cfg.OpenAI.TTSModel,
			Speed:  cfg.OpenAI.TTSSpeed,
			Output: cfg.OutputPath(),
		}), nil
	}
}
