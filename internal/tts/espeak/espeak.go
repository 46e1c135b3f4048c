// Package espeak renders speech offline through libespeak-ng.
package espeak

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

typedef struct {
	short *data;
	int len;
	int cap;
} pcm_buf;

static pcm_buf out;

static int
collect(short *wav, int numsamples, espeak_EVENT *events)
{
	if (!wav || numsamples <= 0)
	{ return 0; }

	if (out.len + numsamples > out.cap)
	{
		int cap = out.cap ? out.cap * 2 : 16384;
		while (cap < out.len + numsamples)
		{ cap *= 2; }

		short *grown = realloc(out.data, cap * sizeof(short));
		if (!grown)
		{ return 1; }
		out.data = grown;
		out.cap = cap;
	}

	memcpy(out.data + out.len, wav, numsamples * sizeof(short));
	out.len += numsamples;
	return 0;
}

static int
espeak_render(const char *text, const char *voice, int rate, short **pcm, int *n)
{
	if (!text)
	{ return -1; }

	int sample_rate = espeak_Initialize(AUDIO_OUTPUT_SYNCHRONOUS, 500, NULL, 0);
	if (sample_rate <= 0)
	{ return -2; }

	espeak_SetSynthCallback(collect);

	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = voice;
	espeak_SetVoiceByProperties(&specs);

	if (rate > 0)
	{ espeak_SetParameter(espeakRATE, rate, 0); }

	out.data = NULL;
	out.len = 0;
	out.cap = 0;

	espeak_ERROR rc = espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0,
		espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	espeak_Terminate();

	if (rc != EE_OK)
	{
		free(out.data);
		return -3;
	}

	*pcm = out.data;
	*n = out.len;
	return sample_rate;
}
*/
import "C"

import (
	"context"
	"fmt"
	log "log/slog"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/spf13/afero"

	"voxchat/internal/audio"
	"voxchat/internal/tts"
)

const DefaultVoice = "en"

type Config struct {
	Voice string
	// Words per minute, 0 keeps the library default.
	Rate   int
	Output string
}

// Synthesizer uses a process-wide engine, so calls are serialized.
type Synthesizer struct {
	mu  sync.Mutex
	fs  afero.Fs
	cfg Config
}

func New(fs afero.Fs, cfg Config) *Synthesizer {
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return &Synthesizer{fs: fs, cfg: cfg}
}

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Speech, error) {
	if err := ctx.Err(); err != nil {
		return tts.Speech{}, err
	}

	samples, rate, err := s.render(req.Text)
	if err != nil {
		return tts.Speech{}, err
	}

	if dir := filepath.Dir(s.cfg.Output); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return tts.Speech{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := s.fs.Create(s.cfg.Output)
	if err != nil {
		return tts.Speech{}, fmt.Errorf("create %s: %w", s.cfg.Output, err)
	}
	if err := audio.WritePCM16WAV(f, samples, rate, 1); err != nil {
		f.Close()
		return tts.Speech{}, fmt.Errorf("write wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return tts.Speech{}, err
	}

	log.Debug("Speech generated", "provider", "espeak", "path", s.cfg.Output, "samples", len(samples))
	return tts.Speech{Path: s.cfg.Output, Format: "wav"}, nil
}

func (s *Synthesizer) render(text string) ([]int16, int, error) {
	if text == "" {
		return nil, 0, fmt.Errorf("empty text")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(s.cfg.Voice)
	defer C.free(unsafe.Pointer(cvoice))

	var (
		pcm *C.short
		n   C.int
	)
	rc := C.espeak_render(ctext, cvoice, C.int(s.cfg.Rate), &pcm, &n)
	if rc <= 0 {
		return nil, 0, fmt.Errorf("espeak_render failed: %d", int(rc))
	}
	defer C.free(unsafe.Pointer(pcm))

	if n == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("espeak produced no audio")
	}

	src := unsafe.Slice((*int16)(unsafe.Pointer(pcm)), int(n))
	samples := make([]int16, len(src))
	copy(samples, src)

	return samples, int(rc), nil
}
