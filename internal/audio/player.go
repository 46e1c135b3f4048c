package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/afero"

	"voxchat/pkg/audioconv"
)

const (
	playbackFrames = 1024

	// non-WAV files are decoded to mono at this rate before playback
	decodedPlaybackRate = 24000
)

// Player plays synthesized speech files. It expects portaudio to be
// initialized by the Recorder.
type Player struct {
	fs afero.Fs
}

func NewPlayer(fs afero.Fs) *Player { return &Player{fs: fs} }

// PlayFile blocks until the file has been written to the output device.
func (p *Player) PlayFile(ctx context.Context, path string) error {
	f, err := p.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		dec := wav.NewDecoder(f)
		if dec.IsValidFile() && dec.BitDepth == 16 {
			return p.playWAV(ctx, dec)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	pcm, err := audioconv.Decode(ctx, f, path, audioconv.Options{SampleRate: decodedPlaybackRate})
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	return p.playFloat(ctx, pcm, decodedPlaybackRate)
}

// playWAV opens the output stream with the channel count and sample rate
// from the WAV header.
func (p *Player) playWAV(ctx context.Context, dec *wav.Decoder) error {
	ch := int(dec.NumChans)
	rate := int(dec.SampleRate)
	if ch <= 0 || rate <= 0 {
		return errors.New("invalid wav header")
	}

	log.Debug("Playing wav", "channels", ch, "rate", rate)

	out := make([]int16, playbackFrames*ch)
	stream, err := openSpeaker(ch, rate, out)
	if err != nil {
		return err
	}
	defer closeSpeaker(stream)

	buf := &goaudio.IntBuffer{
		Format: dec.Format(),
		Data:   make([]int, len(out)),
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			return nil
		}

		for i := range out {
			if i < n {
				out[i] = int16(buf.Data[i])
			} else {
				out[i] = 0
			}
		}

		if err := writeSpeaker(stream); err != nil {
			return err
		}
	}
}

func (p *Player) playFloat(ctx context.Context, pcm []float32, rate int) error {
	out := make([]float32, playbackFrames)
	stream, err := openSpeaker(1, rate, out)
	if err != nil {
		return err
	}
	defer closeSpeaker(stream)

	for off := 0; off < len(pcm); off += len(out) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(out, pcm[off:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}

		if err := writeSpeaker(stream); err != nil {
			return err
		}
	}

	return nil
}

func openSpeaker(channels, rate int, buf any) (*portaudio.Stream, error) {
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(rate), playbackFrames, buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	return stream, nil
}

func writeSpeaker(stream *portaudio.Stream) error {
	err := stream.Write()
	if err == portaudio.OutputUnderflowed {
		return nil
	}
	return err
}

func closeSpeaker(stream *portaudio.Stream) {
	stream.Stop()
	stream.Close()
}
