// Package audioconv turns synthesized speech and raw recordings into mono
// float32 samples at a single rate, the shape both whisper and the speaker
// path expect.
package audioconv

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const DefaultSampleRate = 16000

type Options struct {
	SampleRate int // output rate; 0 = DefaultSampleRate
	MaxSamples int // 0 = no limit
}

func (o Options) rate() int {
	if o.SampleRate <= 0 {
		return DefaultSampleRate
	}
	return o.SampleRate
}

type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
)

var extFormats = map[string]Format{
	".wav":  FormatWAV,
	".mp3":  FormatMP3,
	".ogg":  FormatOgg,
	".oga":  FormatOgg,
	".opus": FormatOgg,
}

// FormatOf guesses the container from a file name.
func FormatOf(name string) Format {
	return extFormats[strings.ToLower(filepath.Ext(name))]
}

// Sniff looks at the first bytes of r and rewinds it.
func Sniff(r io.ReadSeeker) (Format, error) {
	head, _ := bufio.NewReaderSize(r, 16).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return FormatUnknown, err
	}

	switch {
	case len(head) < 3:
		return FormatUnknown, nil
	case string(head) == "RIFF":
		return FormatWAV, nil
	case string(head) == "OggS":
		return FormatOgg, nil
	case string(head[:3]) == "ID3", head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return FormatUnknown, nil
}

// stream is decoded audio before downmixing and resampling.
type stream struct {
	samples  []float32 // interleaved
	channels int
	rate     int
}

var decoders = map[Format]func(io.ReadSeeker) (stream, error){
	FormatWAV: decodeWAV,
	FormatMP3: decodeMP3,
	FormatOgg: decodeOgg,
}

// Decode returns mono float32 samples in [-1, 1] at opt.SampleRate. The
// name's extension picks the decoder, the leading bytes decide when the
// extension says nothing.
func Decode(ctx context.Context, r io.ReadSeeker, name string, opt Options) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := FormatOf(name)
	if f == FormatUnknown {
		var err error
		if f, err = Sniff(r); err != nil {
			return nil, err
		}
	}

	decode, ok := decoders[f]
	if !ok {
		return nil, fmt.Errorf("unsupported audio %q: want wav, mp3, ogg vorbis or ogg opus", name)
	}

	s, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	return s.mono(opt), nil
}

// PCM16 converts mono little-endian 16-bit PCM recorded at inRate.
func PCM16(pcm []byte, inRate int, opt Options) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return stream{samples: out, channels: 1, rate: inRate}.mono(opt)
}

func (s stream) mono(opt Options) []float32 {
	x := downmix(s.samples, s.channels)
	x = resample(x, s.rate, opt.rate())
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x
}
