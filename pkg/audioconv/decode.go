package audioconv

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

func decodeWAV(r io.ReadSeeker) (stream, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return stream{}, errors.New("not a wav file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return stream{}, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return stream{}, errors.New("no samples")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	full := float32(int64(1) << (depth - 1))

	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = clamp(float32(v) / full)
	}

	s := stream{samples: out, channels: int(dec.NumChans), rate: int(dec.SampleRate)}
	if s.rate <= 0 {
		s.rate = 44100
	}
	return s, nil
}

func decodeMP3(r io.ReadSeeker) (stream, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return stream{}, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return stream{}, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}
	// go-mp3 always yields interleaved 16-bit stereo
	return stream{samples: PCM16(raw, rate, Options{SampleRate: rate}), channels: 2, rate: rate}, nil
}

// decodeOgg tries vorbis first, then opus.
func decodeOgg(r io.ReadSeeker) (stream, error) {
	s, vorbisErr := decodeVorbis(r)
	if vorbisErr == nil {
		return s, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return stream{}, err
	}
	s, err := decodeOpus(r)
	if err != nil {
		return stream{}, fmt.Errorf("neither vorbis (%v) nor opus: %w", vorbisErr, err)
	}
	return s, nil
}

func decodeVorbis(r io.Reader) (stream, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return stream{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return stream{}, errors.New("bad vorbis header")
	}
	return stream{samples: pcm, channels: format.Channels, rate: format.SampleRate}, nil
}

// libopusfile decodes at 48 kHz regardless of the input rate.
const opusRate = 48000

func decodeOpus(r io.ReadSeeker) (stream, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return stream{}, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)
	frame := make([]int16, opusRate/2*ch)

	var out []float32
	for {
		n, err := dec.Read(frame)
		for _, v := range frame[:n*ch] {
			out = append(out, float32(v)/32768)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stream{}, err
		}
	}
	return stream{samples: out, channels: ch, rate: opusRate}, nil
}

func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}

	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for _, v := range in[i*channels : (i+1)*channels] {
			sum += v
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample interpolates linearly between neighbouring samples.
func resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}

	step := float64(from) / float64(to)
	n := (len(in)*to + from - 1) / from
	out := make([]float32, n)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}

func clamp(x float32) float32 {
	return min(max(x, -1), 1)
}
