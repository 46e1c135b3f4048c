package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrFinalized = errors.New("utterance already finalized")
	ErrNoAudio   = errors.New("no audio recorded")
)

// Utterance collects the chunks of one recording session.
type Utterance struct {
	sampleRate int
	chunks     [][]int16
	samples    int
	finalized  bool
}

func NewUtterance(sampleRate int) *Utterance {
	return &Utterance{sampleRate: sampleRate}
}

// Append copies the chunk, the reader is free to reuse its buffer.
func (u *Utterance) Append(chunk []int16) error {
	if u.finalized {
		return ErrFinalized
	}

	c := make([]int16, len(chunk))
	copy(c, chunk)
	u.chunks = append(u.chunks, c)
	u.samples += len(c)

	return nil
}

func (u *Utterance) Finalize() { u.finalized = true }
func (u *Utterance) Finalized() bool { return u.finalized }
func (u *Utterance) SampleRate() int { return u.sampleRate }
func (u *Utterance) NumChunks() int { return len(u.chunks) }
func (u *Utterance) NumSamples() int { return u.samples }

func (u *Utterance) Samples() []int16 {
	out := make([]int16, 0, u.samples)
	for _, c := range u.chunks {
		out = append(out, c...)
	}
	return out
}

// PCM is the mono little-endian 16-bit serialization of the utterance.
func (u *Utterance) PCM() []byte {
	out := make([]byte, 2*u.samples)
	i := 0
	for _, c := range u.chunks {
		for _, x := range c {
			binary.LittleEndian.PutUint16(out[i:], uint16(x))
			i += 2
		}
	}
	return out
}

func (u *Utterance) WriteWAV(w io.WriteSeeker) error {
	if u.samples == 0 {
		return ErrNoAudio
	}
	return WritePCM16WAV(w, u.Samples(), u.sampleRate, 1)
}

// WritePCM16WAV wraps interleaved 16-bit samples into a WAV container.
func WritePCM16WAV(w io.WriteSeeker, samples []int16, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)

	data := make([]int, len(samples))
	for i, x := range samples {
		data[i] = int(x)
	}

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}

	return nil
}

// PCM16FromBytes decodes little-endian 16-bit PCM. A trailing odd byte is dropped.
func PCM16FromBytes(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
