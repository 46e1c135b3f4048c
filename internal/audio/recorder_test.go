package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReader struct {
	chunks func(i int) []int16
	failAt int
	err    error
	reads  int
	buf    []int16
}

func (r *scriptedReader) ReadChunk() ([]int16, error) {
	if r.err != nil && r.reads == r.failAt {
		return nil, r.err
	}
	// reuse one buffer like the portaudio reader does
	c := r.chunks(r.reads)
	r.buf = append(r.buf[:0], c...)
	r.reads++
	return r.buf, nil
}

func TestCaptureKeepsTrailingSilence(t *testing.T) {
	cfg := DefaultDetectorConfig()
	det, err := NewSilenceDetector(cfg)
	require.NoError(t, err)

	loud := constChunk(cfg.ChunkSize, 3000)
	quiet := constChunk(cfg.ChunkSize, 5)

	src := &scriptedReader{chunks: func(i int) []int16 {
		if i < 10 {
			return loud
		}
		return quiet
	}}

	rec, err := Capture(context.Background(), src, det, cfg.SampleRate, RecordOptions{})
	require.NoError(t, err)

	utt := rec.Utterance
	assert.Equal(t, StopSilence, rec.Reason)
	assert.True(t, utt.Finalized())
	assert.Equal(t, 10+det.SilenceLimit(), utt.NumChunks())
	assert.Equal(t, utt.NumChunks()*cfg.ChunkSize, utt.NumSamples())

	samples := utt.Samples()
	assert.Equal(t, int16(3000), samples[0])
	assert.Equal(t, int16(5), samples[len(samples)-2])

	assert.ErrorIs(t, utt.Append(loud), ErrFinalized)
}

func TestCapturePropagatesReadError(t *testing.T) {
	det, err := NewSilenceDetector(DefaultDetectorConfig())
	require.NoError(t, err)

	boom := errors.New("device gone")
	src := &scriptedReader{
		chunks: func(int) []int16 { return []int16{1000} },
		failAt: 3,
		err:    boom,
	}

	_, err = Capture(context.Background(), src, det, DefaultSampleRate, RecordOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.reads)
}

func TestCaptureHonoursCancelledContext(t *testing.T) {
	det, err := NewSilenceDetector(DefaultDetectorConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptedReader{chunks: func(int) []int16 { return []int16{0} }}

	_, err = Capture(ctx, src, det, DefaultSampleRate, RecordOptions{InitialDelay: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.reads)
}

func TestCaptureInitialDelay(t *testing.T) {
	det, err := NewSilenceDetector(DetectorConfig{
		SilenceThreshold: 10,
		SilenceDuration:  1,
		ChunkSize:        1,
		SampleRate:       1,
	})
	require.NoError(t, err)

	src := &scriptedReader{chunks: func(int) []int16 { return []int16{0} }}

	start := time.Now()
	rec, err := Capture(context.Background(), src, det, 1, RecordOptions{InitialDelay: 20 * time.Millisecond})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, rec.Utterance.NumChunks())
}

func TestUtterancePCMAndWAV(t *testing.T) {
	utt := NewUtterance(16000)
	require.NoError(t, utt.Append([]int16{1, -2}))
	require.NoError(t, utt.Append([]int16{256}))
	utt.Finalize()

	assert.Equal(t, []byte{0x01, 0x00, 0xfe, 0xff, 0x00, 0x01}, utt.PCM())
	assert.Equal(t, []int16{1, -2, 256}, PCM16FromBytes(utt.PCM()))

	fs := afero.NewMemMapFs()
	f, err := fs.Create("rec.wav")
	require.NoError(t, err)
	require.NoError(t, utt.WriteWAV(f))
	require.NoError(t, f.Close())

	data, err := afero.ReadFile(fs, "rec.wav")
	require.NoError(t, err)
	require.Len(t, data, 44+6)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, []byte{0x01, 0x00, 0xfe, 0xff, 0x00, 0x01}, data[44:])
}

func TestUtteranceEmptyWAV(t *testing.T) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create("empty.wav")
	require.NoError(t, err)
	defer f.Close()

	assert.ErrorIs(t, NewUtterance(16000).WriteWAV(f), ErrNoAudio)
}
