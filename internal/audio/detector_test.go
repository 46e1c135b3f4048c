package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constChunk(size int, v int16) []int16 {
	c := make([]int16, size)
	for i := range c {
		if i%2 == 0 {
			c[i] = v
		} else {
			c[i] = -v
		}
	}
	return c
}

func feedUntilStop(t *testing.T, d *SilenceDetector, next func(i int) []int16, limit int) (int, Decision) {
	t.Helper()
	for i := 0; i < limit; i++ {
		dec := d.Classify(next(i))
		if !dec.Continue {
			return i + 1, dec
		}
	}
	t.Fatalf("detector did not stop within %d chunks", limit)
	return 0, Decision{}
}

func TestSilenceDetectorStopsOnSilence(t *testing.T) {
	cfg := DefaultDetectorConfig()
	d, err := NewSilenceDetector(cfg)
	require.NoError(t, err)

	want := int(math.Ceil(cfg.SilenceDuration * float64(cfg.SampleRate) / float64(cfg.ChunkSize)))
	require.Equal(t, 63, want)
	assert.Equal(t, want, d.SilenceLimit())

	quiet := constChunk(cfg.ChunkSize, 10)
	n, dec := feedUntilStop(t, d, func(int) []int16 { return quiet }, 10_000)

	assert.Equal(t, want, n)
	assert.Equal(t, StopSilence, dec.Reason)
	assert.True(t, dec.Silent)
}

func TestSilenceDetectorStopsOnMaxDuration(t *testing.T) {
	cfg := DefaultDetectorConfig()
	d, err := NewSilenceDetector(cfg)
	require.NoError(t, err)

	want := int(math.Ceil(10 * cfg.SilenceDuration * float64(cfg.SampleRate) / float64(cfg.ChunkSize)))
	require.Equal(t, 625, want)

	loud := constChunk(cfg.ChunkSize, 4000)
	n, dec := feedUntilStop(t, d, func(int) []int16 { return loud }, 10_000)

	assert.Equal(t, want, n)
	assert.Equal(t, StopMaxDuration, dec.Reason)
	assert.False(t, dec.Silent)
}

func TestSilenceDetectorResetsOnSpeech(t *testing.T) {
	cfg := DefaultDetectorConfig()
	d, err := NewSilenceDetector(cfg)
	require.NoError(t, err)

	quiet := constChunk(cfg.ChunkSize, 0)
	loud := constChunk(cfg.ChunkSize, 2000)
	limit := d.SilenceLimit()

	for i := 0; i < limit-1; i++ {
		require.True(t, d.Classify(quiet).Continue)
	}
	require.True(t, d.Classify(loud).Continue)

	// the counter starts from zero again
	for i := 0; i < limit-1; i++ {
		require.True(t, d.Classify(quiet).Continue, "chunk %d", i)
	}
	dec := d.Classify(quiet)
	assert.False(t, dec.Continue)
	assert.Equal(t, StopSilence, dec.Reason)
}

func TestSilenceDetectorThresholdIsStrict(t *testing.T) {
	d, err := NewSilenceDetector(DetectorConfig{
		SilenceThreshold: 100,
		SilenceDuration:  1,
		ChunkSize:        4,
		SampleRate:       4,
	})
	require.NoError(t, err)
	require.Equal(t, 1, d.SilenceLimit())

	dec := d.Classify([]int16{100, -100, 100, -100})
	assert.False(t, dec.Silent)

	dec = d.Classify([]int16{99, -99, 99, -99})
	assert.True(t, dec.Silent)
	assert.Equal(t, StopSilence, dec.Reason)
}

func TestSilenceDetectorExplicitMaxSpeech(t *testing.T) {
	d, err := NewSilenceDetector(DetectorConfig{
		SilenceThreshold:  512,
		SilenceDuration:   4,
		MaxSpeechDuration: 1,
		ChunkSize:         1024,
		SampleRate:        16000,
	})
	require.NoError(t, err)
	assert.Equal(t, 16, d.SpeechLimit())
}

func TestSilenceDetectorSpeechCountSurvivesSilence(t *testing.T) {
	d, err := NewSilenceDetector(DetectorConfig{
		SilenceThreshold:  10,
		SilenceDuration:   3,
		MaxSpeechDuration: 3,
		ChunkSize:         1,
		SampleRate:        1,
	})
	require.NoError(t, err)

	loud := []int16{50}
	quiet := []int16{0}

	assert.True(t, d.Classify(loud).Continue)
	assert.True(t, d.Classify(quiet).Continue)
	assert.True(t, d.Classify(loud).Continue)
	assert.True(t, d.Classify(quiet).Continue)

	dec := d.Classify(loud)
	assert.False(t, dec.Continue)
	assert.Equal(t, StopMaxDuration, dec.Reason)

	d.Reset()
	assert.True(t, d.Classify(loud).Continue)
}

func TestNewSilenceDetectorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  DetectorConfig
	}{
		{"zero chunk size", DetectorConfig{SilenceDuration: 1, SampleRate: 16000}},
		{"zero sample rate", DetectorConfig{SilenceDuration: 1, ChunkSize: 1024}},
		{"zero silence duration", DetectorConfig{ChunkSize: 1024, SampleRate: 16000}},
		{"negative max speech", DetectorConfig{SilenceDuration: 1, MaxSpeechDuration: -1, ChunkSize: 1024, SampleRate: 16000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSilenceDetector(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestMeanAbsAmplitude(t *testing.T) {
	assert.Equal(t, 0.0, MeanAbsAmplitude(nil))
	assert.Equal(t, 2.0, MeanAbsAmplitude([]int16{1, -3, 2, -2}))
	assert.Equal(t, 32768.0, MeanAbsAmplitude([]int16{math.MinInt16}))
}

func TestSilenceDetectorExactLimitForShortWindows(t *testing.T) {
	// 0.07 * 16000 / 160 is 7.000000000000001 in float64
	cfg := DetectorConfig{
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceDuration:  0.07,
		ChunkSize:        160,
		SampleRate:       16000,
	}
	d, err := NewSilenceDetector(cfg)
	require.NoError(t, err)

	assert.Equal(t, 7, d.SilenceLimit())
	assert.Equal(t, 70, d.SpeechLimit())

	quiet := constChunk(cfg.ChunkSize, 10)
	n, dec := feedUntilStop(t, d, func(int) []int16 { return quiet }, 100)
	assert.Equal(t, 7, n)
	assert.Equal(t, StopSilence, dec.Reason)
}
