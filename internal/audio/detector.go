package audio

import (
	"fmt"
	"math"
)

const (
	DefaultSampleRate       = 16000
	DefaultChunkSize        = 1024
	DefaultSilenceThreshold = 512
	DefaultSilenceDuration  = 4.0

	// MaxSpeechDuration defaults to this many silence windows.
	defaultMaxSpeechFactor = 10
)

type StopReason int

const (
	StopNone StopReason = iota
	StopSilence
	StopMaxDuration
)

func (r StopReason) String() string {
	switch r {
	case StopSilence:
		return "silence"
	case StopMaxDuration:
		return "max-duration"
	default:
		return "none"
	}
}

type DetectorConfig struct {
	SilenceThreshold  float64 // mean absolute amplitude
	SilenceDuration   float64 // seconds of continuous silence that end a recording
	MaxSpeechDuration float64 // seconds of non-silent audio that end a recording; 0 = 10x SilenceDuration
	ChunkSize         int     // samples per chunk
	SampleRate        int
}

func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceDuration:  DefaultSilenceDuration,
		ChunkSize:        DefaultChunkSize,
		SampleRate:       DefaultSampleRate,
	}
}

type Decision struct {
	Continue bool
	Silent   bool
	Reason   StopReason
}

// SilenceDetector keeps the two independent stop counters of a recording
// session. It is fed one chunk at a time and never looks back.
type SilenceDetector struct {
	threshold    float64
	silenceLimit int
	speechLimit  int

	silentChunks   int
	speakingChunks int
}

func NewSilenceDetector(cfg DetectorConfig) (*SilenceDetector, error) {
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %v", cfg.SilenceDuration)
	}
	if cfg.MaxSpeechDuration < 0 {
		return nil, fmt.Errorf("max speech duration must not be negative, got %v", cfg.MaxSpeechDuration)
	}

	maxSpeech := cfg.MaxSpeechDuration
	if maxSpeech == 0 {
		maxSpeech = cfg.SilenceDuration * defaultMaxSpeechFactor
	}

	chunksPerSecond := float64(cfg.SampleRate) / float64(cfg.ChunkSize)

	return &SilenceDetector{
		threshold:    cfg.SilenceThreshold,
		silenceLimit: chunkLimit(cfg.SilenceDuration * chunksPerSecond),
		speechLimit:  chunkLimit(maxSpeech * chunksPerSecond),
	}, nil
}

// chunkLimit rounds to 1e-6 first so 0.07*100 gives 7, not 8.
func chunkLimit(chunks float64) int {
	n := int(math.Ceil(math.Round(chunks*1e6) / 1e6))
	if n < 1 {
		n = 1
	}
	return n
}

// Classify updates the counters with one chunk and reports whether
// recording should go on.
func (d *SilenceDetector) Classify(chunk []int16) Decision {
	silent := MeanAbsAmplitude(chunk) < d.threshold

	if silent {
		d.silentChunks++
	} else {
		d.silentChunks = 0
		d.speakingChunks++
	}

	switch {
	case d.silentChunks >= d.silenceLimit:
		return Decision{Silent: silent, Reason: StopSilence}
	case d.speakingChunks >= d.speechLimit:
		return Decision{Silent: silent, Reason: StopMaxDuration}
	}

	return Decision{Continue: true, Silent: silent}
}

func (d *SilenceDetector) Reset() {
	d.silentChunks = 0
	d.speakingChunks = 0
}

func (d *SilenceDetector) SilenceLimit() int { return d.silenceLimit }
func (d *SilenceDetector) SpeechLimit() int { return d.speechLimit }

func MeanAbsAmplitude(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}

	var s int64
	for _, x := range chunk {
		v := int64(x)
		if v < 0 {
			v = -v
		}
		s += v
	}

	return float64(s) / float64(len(chunk))
}
