package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ChunkReader yields fixed-size blocks of mono 16-bit samples. The returned
// slice is only valid until the next call.
type ChunkReader interface {
	ReadChunk() ([]int16, error)
}

type RecordOptions struct {
	// InitialDelay is slept once before the first chunk is read.
	InitialDelay time.Duration
}

type Recording struct {
	Utterance *Utterance
	Reason    StopReason
	Duration  time.Duration
}

// Recorder owns the portaudio runtime. Both the microphone and the Player
// need it, so Init/Close are called once per process.
type Recorder struct {
	cfg DetectorConfig
}

func NewRecorder(cfg DetectorConfig) *Recorder { return &Recorder{cfg: cfg} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

func (r *Recorder) Record(ctx context.Context, opt RecordOptions) (*Recording, error) {
	det, err := NewSilenceDetector(r.cfg)
	if err != nil {
		return nil, err
	}

	mic, err := openMic(r.cfg.SampleRate, r.cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	defer mic.Close()

	return Capture(ctx, mic, det, r.cfg.SampleRate, opt)
}

// Capture drives one recording session from src until det says stop.
func Capture(ctx context.Context, src ChunkReader, det *SilenceDetector, sampleRate int, opt RecordOptions) (*Recording, error) {
	if opt.InitialDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opt.InitialDelay):
		}
	}

	log.Info("Recording, please speak")

	utt := NewUtterance(sampleRate)
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		chunk, err := src.ReadChunk()
		if err != nil {
			return nil, fmt.Errorf("read chunk: %w", err)
		}

		if err := utt.Append(chunk); err != nil {
			return nil, err
		}

		d := det.Classify(chunk)
		if !d.Continue {
			utt.Finalize()
			log.Info("Recording stopped", "reason", d.Reason, "chunks", utt.NumChunks())
			return &Recording{
				Utterance: utt,
				Reason:    d.Reason,
				Duration:  time.Since(started),
			}, nil
		}
	}
}

type mic struct {
	stream *portaudio.Stream
	buf    []int16
}

func openMic(sampleRate, chunkSize int) (*mic, error) {
	m := &mic{buf: make([]int16, chunkSize)}

	stream, err := portaudio.OpenDefaultStream(
		1, // in
		0, // no out
		float64(sampleRate),
		len(m.buf),
		m.buf,
	)
	if err != nil {
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	m.stream = stream
	return m, nil
}

func (m *mic) ReadChunk() ([]int16, error) {
	err := m.stream.Read()
	if err == portaudio.InputOverflowed {
		// samples were dropped, the buffer still holds a full chunk
		log.Debug("Input overflowed")
		return m.buf, nil
	}
	if err != nil {
		return nil, err
	}
	return m.buf, nil
}

func (m *mic) Close() {
	m.stream.Stop()
	m.stream.Close()
}
