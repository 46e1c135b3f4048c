package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/spf13/afero"
)

// Cue plays a short mp3 before each recording.
type Cue struct {
	fs   afero.Fs
	path string

	mu   sync.Mutex
	rate beep.SampleRate
}

func NewCue(fs afero.Fs, path string) *Cue {
	return &Cue{fs: fs, path: path}
}

// Play blocks until the cue has finished or ctx is done.
func (c *Cue) Play(ctx context.Context) error {
	f, err := c.fs.Open(c.path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	if err := c.initSpeaker(format.SampleRate); err != nil {
		return err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (c *Cue) initSpeaker(rate beep.SampleRate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	c.rate = rate
	return nil
}
