package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Ducker lowers the volume of other PulseAudio sink inputs while the
// assistant speaks and restores them afterwards. Streams whose
// application.name is listed in selfNames are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string
	original  map[int]int
	minVolume int
	run       CommandRunner
	step      time.Duration
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		original:  make(map[int]int),
		minVolume: clampVolume(minVolume),
		run:       execRunner,
		step:      10 * time.Millisecond,
	}
}

// WithRunner replaces the pactl runner.
func (d *Ducker) WithRunner(run CommandRunner) *Ducker {
	d.run = run
	return d
}

func (d *Ducker) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Duck fades every foreign stream to current*factor, never below minVolume.
func (d *Ducker) Duck(ctx context.Context, factor float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.foreignInputs(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int, len(inputs))
	fades := make([]fade, 0, len(inputs))

	for _, s := range inputs {
		target := math.Max(float64(s.Volume)*factor, float64(d.minVolume))
		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: clampVolume(int(math.Round(target)))})
	}

	// Active before the fade so a partial duck is still undone.
	d.active = true
	return d.fade(ctx, fades, duration)
}

// Unduck fades foreign streams back to the volume they had before Duck.
// Streams that appeared after Duck are not touched.
func (d *Ducker) Unduck(ctx context.Context, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.foreignInputs(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range inputs {
		orig, ok := d.original[s.ID]
		if !ok {
			continue
		}
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.fade(ctx, fades, duration); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) foreignInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := d.run(ctx, "pactl", "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var res []sinkInput
	for _, s := range parseSinkInputs(string(out)) {
		if !d.isSelf(s) {
			res = append(res, s)
		}
	}
	return res, nil
}

func (d *Ducker) isSelf(s sinkInput) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

// fade interpolates all targets linearly in steps of d.step.
func (d *Ducker) fade(ctx context.Context, fades []fade, duration time.Duration) error {
	if len(fades) == 0 {
		return nil
	}

	steps := 0
	if d.step > 0 {
		steps = int(duration / d.step)
	}
	if steps < 1 {
		return d.apply(ctx, fades, 1)
	}

	stepDuration := duration / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := d.apply(ctx, fades, float64(i)/float64(steps)); err != nil {
			return err
		}

		if i < steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(stepDuration):
			}
		}
	}

	return nil
}

func (d *Ducker) apply(ctx context.Context, fades []fade, frac float64) error {
	for _, f := range fades {
		v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
		pct := fmt.Sprintf("%d%%", clampVolume(v))
		if _, err := d.run(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(f.id), pct); err != nil {
			return fmt.Errorf("set volume id=%d: %w", f.id, err)
		}
	}
	return nil
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []sinkInput {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []sinkInput

	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}

		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if name, ok := quoted(line); ok {
					s.AppName = name
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}

		res = append(res, s)
	}

	return res
}

func quoted(line string) (string, bool) {
	i := strings.IndexByte(line, '"')
	if i < 0 {
		return "", false
	}
	rest := line[i+1:]
	j := strings.IndexByte(rest, '"')
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > maxVolume {
		return maxVolume
	}
	return v
}
