package llm

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	framePrefix = "data:"
	deltaPath   = "choices.0.delta.content"
)

type Mode int

const (
	// ModeLineBuffered emits text one completed line at a time.
	ModeLineBuffered Mode = iota
	// ModeIncremental emits every non-empty delta as it arrives.
	ModeIncremental
)

// Assembler rebuilds a reply from the raw lines of a streamed chat
// completion. One Assembler serves one response.
type Assembler struct {
	mode         Mode
	lineBuffer   strings.Builder
	fullResponse strings.Builder
}

func NewAssembler(mode Mode) *Assembler {
	return &Assembler{mode: mode}
}

// Feed consumes one raw protocol line and returns the segments that became
// displayable because of it. Keep-alives, [DONE] and malformed payloads
// yield nothing.
func (a *Assembler) Feed(raw string) []string {
	delta, ok := extractDelta(raw)
	if !ok {
		return nil
	}

	if a.mode == ModeIncremental {
		a.fullResponse.WriteString(delta)
		return []string{delta}
	}

	a.lineBuffer.WriteString(delta)
	buffered := a.lineBuffer.String()
	if !strings.Contains(buffered, "\n") {
		return nil
	}

	lines := strings.Split(buffered, "\n")
	done := lines[:len(lines)-1]
	for _, l := range done {
		a.fullResponse.WriteString(l)
		a.fullResponse.WriteByte('\n')
	}

	a.lineBuffer.Reset()
	a.lineBuffer.WriteString(lines[len(lines)-1])

	return done
}

// Finish flushes the unterminated tail, if any. It is returned without a
// newline and is "" when nothing was pending.
func (a *Assembler) Finish() string {
	tail := a.lineBuffer.String()
	a.lineBuffer.Reset()
	if tail != "" {
		a.fullResponse.WriteString(tail)
	}
	return tail
}

func (a *Assembler) Response() string {
	return a.fullResponse.String()
}

func extractDelta(raw string) (string, bool) {
	line := raw
	if strings.HasPrefix(line, framePrefix) {
		line = strings.TrimSpace(line[len(framePrefix):])
	}
	if line == "" || !gjson.Valid(line) {
		return "", false
	}

	res := gjson.Get(line, deltaPath)
	if !res.Exists() || res.Type != gjson.String || res.Str == "" {
		return "", false
	}

	return res.Str, true
}
