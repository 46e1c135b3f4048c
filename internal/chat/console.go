package chat

import (
	"fmt"
	"io"
	"sync"
)

const (
	pink      = "\033[95m"
	cyan      = "\033[96m"
	yellow    = "\033[93m"
	neonGreen = "\033[92m"
	reset     = "\033[0m"
)

// Console prints the conversation itself; diagnostics go to the logger.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

func (c *Console) paint(color, s string) string {
	if !c.color {
		return s
	}
	return color + s + reset
}

func (c *Console) print(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.w, s)
}

func (c *Console) User(text string) {
	c.print(c.paint(cyan, "You: "+text) + "\n")
}

func (c *Console) Thinking(name string) {
	c.print(c.paint(pink, name+":...") + "\n")
}

// Segment prints one piece of a streamed reply. Whole lines get their own
// line, deltas are printed back to back.
func (c *Console) Segment(s string, line bool) {
	if line {
		s += "\n"
	}
	c.print(c.paint(neonGreen, s))
}

func (c *Console) EndReply(printedDeltas bool) {
	if printedDeltas {
		c.print("\n")
	}
}

func (c *Console) Notice(format string, args ...any) {
	c.print(c.paint(yellow, fmt.Sprintf(format, args...)) + "\n")
}
