package llm

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultHistorySize = 20
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// History keeps the most recent turns, dropping the oldest first.
type History struct {
	max   int
	turns []Turn
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max, turns: make([]Turn, 0, max)}
}

func (h *History) Append(turns ...Turn) {
	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.max; over > 0 {
		h.turns = append(h.turns[:0], h.turns[over:]...)
	}
}

// Turns returns a copy.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int { return len(h.turns) }
func (h *History) Max() int { return h.max }
