package llm

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role
	Text string
}

// History is the conversation window sent with every request. It never
// holds more than Cap turns; the oldest are dropped first.
type History struct {
	cap   int
	turns []Turn
}

func NewHistory(cap int) *History {
	if cap < 1 {
		cap = 1
	}
	return &History{cap: cap}
}

func (h *History) Append(turns ...Turn) {
	h.turns = append(h.turns, turns...)
	if len(h.turns) > h.cap {
		h.turns = append([]Turn(nil), h.turns[len(h.turns)-h.cap:]...)
	}
}

// Turns returns a copy of the current window in chronological order.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

func (h *History) Len() int { return len(h.turns) }

func (h *History) Cap() int { return h.cap }
