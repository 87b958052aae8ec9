package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindState      Kind = "state"
	KindTranscript Kind = "transcript"
	KindReply      Kind = "reply"
	KindError      Kind = "error"
	KindExit       Kind = "exit"
)

// Event is one observable step of a conversation, shaped for a transcript
// view: state changes plus every user and assistant utterance.
type Event struct {
	ID    string    `json:"id"`
	Turn  string    `json:"turn,omitempty"`
	Kind  Kind      `json:"kind"`
	State string    `json:"state,omitempty"`
	Role  string    `json:"role,omitempty"`
	Text  string    `json:"text,omitempty"`
	Time  time.Time `json:"time"`
}

func New(turn string, kind Kind) Event {
	return Event{
		ID:   uuid.NewString(),
		Turn: turn,
		Kind: kind,
		Time: time.Now(),
	}
}

// Publisher must not block the caller for long.
type Publisher interface {
	Publish(e Event)
}

// Fanout sends every event to each registered publisher in order.
type Fanout struct {
	mu   sync.RWMutex
	subs []Publisher
}

func NewFanout(subs ...Publisher) *Fanout {
	return &Fanout{subs: subs}
}

func (f *Fanout) Add(p Publisher) {
	f.mu.Lock()
	f.subs = append(f.subs, p)
	f.mu.Unlock()
}

func (f *Fanout) Publish(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.subs {
		p.Publish(e)
	}
}

// LogSink writes events to a logger. Utterances are logged at info, state
// changes at debug.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Publish(e Event) {
	switch e.Kind {
	case KindState:
		s.log.Debug("State", "turn", e.Turn, "state", e.State)
	case KindError:
		s.log.Warn("Turn failed", "turn", e.Turn, "err", e.Text)
	case KindTranscript:
		s.log.Info("Heard", "turn", e.Turn, "text", e.Text)
	case KindReply:
		s.log.Info("Replied", "turn", e.Turn, "text", e.Text)
	case KindExit:
		s.log.Info("Farewell", "turn", e.Turn, "text", e.Text)
	}
}
