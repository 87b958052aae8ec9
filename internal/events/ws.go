package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// WSSink forwards events as JSON text messages to a websocket endpoint.
// Events are queued and dropped when the queue is full; a lost connection
// is redialed every reconnect interval.
type WSSink struct {
	url       string
	reconnect time.Duration
	queue     chan Event
	log       *slog.Logger
	dialer    *websocket.Dialer
}

func NewWSSink(url string, reconnect time.Duration, log *slog.Logger) *WSSink {
	if log == nil {
		log = slog.Default()
	}
	if reconnect <= 0 {
		reconnect = 2 * time.Second
	}
	return &WSSink{
		url:       url,
		reconnect: reconnect,
		queue:     make(chan Event, 64),
		log:       log,
		dialer:    websocket.DefaultDialer,
	}
}

func (s *WSSink) Publish(e Event) {
	select {
	case s.queue <- e:
	default:
		s.log.Warn("Event queue full, dropping", "kind", e.Kind)
	}
}

// Run delivers queued events until ctx is done.
func (s *WSSink) Run(ctx context.Context) {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		}
	}()

	for {
		var e Event
		select {
		case <-ctx.Done():
			return
		case e = <-s.queue:
		}

		payload, err := json.Marshal(e)
		if err != nil {
			s.log.Error("Failed to encode event", "err", err)
			continue
		}

		for {
			if conn == nil {
				if conn = s.dial(ctx); conn == nil {
					return
				}
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.log.Warn("Event write failed, reconnecting", "err", err)
				conn.Close()
				conn = nil
				continue
			}
			break
		}
	}
}

// dial retries until it connects or ctx is done, in which case it returns nil.
func (s *WSSink) dial(ctx context.Context) *websocket.Conn {
	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			s.log.Info("Connected to event sink", "url", s.url)
			return conn
		}
		s.log.Debug("Failed to dial event sink", "url", s.url, "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnect):
		}
	}
}
