package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	CmdStart  = "start"
	CmdStop   = "stop"
	CmdToggle = "toggle"
	CmdStatus = "status"
	CmdQuit   = "quit"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
}

type Response struct {
	OK      bool   `json:"ok"`
	Running bool   `json:"running"`
	State   string `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler answers one control message.
type Handler func(ctx context.Context, msg ControlMessage) Response

// Server accepts one JSON message per connection on a unix socket and
// writes back one JSON response.
type Server struct {
	path    string
	handler Handler
	log     *slog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

func Listen(path string, handler Handler, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	// stale socket from a previous run
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{path: path, handler: handler, log: log, ln: ln}, nil
}

// Serve handles connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			s.log.Warn("Accept failed", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.log.Warn("Bad control message", "err", err)
		json.NewEncoder(conn).Encode(Response{Error: "bad message: " + err.Error()})
		return
	}

	s.log.Debug("Control message", "cmd", msg.Cmd)
	resp := s.handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.log.Warn("Failed to write response", "err", err)
	}
}

// SendCommand delivers cmd to the daemon listening on path.
func SendCommand(path, cmd string) (Response, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd}); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.Error != "" {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}
