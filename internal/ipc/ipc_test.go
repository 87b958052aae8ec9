package ipc

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "koyomi.sock")

	srv, err := Listen(path, h, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
		srv.Close()
	})
	return path
}

func TestSendCommand(t *testing.T) {
	var running atomic.Bool
	path := startServer(t, func(ctx context.Context, msg ControlMessage) Response {
		switch msg.Cmd {
		case CmdToggle:
			running.Store(!running.Load())
			return Response{OK: true, Running: running.Load()}
		case CmdStatus:
			return Response{OK: true, Running: running.Load(), State: "idle"}
		default:
			return Response{Error: "unknown command " + msg.Cmd}
		}
	})

	resp, err := SendCommand(path, CmdToggle)
	if err != nil || !resp.OK || !resp.Running {
		t.Fatalf("toggle: %+v, %v", resp, err)
	}

	resp, err = SendCommand(path, CmdStatus)
	if err != nil || resp.State != "idle" || !resp.Running {
		t.Fatalf("status: %+v, %v", resp, err)
	}

	if _, err := SendCommand(path, "dance"); err == nil {
		t.Fatal("unknown command must fail")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "koyomi.sock")

	first, err := Listen(path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	first.ln.Close()

	second, err := Listen(path, nil, nil)
	if err != nil {
		t.Fatalf("second listen: %v", err)
	}
	second.Close()
}

func TestSendCommandNoDaemon(t *testing.T) {
	if _, err := SendCommand(filepath.Join(t.TempDir(), "none.sock"), CmdStart); err == nil {
		t.Fatal("expected dial error")
	}
}
