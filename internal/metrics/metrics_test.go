package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTurn(t *testing.T) {
	before := testutil.ToFloat64(turns.WithLabelValues(OutcomeReply))
	ObserveTurn(OutcomeReply)
	if got := testutil.ToFloat64(turns.WithLabelValues(OutcomeReply)); got != before+1 {
		t.Fatalf("turns = %v, want %v", got, before+1)
	}
}

func TestObserveTTS(t *testing.T) {
	before := testutil.ToFloat64(ttsRequests.WithLabelValues(StatusError))
	ObserveTTS(StatusError, 30*time.Millisecond)
	if got := testutil.ToFloat64(ttsRequests.WithLabelValues(StatusError)); got != before+1 {
		t.Fatalf("tts errors = %v", got)
	}
}

func TestSetState(t *testing.T) {
	SetState("", "idle")
	SetState("idle", "recording")
	if testutil.ToFloat64(state.WithLabelValues("idle")) != 0 {
		t.Fatal("previous state still set")
	}
	if testutil.ToFloat64(state.WithLabelValues("recording")) != 1 {
		t.Fatal("current state not set")
	}
}
