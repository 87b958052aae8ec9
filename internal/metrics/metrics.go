package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Turn outcomes.
const (
	OutcomeReply    = "reply"
	OutcomeEmpty    = "empty"
	OutcomeExit     = "exit"
	OutcomeError    = "error"
	OutcomeNoSpeech = "no_speech"
)

// Pipeline stages.
const (
	StageRecord     = "record"
	StageTranscribe = "transcribe"
	StageReply      = "reply"
)

var (
	turns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koyomi_turns_total",
		Help: "Conversation turns by outcome",
	}, []string{"outcome"})

	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "koyomi_stage_duration_seconds",
		Help:    "Duration of pipeline stages in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	ttsRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "koyomi_tts_requests_total",
		Help: "Synthesis requests by status",
	}, []string{"status"})

	ttsLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "koyomi_tts_latency_seconds",
		Help:    "Synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	})

	state = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "koyomi_state",
		Help: "1 for the current session state, 0 otherwise",
	}, []string{"state"})
)

func ObserveTurn(outcome string) {
	turns.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, d time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

func ObserveTTS(status string, d time.Duration) {
	ttsRequests.WithLabelValues(status).Inc()
	ttsLatency.Observe(d.Seconds())
}

func SetState(prev, next string) {
	if prev != "" {
		state.WithLabelValues(prev).Set(0)
	}
	state.WithLabelValues(next).Set(1)
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
