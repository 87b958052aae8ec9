package speech

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"koyomi/internal/metrics"
	"koyomi/pkg/audioconv"
)

// Synthesizer turns one unit of text into wav or raw 16-bit PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Sink is an open output stream. Write blocks while earlier audio is
// still playing.
type Sink interface {
	Write(samples []float32) error
	Close() error
}

type SinkOpener func() (Sink, error)

// Ducker lowers other applications while a reply is playing.
type Ducker interface {
	DuckOthers(ctx context.Context, factor float64, duration time.Duration) error
	UnduckOthers(ctx context.Context, duration time.Duration) error
}

type Config struct {
	SampleRate  int // rate of the sink
	Terminators []string
	Ducker      Ducker
	DuckFactor  float64
}

type Player struct {
	tts  Synthesizer
	open SinkOpener
	cfg  Config
	log  *slog.Logger
}

func NewPlayer(tts Synthesizer, open SinkOpener, cfg Config, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Terminators) == 0 {
		cfg.Terminators = DefaultTerminators
	}
	return &Player{tts: tts, open: open, cfg: cfg, log: log}
}

// SpeakStream plays fragments sentence by sentence while they are still
// being produced and returns their concatenation. Units are synthesized and
// played strictly in order, one at a time. A unit that fails to synthesize
// is skipped. After a device write error the remaining fragments are still
// consumed, without audio, and the error is returned with the text.
func (p *Player) SpeakStream(ctx context.Context, fragments iter.Seq[string]) (string, error) {
	sink, err := p.open()
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			p.log.Warn("Failed to close output", "err", err)
		}
	}()

	if p.cfg.Ducker != nil {
		if err := p.cfg.Ducker.DuckOthers(ctx, p.cfg.DuckFactor, 200*time.Millisecond); err != nil {
			p.log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			// ctx may already be cancelled, restoring volume must still happen
			if err := p.cfg.Ducker.UnduckOthers(context.Background(), 300*time.Millisecond); err != nil {
				p.log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	var (
		buf      = NewSentenceBuffer(p.cfg.Terminators)
		full     strings.Builder
		writeErr error
	)

	play := func(unit string) {
		if writeErr != nil {
			return
		}
		if err := p.playUnit(ctx, sink, unit); err != nil {
			writeErr = err
			p.log.Error("Failed to write audio", "err", err)
		}
	}

	for frag := range fragments {
		full.WriteString(frag)
		if unit, ok := buf.Add(frag); ok {
			play(unit)
		}
	}
	if unit, ok := buf.Flush(); ok {
		play(unit)
	}

	return full.String(), writeErr
}

// Speak plays a fixed text.
func (p *Player) Speak(ctx context.Context, text string) error {
	_, err := p.SpeakStream(ctx, func(yield func(string) bool) {
		yield(text)
	})
	return err
}

var errBlank = errors.New("blank unit")

// playUnit only returns sink errors; synthesis problems are logged and the
// unit is dropped.
func (p *Player) playUnit(ctx context.Context, sink Sink, unit string) error {
	samples, err := p.synthesize(ctx, unit)
	if errors.Is(err, errBlank) {
		return nil
	}
	if err != nil {
		p.log.Error("Failed to synthesize", "text", unit, "err", err)
		return nil
	}
	if len(samples) == 0 {
		return nil
	}
	return sink.Write(samples)
}

func (p *Player) synthesize(ctx context.Context, unit string) ([]float32, error) {
	if strings.TrimSpace(unit) == "" {
		return nil, errBlank
	}

	start := time.Now()
	data, err := p.tts.Synthesize(ctx, unit)
	if err != nil {
		metrics.ObserveTTS(metrics.StatusError, time.Since(start))
		return nil, err
	}
	metrics.ObserveTTS(metrics.StatusOK, time.Since(start))

	samples, rate, err := audioconv.DecodePCM16(data)
	if err != nil {
		return nil, err
	}
	if rate > 0 && p.cfg.SampleRate > 0 && rate != p.cfg.SampleRate {
		samples = audioconv.Resample(samples, rate, p.cfg.SampleRate)
	}

	p.log.Debug("Synthesized", "text", unit, "samples", len(samples))
	return samples, nil
}
