package vad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrNoSpeech is returned when input ended before any speech frame was seen.
var ErrNoSpeech = errors.New("no speech detected")

type Config struct {
	SampleRate     int
	FrameDuration  time.Duration
	SilenceTimeout time.Duration // trailing silence that ends an utterance
	MaxDuration    time.Duration // hard cap on utterance length
}

// Utterance is every frame from speech onset through the end of the
// trailing silence window (or the duration cap).
type Utterance struct {
	Frames        [][]int16
	SampleRate    int
	FrameDuration time.Duration
}

func (u *Utterance) Len() int {
	if u == nil {
		return 0
	}
	return len(u.Frames)
}

func (u *Utterance) Duration() time.Duration {
	return time.Duration(u.Len()) * u.FrameDuration
}

// Samples concatenates all frames.
func (u *Utterance) Samples() []int16 {
	if u == nil {
		return nil
	}

	n := 0
	for _, f := range u.Frames {
		n += len(f)
	}

	out := make([]int16, 0, n)
	for _, f := range u.Frames {
		out = append(out, f...)
	}
	return out
}

type Segmenter struct {
	cfg        Config
	classifier Classifier
	log        *slog.Logger
}

func NewSegmenter(cfg Config, classifier Classifier, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.Default()
	}
	return &Segmenter{cfg: cfg, classifier: classifier, log: log}
}

// Capture reads frames from src until an utterance is complete.
//
// Input stops when src returns io.EOF or ctx is cancelled. If that happens
// before a single frame was delivered the result is an empty Utterance; if
// frames arrived but none was speech the result is ErrNoSpeech; once speech
// started the frames collected so far are returned.
func (s *Segmenter) Capture(ctx context.Context, src FrameSource) (*Utterance, error) {
	utt := &Utterance{
		SampleRate:    s.cfg.SampleRate,
		FrameDuration: s.cfg.FrameDuration,
	}

	var (
		read          int
		speechStarted bool
		silenceFrames int
	)

	for {
		if ctx.Err() != nil {
			break
		}

		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) || (err != nil && ctx.Err() != nil) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		read++

		speech, err := s.classifier.IsSpeech(frame)
		if err != nil {
			return nil, fmt.Errorf("classify frame: %w", err)
		}

		if speech {
			if !speechStarted {
				speechStarted = true
				s.log.Debug("Speech started")
			}
			silenceFrames = 0
			utt.Frames = append(utt.Frames, frame)
		} else if speechStarted {
			silenceFrames++
			utt.Frames = append(utt.Frames, frame)

			if time.Duration(silenceFrames)*s.cfg.FrameDuration > s.cfg.SilenceTimeout {
				s.log.Debug("Silence timeout", "silence", s.cfg.SilenceTimeout)
				return utt, nil
			}
		}

		if speechStarted && utt.Duration() > s.cfg.MaxDuration {
			s.log.Info("Max utterance duration reached", "max", s.cfg.MaxDuration)
			return utt, nil
		}
	}

	if read == 0 {
		return utt, nil
	}
	if !speechStarted {
		return nil, ErrNoSpeech
	}
	return utt, nil
}
