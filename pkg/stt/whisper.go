package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"koyomi/pkg/audioconv"
)

// whisper.cpp only accepts 16 kHz mono input
const whisperRate = 16000

type Options struct {
	Language      string // e.g. "ja", "auto"
	TranslateToEn bool
	Threads       int // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int     // 0 = greedy
	Temperature   float32 // 0 = default
	SplitOnWord   bool
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Result struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Transcriber owns one whisper model for the lifetime of the process.
type Transcriber struct {
	path string
	opt  Options
	log  *slog.Logger

	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string, opt Options, log *slog.Logger) *Transcriber {
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{path: modelPath, opt: opt, log: log}
}

// Load reads the model. Calling it again after a successful load is a no-op.
func (t *Transcriber) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model != nil {
		return nil
	}
	if t.path == "" {
		return errors.New("empty model path")
	}

	t.log.Info("Loading whisper model", "path", t.path)
	m, err := whisper.New(t.path)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	t.model = m
	return nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// TranscribeUtterance stores samples in a temporary wav, transcribes it and
// removes the file again, also when transcription fails.
func (t *Transcriber) TranscribeUtterance(ctx context.Context, samples []int16, rate int) (string, error) {
	if len(samples) == 0 {
		return "", errors.New("no audio samples provided")
	}

	var res Result
	err := audioconv.WithTempWAV(samples, rate, func(path string) error {
		var err error
		res, err = t.TranscribeFile(ctx, path)
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}

func (t *Transcriber) TranscribeFile(ctx context.Context, path string) (Result, error) {
	pcm, err := audioconv.DecodeFile(path, audioconv.Options{Rate: whisperRate})
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return t.TranscribePCM(ctx, pcm)
}

// pcm16k must be mono @ 16 kHz, float32 in [-1, 1]
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return Result{}, errors.New("model not loaded")
	}
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	opt := t.opt
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs []Segment
		text strings.Builder
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		text.WriteString(s.Text)
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:     text.String(),
		Segments: segs,
		Language: lang,
	}, nil
}
