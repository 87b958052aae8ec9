package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"koyomi/internal/events"
	"koyomi/internal/llm"
	"koyomi/internal/metrics"
	"koyomi/internal/vad"
)

type Recorder interface {
	Record(ctx context.Context) (*vad.Utterance, error)
}

type Transcriber interface {
	TranscribeUtterance(ctx context.Context, samples []int16, rate int) (string, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, h *llm.History) iter.Seq[string]
}

type Speaker interface {
	SpeakStream(ctx context.Context, fragments iter.Seq[string]) (string, error)
	Speak(ctx context.Context, text string) error
}

type Config struct {
	HistoryCap  int
	ExitPhrases []string
	ExitMatch   string
	Farewell    string
	ErrorPause  time.Duration
	IdlePause   time.Duration
}

type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Generator   Generator
	Speaker     Speaker
	Events      events.Publisher // optional
	Cue         func()           // optional, runs right before listening
}

// Controller runs conversation turns one after another on a single
// goroutine. Start, Stop and Toggle may be called from any goroutine.
// A stop request cancels an ongoing recording and is otherwise honored
// between stages, so a reply that is already playing finishes first.
type Controller struct {
	cfg     Config
	deps    Deps
	exit    *ExitMatcher
	history *llm.History // loop goroutine only
	log     *slog.Logger

	mu           sync.Mutex
	state        State
	running      bool
	stop         chan struct{}
	done         chan struct{}
	cancelRecord context.CancelFunc
}

func New(cfg Config, deps Deps, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = events.NewFanout()
	}

	done := make(chan struct{})
	close(done)

	return &Controller{
		cfg:     cfg,
		deps:    deps,
		exit:    NewExitMatcher(cfg.ExitPhrases, cfg.ExitMatch),
		history: llm.NewHistory(cfg.HistoryCap),
		log:     log,
		state:   Idle,
		done:    done,
	}
}

// Start launches the loop. It reports false if the loop is already running.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return false
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(ctx, c.stop, c.done)
	return true
}

// Stop asks the loop to end. It reports false if nothing was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return false
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	if c.cancelRecord != nil {
		c.cancelRecord()
	}
	return true
}

// Toggle starts a stopped controller and stops a running one. It returns
// true when the controller is running afterwards.
func (c *Controller) Toggle(ctx context.Context) bool {
	if c.Start(ctx) {
		return true
	}
	c.Stop()
	return false
}

// Wait blocks until the current loop, if any, has ended.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	<-done
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) loop(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		close(done)
	}()

	c.log.Info("Conversation started")
	for {
		if stopped(ctx, stop) {
			c.setState("", Stopped)
			c.log.Info("Conversation stopped")
			return
		}

		turn := uuid.NewString()
		end, err := c.turn(ctx, turn, stop)
		if err != nil {
			c.log.Error("Turn failed", "turn", turn, "err", err)
			metrics.ObserveTurn(metrics.OutcomeError)
			e := events.New(turn, events.KindError)
			e.Text = err.Error()
			c.deps.Events.Publish(e)
			pause(ctx, stop, c.cfg.ErrorPause)
			continue
		}
		if end {
			c.log.Info("Conversation ended")
			return
		}
	}
}

// turn runs one record-transcribe-reply cycle. end reports that the loop
// must not continue.
func (c *Controller) turn(ctx context.Context, turn string, stop chan struct{}) (end bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	c.setState(turn, Recording)
	if c.deps.Cue != nil {
		c.deps.Cue()
	}

	utt, err := c.record(ctx, turn, stop)
	if stopped(ctx, stop) {
		c.setState(turn, Stopped)
		c.log.Info("Conversation stopped")
		return true, nil
	}
	if errors.Is(err, vad.ErrNoSpeech) || (err == nil && utt.Len() == 0) {
		metrics.ObserveTurn(metrics.OutcomeNoSpeech)
		pause(ctx, stop, c.cfg.IdlePause)
		return false, nil
	}
	if err != nil {
		// same as hearing nothing: listen again after the short pause
		c.log.Warn("Capture failed", "turn", turn, "err", err)
		metrics.ObserveTurn(metrics.OutcomeNoSpeech)
		pause(ctx, stop, c.cfg.IdlePause)
		return false, nil
	}

	c.setState(turn, Transcribing)
	start := time.Now()
	text, err := c.deps.Transcriber.TranscribeUtterance(ctx, utt.Samples(), utt.SampleRate)
	metrics.ObserveStage(metrics.StageTranscribe, time.Since(start))
	if err != nil {
		c.log.Warn("Transcription failed", "turn", turn, "err", err)
		metrics.ObserveTurn(metrics.OutcomeEmpty)
		pause(ctx, stop, c.cfg.IdlePause)
		return false, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.log.Debug("Empty transcript", "turn", turn)
		metrics.ObserveTurn(metrics.OutcomeEmpty)
		pause(ctx, stop, c.cfg.IdlePause)
		return false, nil
	}
	c.publishText(turn, events.KindTranscript, llm.RoleUser, text)

	if c.exit.Match(text) {
		c.setState(turn, Farewell)
		if err := c.deps.Speaker.Speak(ctx, c.cfg.Farewell); err != nil {
			c.log.Error("Failed to speak farewell", "err", err)
		}
		c.publishText(turn, events.KindExit, llm.RoleAssistant, c.cfg.Farewell)
		metrics.ObserveTurn(metrics.OutcomeExit)
		c.setState(turn, Stopped)
		return true, nil
	}

	c.setState(turn, Generating)
	start = time.Now()
	reply, err := c.deps.Speaker.SpeakStream(ctx, c.reply(ctx, turn, text))
	metrics.ObserveStage(metrics.StageReply, time.Since(start))
	if reply != "" {
		c.publishText(turn, events.KindReply, llm.RoleAssistant, reply)
	}
	if err != nil {
		return false, fmt.Errorf("speak: %w", err)
	}

	metrics.ObserveTurn(metrics.OutcomeReply)
	return false, nil
}

func (c *Controller) record(ctx context.Context, turn string, stop chan struct{}) (*vad.Utterance, error) {
	recCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRecord = cancel
	// Stop may have run before the cancel func was registered
	select {
	case <-stop:
		cancel()
	default:
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.cancelRecord = nil
		c.mu.Unlock()
		cancel()
	}()

	start := time.Now()
	utt, err := c.deps.Recorder.Record(recCtx)
	metrics.ObserveStage(metrics.StageRecord, time.Since(start))
	if err == nil {
		c.log.Debug("Utterance captured", "turn", turn, "duration", utt.Duration())
	}
	return utt, err
}

// reply switches to Synthesizing as soon as the first fragment arrives.
func (c *Controller) reply(ctx context.Context, turn, prompt string) iter.Seq[string] {
	frags := c.deps.Generator.Generate(ctx, prompt, c.history)
	return func(yield func(string) bool) {
		first := true
		for f := range frags {
			if first {
				c.setState(turn, Synthesizing)
				first = false
			}
			if !yield(f) {
				return
			}
		}
	}
}

func (c *Controller) setState(turn string, s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	metrics.SetState(prev.String(), s.String())

	e := events.New(turn, events.KindState)
	e.State = s.String()
	c.deps.Events.Publish(e)
}

func (c *Controller) publishText(turn string, kind events.Kind, role llm.Role, text string) {
	e := events.New(turn, kind)
	e.Role = string(role)
	e.Text = text
	c.deps.Events.Publish(e)
}

func stopped(ctx context.Context, stop chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func pause(ctx context.Context, stop chan struct{}, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-stop:
	case <-t.C:
	}
}
