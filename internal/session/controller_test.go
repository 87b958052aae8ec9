package session

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"koyomi/internal/events"
	"koyomi/internal/llm"
	"koyomi/internal/vad"
)

const farewell = "またお話しできるのを楽しみにしてるよ。またね！"

func speech() *vad.Utterance {
	return &vad.Utterance{
		Frames:        [][]int16{{100, -100}, {200, -200}},
		SampleRate:    48000,
		FrameDuration: 30 * time.Millisecond,
	}
}

type recordResult struct {
	utt *vad.Utterance
	err error
}

// scriptRecorder plays back results; once they run out it blocks like an
// idle microphone until the context ends.
type scriptRecorder struct {
	mu      sync.Mutex
	results []recordResult
	calls   int
}

func (r *scriptRecorder) Record(ctx context.Context) (*vad.Utterance, error) {
	r.mu.Lock()
	r.calls++
	if len(r.results) > 0 {
		res := r.results[0]
		r.results = r.results[1:]
		r.mu.Unlock()
		return res.utt, res.err
	}
	r.mu.Unlock()

	<-ctx.Done()
	return &vad.Utterance{}, nil
}

type scriptTranscriber struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (t *scriptTranscriber) TranscribeUtterance(ctx context.Context, samples []int16, rate int) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if len(samples) == 0 {
		return "", errors.New("no samples")
	}
	text := t.texts[0]
	t.texts = t.texts[1:]
	switch text {
	case "PANIC":
		panic("whisper crashed")
	case "ERR":
		return "", errors.New("whisper failed")
	}
	return text, nil
}

type fakeSpeaker struct {
	mu      sync.Mutex
	streams []string
	spoken  []string
}

func (s *fakeSpeaker) SpeakStream(ctx context.Context, fragments iter.Seq[string]) (string, error) {
	var b strings.Builder
	for f := range fragments {
		b.WriteString(f)
	}
	s.mu.Lock()
	s.streams = append(s.streams, b.String())
	s.mu.Unlock()
	return b.String(), nil
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	return nil
}

type chunkBackend struct{ chunks []string }

func (b chunkBackend) Stream(ctx context.Context, system string, turns []llm.Turn) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range b.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

type eventLog struct {
	mu  sync.Mutex
	all []events.Event
}

func (l *eventLog) Publish(e events.Event) {
	l.mu.Lock()
	l.all = append(l.all, e)
	l.mu.Unlock()
}

func (l *eventLog) kinds(k events.Kind) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.all {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) states() []string {
	var out []string
	for _, e := range l.kinds(events.KindState) {
		out = append(out, e.State)
	}
	return out
}

type fixture struct {
	rec  *scriptRecorder
	tr   *scriptTranscriber
	spk  *fakeSpeaker
	log  *eventLog
	ctrl *Controller
	cues int
}

func newFixture(results []recordResult, texts []string, chunks ...string) *fixture {
	f := &fixture{
		rec: &scriptRecorder{results: results},
		tr:  &scriptTranscriber{texts: texts},
		spk: &fakeSpeaker{},
		log: &eventLog{},
	}
	gen := llm.NewGenerator(chunkBackend{chunks: chunks}, "system", "apology", nil)
	f.ctrl = New(Config{
		HistoryCap:  10,
		ExitPhrases: []string{"さようなら", "さよなら"},
		ExitMatch:   MatchSubstring,
		Farewell:    farewell,
	}, Deps{
		Recorder:    f.rec,
		Transcriber: f.tr,
		Generator:   gen,
		Speaker:     f.spk,
		Events:      f.log,
		Cue:         func() { f.cues++ },
	}, nil)
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConversationEndToEnd(t *testing.T) {
	f := newFixture(
		[]recordResult{{utt: speech()}, {utt: speech()}},
		[]string{"今日の天気は？", "さようなら"},
		"今日は", "晴れだよ。",
	)

	if !f.ctrl.Start(context.Background()) {
		t.Fatal("Start returned false")
	}
	f.ctrl.Wait()

	if got := f.ctrl.State(); got != Stopped {
		t.Fatalf("state = %v, want stopped", got)
	}
	if !slices.Equal(f.spk.streams, []string{"今日は晴れだよ。"}) {
		t.Fatalf("streams = %q", f.spk.streams)
	}
	if !slices.Equal(f.spk.spoken, []string{farewell}) {
		t.Fatalf("spoken = %q", f.spk.spoken)
	}

	turns := f.ctrl.history.Turns()
	want := []llm.Turn{
		{Role: llm.RoleUser, Text: "今日の天気は？"},
		{Role: llm.RoleAssistant, Text: "今日は晴れだよ。"},
	}
	if !slices.Equal(turns, want) {
		t.Fatalf("history = %+v", turns)
	}

	transcripts := f.log.kinds(events.KindTranscript)
	if len(transcripts) != 2 || transcripts[0].Role != "user" || transcripts[0].Text != "今日の天気は？" {
		t.Fatalf("transcripts = %+v", transcripts)
	}
	replies := f.log.kinds(events.KindReply)
	if len(replies) != 1 || replies[0].Text != "今日は晴れだよ。" || replies[0].Turn != transcripts[0].Turn {
		t.Fatalf("replies = %+v", replies)
	}
	if exits := f.log.kinds(events.KindExit); len(exits) != 1 || exits[0].Text != farewell {
		t.Fatalf("exit events = %+v", exits)
	}

	wantStates := []string{
		"recording", "transcribing", "generating", "synthesizing",
		"recording", "transcribing", "farewell", "stopped",
	}
	if got := f.log.states(); !slices.Equal(got, wantStates) {
		t.Fatalf("states = %q\nwant %q", got, wantStates)
	}
	if f.cues != 2 {
		t.Fatalf("cues = %d", f.cues)
	}
}

func TestNoSpeechAndEmptyTranscriptLoop(t *testing.T) {
	f := newFixture(
		[]recordResult{
			{err: vad.ErrNoSpeech},
			{utt: &vad.Utterance{}},
			{utt: speech()},
			{utt: speech()},
		},
		[]string{"  ", "さよなら"},
	)

	f.ctrl.Start(context.Background())
	f.ctrl.Wait()

	if f.tr.calls != 2 {
		t.Fatalf("transcribe calls = %d, want 2", f.tr.calls)
	}
	if len(f.spk.streams) != 0 {
		t.Fatalf("no reply expected, got %q", f.spk.streams)
	}
	if f.ctrl.history.Len() != 0 {
		t.Fatalf("history = %+v", f.ctrl.history.Turns())
	}
}

func TestPanicIsTurnError(t *testing.T) {
	f := newFixture(
		[]recordResult{{utt: speech()}, {utt: speech()}},
		[]string{"PANIC", "さようなら"},
	)

	f.ctrl.Start(context.Background())
	f.ctrl.Wait()

	errs := f.log.kinds(events.KindError)
	if len(errs) != 1 || !strings.Contains(errs[0].Text, "panic") {
		t.Fatalf("error events = %+v", errs)
	}
	if f.ctrl.State() != Stopped || len(f.spk.spoken) != 1 {
		t.Fatalf("state %v, spoken %q", f.ctrl.State(), f.spk.spoken)
	}
}

func TestCaptureAndTranscriptionFailuresListenAgain(t *testing.T) {
	f := newFixture(
		[]recordResult{
			{err: errors.New("device unplugged")},
			{utt: speech()},
			{utt: speech()},
		},
		[]string{"ERR", "さようなら"},
	)
	// taking the error path would stall the loop
	f.ctrl.cfg.ErrorPause = time.Hour

	f.ctrl.Start(context.Background())
	done := make(chan struct{})
	go func() {
		f.ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not continue with the idle pause")
	}

	if errs := f.log.kinds(events.KindError); len(errs) != 0 {
		t.Fatalf("error events = %+v", errs)
	}
	if f.tr.calls != 2 || f.rec.calls != 3 {
		t.Fatalf("transcribe calls %d, record calls %d", f.tr.calls, f.rec.calls)
	}
	if f.ctrl.State() != Stopped || len(f.spk.streams) != 0 {
		t.Fatalf("state %v, streams %q", f.ctrl.State(), f.spk.streams)
	}
}

// gatedSpeaker holds the reply after its first fragment until released.
type gatedSpeaker struct {
	fakeSpeaker
	first   chan struct{}
	release chan struct{}
}

func (s *gatedSpeaker) SpeakStream(ctx context.Context, fragments iter.Seq[string]) (string, error) {
	var b strings.Builder
	for f := range fragments {
		if b.Len() == 0 {
			close(s.first)
			<-s.release
		}
		b.WriteString(f)
	}
	s.mu.Lock()
	s.streams = append(s.streams, b.String())
	s.mu.Unlock()
	return b.String(), nil
}

func TestStopDuringReplyFinishesReply(t *testing.T) {
	f := newFixture(
		[]recordResult{{utt: speech()}, {utt: speech()}},
		[]string{"天気は？", "まだ話す"},
		"晴れ。", "だよ",
	)
	spk := &gatedSpeaker{first: make(chan struct{}), release: make(chan struct{})}
	f.ctrl.deps.Speaker = spk

	f.ctrl.Start(context.Background())
	select {
	case <-spk.first:
	case <-time.After(2 * time.Second):
		t.Fatal("reply never reached the speaker")
	}

	if !f.ctrl.Stop() {
		t.Fatal("Stop returned false")
	}
	close(spk.release)
	f.ctrl.Wait()

	if !slices.Equal(spk.streams, []string{"晴れ。だよ"}) {
		t.Fatalf("streams = %q, want the whole reply", spk.streams)
	}
	if f.ctrl.history.Len() != 2 {
		t.Fatalf("history = %+v", f.ctrl.history.Turns())
	}
	if f.tr.calls != 1 || f.rec.calls != 1 {
		t.Fatalf("transcribe calls %d, record calls %d after stop", f.tr.calls, f.rec.calls)
	}
	if f.ctrl.State() != Stopped {
		t.Fatalf("state = %v", f.ctrl.State())
	}
}

func TestStopWhileRecording(t *testing.T) {
	f := newFixture(nil, nil)

	f.ctrl.Start(context.Background())
	waitFor(t, func() bool { return f.ctrl.State() == Recording })

	if !f.ctrl.Stop() {
		t.Fatal("Stop returned false")
	}
	f.ctrl.Wait()

	if f.ctrl.State() != Stopped {
		t.Fatalf("state = %v", f.ctrl.State())
	}
	if f.tr.calls != 0 {
		t.Fatal("transcriber must not run after stop")
	}
	if f.ctrl.Running() {
		t.Fatal("still running")
	}
}

func TestToggle(t *testing.T) {
	f := newFixture(nil, nil)
	ctx := context.Background()

	if !f.ctrl.Toggle(ctx) {
		t.Fatal("first toggle must start")
	}
	waitFor(t, func() bool { return f.ctrl.State() == Recording })
	if f.ctrl.Start(ctx) {
		t.Fatal("Start on a running controller must report false")
	}
	if f.ctrl.Toggle(ctx) {
		t.Fatal("second toggle must stop")
	}
	f.ctrl.Wait()

	if f.ctrl.Stop() {
		t.Fatal("Stop on a stopped controller must report false")
	}
	if !f.ctrl.Start(ctx) {
		t.Fatal("controller must be restartable")
	}
	waitFor(t, func() bool { return f.ctrl.State() == Recording })
	f.ctrl.Stop()
	f.ctrl.Wait()
}

func TestContextCancelStops(t *testing.T) {
	f := newFixture(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	f.ctrl.Start(ctx)
	waitFor(t, func() bool { return f.ctrl.State() == Recording })
	cancel()
	f.ctrl.Wait()

	if f.ctrl.State() != Stopped {
		t.Fatalf("state = %v", f.ctrl.State())
	}
}

func TestStateString(t *testing.T) {
	if Synthesizing.String() != "synthesizing" || State(42).String() != "unknown" {
		t.Fatal("unexpected state names")
	}
}
