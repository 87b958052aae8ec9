package main

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"koyomi/internal/audio"
	"koyomi/internal/config"
	"koyomi/internal/control"
	"koyomi/internal/events"
	"koyomi/internal/ipc"
	"koyomi/internal/llm"
	"koyomi/internal/metrics"
	"koyomi/internal/notify"
	"koyomi/internal/proxy"
	"koyomi/internal/session"
	"koyomi/internal/speech"
	"koyomi/internal/tts"
	"koyomi/internal/vad"
	"koyomi/pkg/stt"
)

// stream names PulseAudio reports for our own output, never ducked
var selfStreams = []string{"koyomi", "ALSA plug-in [koyomi]"}

func run(ctx context.Context, cfg *config.Config, autostart bool) error {
	httpClient, err := proxy.NewHTTPClient(cfg.Proxy, cfg.HTTPTimeout)
	if err != nil {
		return fmt.Errorf("proxy %s: %w", cfg.Proxy, err)
	}

	backend, err := newBackend(ctx, cfg, httpClient)
	if err != nil {
		return err
	}
	log.Debug("Loaded backend", "backend", cfg.Backend, "model", cfg.Model)

	voice, err := tts.NewVoicevox(tts.Config{
		URL:        cfg.EngineURL,
		Speaker:    cfg.SpeakerID,
		SpeedScale: cfg.SpeedScale,
		SampleRate: cfg.SampleRate,
		Timeout:    cfg.HTTPTimeout,
	}, nil)
	if err != nil {
		return err
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	version, err := voice.Version(probeCtx)
	cancelProbe()
	if err != nil {
		return fmt.Errorf("VOICEVOX engine at %s is not reachable: %w", cfg.EngineURL, err)
	}
	log.Debug("Connected to VOICEVOX", "version", version)

	whisper := stt.NewTranscriber(cfg.WhisperModel, stt.Options{
		Language: cfg.Language,
		Threads:  cfg.Threads,
	}, log.Default())
	if err := whisper.Load(); err != nil {
		return fmt.Errorf("whisper: %w", err)
	}
	defer whisper.Close()

	terminate, err := audio.Init()
	if err != nil {
		return err
	}
	defer terminate()

	classifier, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	seg := vad.NewSegmenter(vad.Config{
		SampleRate:     cfg.SampleRate,
		FrameDuration:  cfg.FrameDuration,
		SilenceTimeout: cfg.SilenceTimeout,
		MaxDuration:    cfg.MaxUtterance,
	}, classifier, log.Default())
	recorder := audio.NewRecorder(seg, cfg.SampleRate, cfg.FrameSize(), log.Default())

	var ducker speech.Ducker
	if cfg.Duck {
		ducker = audio.NewDucker(selfStreams, 10)
	}
	player := speech.NewPlayer(voice, func() (speech.Sink, error) {
		s, err := audio.OpenSpeaker(cfg.SampleRate)
		if err != nil {
			return nil, err
		}
		return s, nil
	}, speech.Config{
		SampleRate:  cfg.SampleRate,
		Terminators: cfg.Terminators,
		Ducker:      ducker,
		DuckFactor:  cfg.DuckFactor,
	}, log.Default())

	bus := events.NewFanout(events.NewLogSink(log.Default()))
	if cfg.EventsURL != "" {
		ws := events.NewWSSink(cfg.EventsURL, 2*time.Second, log.Default())
		bus.Add(ws)
		go ws.Run(ctx)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, log.Default()); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	var cue func()
	if cfg.ChimePath != "" {
		chime := notify.NewChime(cfg.ChimePath, cfg.SampleRate, func() (notify.Sink, error) {
			s, err := audio.OpenSpeaker(cfg.SampleRate)
			if err != nil {
				return nil, err
			}
			return s, nil
		})
		cue = func() {
			if err := chime.Play(); err != nil {
				log.Warn("Failed to play chime", "err", err)
			}
		}
	}

	ctrl := session.New(session.Config{
		HistoryCap:  cfg.HistoryCap,
		ExitPhrases: cfg.ExitPhrases,
		ExitMatch:   cfg.ExitMatch,
		Farewell:    cfg.Farewell,
		ErrorPause:  cfg.ErrorPause,
		IdlePause:   cfg.IdlePause,
	}, session.Deps{
		Recorder:    recorder,
		Transcriber: whisper,
		Generator:   llm.NewGenerator(backend, cfg.SystemPrompt, cfg.Apology, log.Default()),
		Speaker:     player,
		Events:      bus,
		Cue:         cue,
	}, log.Default())

	ctx, quit := context.WithCancel(ctx)
	defer quit()

	srv, err := ipc.Listen(cfg.SocketPath, controlHandler(ctrl, quit), log.Default())
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer srv.Close()
	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Error("Control socket failed", "err", err)
		}
	}()

	if cfg.Hotkey != "" {
		go func() {
			if err := control.Watch(ctx, cfg.Hotkey, func() { ctrl.Toggle(ctx) }, log.Default()); err != nil {
				log.Error("Hotkey disabled", "err", err)
			}
		}()
	}

	log.Info("Boot up - successful", "socket", cfg.SocketPath)
	if autostart {
		ctrl.Start(ctx)
	}

	<-ctx.Done()
	log.Info("Shutting down")
	ctrl.Stop()
	ctrl.Wait()
	return nil
}

func controlHandler(ctrl *session.Controller, quit context.CancelFunc) ipc.Handler {
	return func(ctx context.Context, msg ipc.ControlMessage) ipc.Response {
		switch msg.Cmd {
		case ipc.CmdStart:
			ctrl.Start(ctx)
		case ipc.CmdStop:
			ctrl.Stop()
		case ipc.CmdToggle:
			ctrl.Toggle(ctx)
		case ipc.CmdStatus:
		case ipc.CmdQuit:
			quit()
		default:
			log.Warn("Unknown command", "cmd", msg.Cmd)
			return ipc.Response{Error: "unknown command " + msg.Cmd}
		}
		return ipc.Response{OK: true, Running: ctrl.Running(), State: ctrl.State().String()}
	}
}

func newBackend(ctx context.Context, cfg *config.Config, httpClient *http.Client) (llm.Backend, error) {
	switch cfg.Backend {
	case config.BackendOpenAI:
		return llm.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.Model, httpClient), nil
	default:
		return llm.NewGeminiBackend(ctx, cfg.GeminiAPIKey, cfg.Model, httpClient)
	}
}

func newClassifier(cfg *config.Config) (vad.Classifier, error) {
	if cfg.VADEngine == config.VADEnergy {
		return vad.NewEnergy(cfg.EnergyThreshold), nil
	}
	return vad.NewWebRTC(cfg.SampleRate, cfg.FrameDuration, cfg.VADAggressiveness)
}
