package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"github.com/lmittmann/tint"
	log "log/slog"

	"koyomi/internal/config"
	"koyomi/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configPath := cli.StringP("config", "c", "", "YAML config file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	transcribe := cli.String("transcribe", "", "Transcribe an audio file and exit")
	autostart := cli.Bool("start", true, "Start listening right away")
	overrides := config.NewOverrides(cli.CommandLine)
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	overrides.Apply(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *transcribe != "" {
		if err := transcribeFile(ctx, cfg, *transcribe); err != nil {
			log.Error("Failed to transcribe", "file", *transcribe, "err", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	log.Info("Booting up")
	if err := run(ctx, cfg, *autostart); err != nil {
		log.Error("Exiting", "err", err)
		os.Exit(1)
	}
}

func transcribeFile(ctx context.Context, cfg *config.Config, path string) error {
	tr := stt.NewTranscriber(cfg.WhisperModel, stt.Options{
		Language: cfg.Language,
		Threads:  cfg.Threads,
	}, log.Default())
	if err := tr.Load(); err != nil {
		return err
	}
	defer tr.Close()

	res, err := tr.TranscribeFile(ctx, path)
	if err != nil {
		return err
	}

	log.Debug("Transcribed", "segments", len(res.Segments), "language", res.Language)
	fmt.Println(res.Text)
	return nil
}
