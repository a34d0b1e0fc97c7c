package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"audiotextbot/config"
	"audiotextbot/internal/bootstrap"
	"audiotextbot/internal/infra/console"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	headless := flag.Bool("headless", false, "run without the console, controlled through the HTTP API only")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("loading .env", "error", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	services, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("building services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("starting audiotextbot",
		"audio_source", cfg.Audio.Source,
		"asr_backend", cfg.ASR.Backend,
		"chat_backend", cfg.Chat.Backend,
	)

	if services.Server != nil {
		if err := services.Server.Start(ctx); err != nil {
			logger.Error("starting control server", "error", err)
			os.Exit(1)
		}
	}

	// The model loads in the background so the console is usable at once;
	// start is refused until it is ready.
	go func() {
		if err := services.Pipeline.LoadModel(ctx); err != nil {
			logger.Error("loading ASR model", "error", err)
		}
	}()

	if *headless {
		if services.Server == nil {
			logger.Error("headless mode needs server.enabled")
			os.Exit(1)
		}
		<-ctx.Done()
		logger.Info("shutting down")
		return
	}

	presenter := console.NewPresenter(os.Stdin, os.Stdout, services.Pipeline, services.Bus, logger)
	if err := presenter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("console error", "error", err)
	}
	logger.Info("shutting down")
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && path == "config.yaml" {
		return config.Default(), nil
	}
	return nil, err
}

// setupLogger writes to stderr so log lines do not interleave with the
// conversation on stdout.
func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
