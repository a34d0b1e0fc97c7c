package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"audiotextbot/config"
	"audiotextbot/internal/application"
	"audiotextbot/internal/infra/anthropic"
	"audiotextbot/internal/infra/audio"
	"audiotextbot/internal/infra/control"
	"audiotextbot/internal/infra/gemini"
	"audiotextbot/internal/infra/google"
	"audiotextbot/internal/infra/metrics"
	"audiotextbot/internal/infra/openai"
)

// Services is the assembled runtime graph.
type Services struct {
	Config   *config.Config
	Bus      *application.EventBus
	Pipeline *application.Pipeline
	Metrics  *metrics.Metrics
	// Server is nil when the control server is disabled.
	Server *control.Server
}

// Build wires every component selected by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	source, err := NewAudioSource(cfg.Audio, logger)
	if err != nil {
		return nil, err
	}

	model, err := NewSpeechModel(cfg.ASR)
	if err != nil {
		return nil, err
	}

	chat, err := NewChatModel(ctx, cfg.Chat)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	bus := application.NewEventBus(logger)

	opts := []application.Option{application.WithMetrics(m)}
	if cfg.Audio.ArchiveDir != "" {
		archiver, err := audio.NewArchiver(cfg.Audio.ArchiveDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, application.WithArchiver(archiver))
	}

	pipeline := application.NewPipeline(
		source,
		model,
		application.NewTranscriber(model, float32(cfg.Audio.SilenceThreshold), logger),
		application.NewResponder(chat),
		bus,
		logger,
		PipelineConfig(cfg),
		opts...,
	)

	services := &Services{
		Config:   cfg,
		Bus:      bus,
		Pipeline: pipeline,
		Metrics:  m,
	}

	if cfg.Server.Enabled {
		services.Server = control.NewServer(
			cfg.Server.HTTPAddr,
			cfg.Server.AuthToken,
			pipeline,
			bus,
			m.Handler(),
			logger,
		)
	}

	return services, nil
}

// Close stops the control server, drains the pipeline and closes the bus.
func (s *Services) Close() error {
	var errs []error
	if s.Server != nil {
		if err := s.Server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping control server: %w", err))
		}
	}
	if err := s.Pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing pipeline: %w", err))
	}
	s.Bus.Close()
	return errors.Join(errs...)
}

func PipelineConfig(cfg *config.Config) application.PipelineConfig {
	return application.PipelineConfig{
		Capture: application.CaptureConfig{
			Format: application.AudioFormat{
				SampleRate:      cfg.Audio.SampleRate,
				Channels:        1,
				FramesPerBuffer: cfg.Audio.FramesPerBuffer,
			},
			SegmentDuration: cfg.Audio.SegmentDuration(),
			PollInterval:    cfg.Audio.PollInterval,
			FlushOnStop:     *cfg.Audio.FlushOnStop,
			MinTail:         cfg.Audio.MinTail(),
		},
		DropStaleReplies: *cfg.Chat.DropStaleReplies,
	}
}

func NewAudioSource(cfg config.AudioConfig, logger *slog.Logger) (application.AudioSource, error) {
	switch cfg.Source {
	case "microphone":
		return audio.NewMicrophoneSource(logger), nil
	case "file":
		return audio.NewFileSource(cfg.FileDir, cfg.Realtime, logger), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
	}
}

func NewSpeechModel(cfg config.ASRConfig) (application.SpeechModel, error) {
	switch cfg.Backend {
	case "openai":
		return openai.NewWhisperModel(openai.WhisperConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Language:    cfg.Language,
			VerifyModel: cfg.VerifyModel,
			Timeout:     cfg.Timeout,
		}), nil
	case "google":
		return google.NewSpeechModel(google.SpeechConfig{
			Model:    cfg.Model,
			Language: cfg.Language,
		}), nil
	case "none":
		return application.NoopSpeechModel{}, nil
	default:
		return nil, fmt.Errorf("unknown ASR backend %q", cfg.Backend)
	}
}

func NewChatModel(ctx context.Context, cfg config.ChatConfig) (application.ChatModel, error) {
	switch cfg.Backend {
	case "openai":
		client, err := openai.NewChatClient(openai.ChatConfig{
			APIKey:   cfg.APIKey,
			URL:      cfg.URL,
			Model:    cfg.Model,
			Provider: cfg.Provider,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		return anthropic.NewClaudeClientWithURL(cfg.APIKey, cfg.Model, cfg.URL, cfg.Timeout), nil
	case "gemini":
		client, err := gemini.NewClientWithURL(ctx, cfg.APIKey, cfg.Model, cfg.URL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown chat backend %q", cfg.Backend)
	}
}
