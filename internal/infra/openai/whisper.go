package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"audiotextbot/internal/domain"
	"audiotextbot/internal/infra/audio"
)

type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	// VerifyModel makes Load fetch the model by name so a typo fails at
	// startup instead of on the first segment.
	VerifyModel bool
	Timeout     time.Duration
}

// WhisperModel transcribes segments with an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperModel struct {
	cfg WhisperConfig

	mu     sync.RWMutex
	client *goopenai.Client
}

func NewWhisperModel(cfg WhisperConfig) *WhisperModel {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WhisperModel{cfg: cfg}
}

func (m *WhisperModel) Name() string {
	return "openai/" + m.cfg.Model
}

func (m *WhisperModel) Load(ctx context.Context) error {
	if m.cfg.APIKey == "" {
		return errors.New("API key is required")
	}

	config := goopenai.DefaultConfig(m.cfg.APIKey)
	if m.cfg.BaseURL != "" {
		config.BaseURL = m.cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: m.cfg.Timeout}
	client := goopenai.NewClientWithConfig(config)

	if m.cfg.VerifyModel {
		if _, err := client.GetModel(ctx, m.cfg.Model); err != nil {
			return fmt.Errorf("verifying model %s: %w", m.cfg.Model, err)
		}
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *WhisperModel) Recognize(ctx context.Context, segment domain.AudioSegment) (string, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return "", domain.ErrModelNotLoaded
	}

	wav, err := audio.EncodeWAV(segment.Samples, segment.SampleRate)
	if err != nil {
		return "", fmt.Errorf("encoding segment: %w", err)
	}

	resp, err := client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    m.cfg.Model,
		Reader:   bytes.NewReader(wav),
		FilePath: "segment.wav",
		Language: m.cfg.Language,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}

	return resp.Text, nil
}

func (m *WhisperModel) Close() error {
	m.mu.Lock()
	m.client = nil
	m.mu.Unlock()
	return nil
}
