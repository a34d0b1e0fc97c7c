package application

import (
	"context"
	"fmt"

	"audiotextbot/internal/domain"
)

// SpeechModel is a speech-to-text backend addressed by model name.
// Load must succeed before Recognize is called.
type SpeechModel interface {
	Name() string
	Load(ctx context.Context) error
	Recognize(ctx context.Context, segment domain.AudioSegment) (string, error)
	Close() error
}

// ChatModel sends a single-turn prompt to a chat completion API.
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NoopSpeechModel refuses to load. It stands in when no ASR backend is configured.
type NoopSpeechModel struct{}

func (NoopSpeechModel) Name() string { return "none" }

func (NoopSpeechModel) Load(_ context.Context) error {
	return fmt.Errorf("speech-to-text not configured: set asr.backend to enable transcription")
}

func (NoopSpeechModel) Recognize(_ context.Context, _ domain.AudioSegment) (string, error) {
	return "", fmt.Errorf("speech-to-text not configured")
}

func (NoopSpeechModel) Close() error { return nil }
