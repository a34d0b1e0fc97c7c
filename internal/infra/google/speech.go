package google

import (
	"context"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"

	"audiotextbot/internal/domain"
	"audiotextbot/internal/infra/audio"
)

// Recognizer is the subset of the Cloud Speech client the model uses.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	Close() error
}

type SpeechConfig struct {
	// Model is the Cloud Speech recognition model, e.g. "latest_long".
	Model    string
	Language string
}

// SpeechModel transcribes segments with Google Cloud Speech-to-Text.
// Credentials come from Application Default Credentials.
type SpeechModel struct {
	cfg  SpeechConfig
	dial func(ctx context.Context) (Recognizer, error)

	mu     sync.RWMutex
	client Recognizer
}

func NewSpeechModel(cfg SpeechConfig) *SpeechModel {
	return NewSpeechModelWithDialer(cfg, func(ctx context.Context) (Recognizer, error) {
		client, err := speech.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	})
}

func NewSpeechModelWithDialer(cfg SpeechConfig, dial func(ctx context.Context) (Recognizer, error)) *SpeechModel {
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &SpeechModel{cfg: cfg, dial: dial}
}

func (m *SpeechModel) Name() string {
	if m.cfg.Model == "" {
		return "google/default"
	}
	return "google/" + m.cfg.Model
}

func (m *SpeechModel) Load(ctx context.Context) error {
	client, err := m.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to create speech client: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *SpeechModel) Recognize(ctx context.Context, segment domain.AudioSegment) (string, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()
	if client == nil {
		return "", domain.ErrModelNotLoaded
	}
	if segment.Empty() {
		return "", nil
	}

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:          speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:   int32(segment.SampleRate),
			AudioChannelCount: 1,
			LanguageCode:      m.cfg.Language,
			Model:             m.cfg.Model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{
				Content: audio.PCM16Bytes(segment.Samples),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize request: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}

func (m *SpeechModel) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("closing speech client: %w", err)
	}
	return nil
}
