package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audiotextbot/config"
)

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-or-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
audio:
  source: file
  file_dir: /tmp/audio
  segment_seconds: 5
  flush_on_stop: false
chat:
  api_key: ${TEST_OPENROUTER_KEY}
  timeout: 20s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}

	if cfg.Chat.APIKey != "sk-or-test" {
		t.Errorf("chat.api_key: got %q", cfg.Chat.APIKey)
	}
	if cfg.Chat.Timeout != 20*time.Second {
		t.Errorf("chat.timeout: got %v", cfg.Chat.Timeout)
	}
	if cfg.Audio.Source != "file" || cfg.Audio.FileDir != "/tmp/audio" {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Audio.SegmentDuration() != 5*time.Second {
		t.Errorf("segment duration: got %v", cfg.Audio.SegmentDuration())
	}
	if *cfg.Audio.FlushOnStop {
		t.Error("explicit flush_on_stop: false should be kept")
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("default sample rate: got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.MinTail() != 500*time.Millisecond {
		t.Errorf("default min tail: got %v", cfg.Audio.MinTail())
	}
	if cfg.Audio.PollInterval != 100*time.Millisecond {
		t.Errorf("default poll interval: got %v", cfg.Audio.PollInterval)
	}
	if cfg.ASR.Backend != "openai" || cfg.ASR.Language != "el" {
		t.Errorf("asr defaults: got %+v", cfg.ASR)
	}
	if cfg.Chat.Backend != "openai" || !*cfg.Chat.DropStaleReplies {
		t.Errorf("chat defaults: got %+v", cfg.Chat)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("log defaults: got %+v", cfg.Log)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown source", "audio:\n  source: http\n", "audio.source"},
		{"unknown asr backend", "asr:\n  backend: vosk\n", "asr.backend"},
		{"unknown chat backend", "chat:\n  backend: cohere\n", "chat.backend"},
		{"gemini without key", "chat:\n  backend: gemini\n", "chat.api_key"},
		{"negative segment", "audio:\n  segment_seconds: -1\n", "audio.segment_seconds"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
		{"bad yaml", "audio: [", "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
