package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio  AudioConfig  `yaml:"audio"`
	ASR    ASRConfig    `yaml:"asr"`
	Chat   ChatConfig   `yaml:"chat"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type AudioConfig struct {
	// Source is "microphone" or "file".
	Source          string `yaml:"source"`
	FileDir         string `yaml:"file_dir"`
	Realtime        bool   `yaml:"realtime"`
	SampleRate      int    `yaml:"sample_rate"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`

	SegmentSeconds   float64       `yaml:"segment_seconds"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	FlushOnStop      *bool         `yaml:"flush_on_stop"`
	MinTailSeconds   float64       `yaml:"min_tail_seconds"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	ArchiveDir       string        `yaml:"archive_dir"`
}

type ASRConfig struct {
	// Backend is "openai", "google" or "none".
	Backend     string        `yaml:"backend"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Language    string        `yaml:"language"`
	VerifyModel bool          `yaml:"verify_model"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ChatConfig struct {
	// Backend is "openai", "anthropic" or "gemini".
	Backend  string `yaml:"backend"`
	APIKey   string `yaml:"api_key"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
	// Timeout of zero means no client deadline.
	Timeout          time.Duration `yaml:"timeout"`
	DropStaleReplies *bool         `yaml:"drop_stale_replies"`
}

type ServerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	HTTPAddr  string `yaml:"http_addr"`
	AuthToken string `yaml:"auth_token"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.setDefaults()
	return &cfg
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = 1024
	}
	if c.Audio.SegmentSeconds == 0 {
		c.Audio.SegmentSeconds = 10
	}
	if c.Audio.PollInterval == 0 {
		c.Audio.PollInterval = 100 * time.Millisecond
	}
	if c.Audio.FlushOnStop == nil {
		c.Audio.FlushOnStop = boolPtr(true)
	}
	if c.Audio.MinTailSeconds == 0 {
		c.Audio.MinTailSeconds = 0.5
	}
	if c.Audio.SilenceThreshold == 0 {
		c.Audio.SilenceThreshold = 0.015
	}
	if c.ASR.Backend == "" {
		c.ASR.Backend = "openai"
	}
	if c.ASR.Language == "" {
		c.ASR.Language = "el"
	}
	if c.ASR.Timeout == 0 {
		c.ASR.Timeout = 30 * time.Second
	}
	if c.Chat.Backend == "" {
		c.Chat.Backend = "openai"
	}
	if c.Chat.DropStaleReplies == nil {
		c.Chat.DropStaleReplies = boolPtr(true)
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Audio.Source {
	case "microphone", "file":
	default:
		errs = append(errs, fmt.Errorf("audio.source: unknown source %q", c.Audio.Source))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive"))
	}
	if c.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive"))
	}
	if c.Audio.SegmentSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.segment_seconds must be positive"))
	}
	if c.Audio.MinTailSeconds < 0 {
		errs = append(errs, fmt.Errorf("audio.min_tail_seconds must not be negative"))
	}
	if c.Audio.SilenceThreshold < 0 || c.Audio.SilenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold must be in [0, 1)"))
	}

	switch c.ASR.Backend {
	case "openai", "google", "none":
	default:
		errs = append(errs, fmt.Errorf("asr.backend: unknown backend %q", c.ASR.Backend))
	}

	switch c.Chat.Backend {
	case "openai", "anthropic", "gemini":
	default:
		errs = append(errs, fmt.Errorf("chat.backend: unknown backend %q", c.Chat.Backend))
	}
	if c.Chat.Backend == "gemini" && c.Chat.APIKey == "" {
		errs = append(errs, fmt.Errorf("chat.api_key is required for the gemini backend"))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func (a AudioConfig) SegmentDuration() time.Duration {
	return time.Duration(a.SegmentSeconds * float64(time.Second))
}

func (a AudioConfig) MinTail() time.Duration {
	return time.Duration(a.MinTailSeconds * float64(time.Second))
}

func boolPtr(b bool) *bool {
	return &b
}
