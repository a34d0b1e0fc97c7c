package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"audiotextbot/internal/domain"
)

// DefaultSilenceThreshold is the peak amplitude below which a segment is
// treated as silence. It matches roughly 500 on a 16-bit scale.
const DefaultSilenceThreshold = 0.015

var (
	specialTokenRe = regexp.MustCompile(`<\|[^|>]*\|>`)
	markerRe       = regexp.MustCompile(`(?i)[\[(](blank_audio|silence|music|noise|inaudible)[\])]`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// Transcriber turns audio segments into text with a SpeechModel.
type Transcriber struct {
	model            SpeechModel
	silenceThreshold float32
	logger           *slog.Logger
}

func NewTranscriber(model SpeechModel, silenceThreshold float32, logger *slog.Logger) *Transcriber {
	if silenceThreshold <= 0 {
		silenceThreshold = DefaultSilenceThreshold
	}
	return &Transcriber{
		model:            model,
		silenceThreshold: silenceThreshold,
		logger:           logger,
	}
}

// Transcribe returns "" without calling the model for empty or silent
// segments. Model failures are wrapped with domain.ErrTranscription.
func (t *Transcriber) Transcribe(ctx context.Context, segment domain.AudioSegment) (string, error) {
	if segment.Empty() || IsSilent(segment.Samples, t.silenceThreshold) {
		return "", nil
	}

	raw, err := t.model.Recognize(ctx, segment)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrTranscription, t.model.Name(), err)
	}

	text := CleanTranscript(raw)
	t.logger.Debug("ASR raw transcription", "seq", segment.Seq, "raw", raw, "text", text)
	return text, nil
}

// IsSilent reports whether no sample exceeds threshold in magnitude.
func IsSilent(samples []float32, threshold float32) bool {
	for _, s := range samples {
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}

// CleanTranscript strips decoder special tokens and non-speech markers and
// collapses whitespace.
func CleanTranscript(raw string) string {
	text := specialTokenRe.ReplaceAllString(raw, " ")
	text = markerRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
