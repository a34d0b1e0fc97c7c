package application

import (
	"time"

	"audiotextbot/internal/domain"
)

// Metrics receives pipeline measurements.
type Metrics interface {
	SegmentFlushed(d time.Duration)
	SegmentSilent()
	FramesDropped(n int)
	TranscriptionDone(d time.Duration, err error)
	ReplyDone(d time.Duration, err error)
	ReplyStale()
	StateChanged(state domain.PipelineState)
}

type NoopMetrics struct{}

func (NoopMetrics) SegmentFlushed(_ time.Duration)             {}
func (NoopMetrics) SegmentSilent()                             {}
func (NoopMetrics) FramesDropped(_ int)                        {}
func (NoopMetrics) TranscriptionDone(_ time.Duration, _ error) {}
func (NoopMetrics) ReplyDone(_ time.Duration, _ error)         {}
func (NoopMetrics) ReplyStale()                                {}
func (NoopMetrics) StateChanged(_ domain.PipelineState)        {}
