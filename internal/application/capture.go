package application

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"audiotextbot/internal/domain"
)

// CaptureConfig controls how input frames are cut into segments.
type CaptureConfig struct {
	Format          AudioFormat
	SegmentDuration time.Duration
	PollInterval    time.Duration
	// FlushOnStop transcribes the partial tail left when recording stops,
	// provided it holds at least MinTail of audio. Otherwise it is discarded.
	FlushOnStop bool
	MinTail     time.Duration
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Format:          DefaultAudioFormat(),
		SegmentDuration: 10 * time.Second,
		PollInterval:    100 * time.Millisecond,
		FlushOnStop:     true,
		MinTail:         500 * time.Millisecond,
	}
}

func (c CaptureConfig) segmentSamples() int {
	return samplesFor(c.SegmentDuration, c.Format.SampleRate)
}

func (c CaptureConfig) minTailSamples() int {
	return samplesFor(c.MinTail, c.Format.SampleRate)
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(d * time.Duration(sampleRate) / time.Second)
}

// accumulator collects frames until a segment's worth of samples is held.
type accumulator struct {
	samples   []float32
	threshold int
}

func newAccumulator(threshold int) *accumulator {
	if threshold <= 0 {
		threshold = 1
	}
	return &accumulator{
		samples:   make([]float32, 0, threshold),
		threshold: threshold,
	}
}

// Append adds a frame and reports whether the threshold has been reached.
func (a *accumulator) Append(frame []float32) bool {
	a.samples = append(a.samples, frame...)
	return len(a.samples) >= a.threshold
}

// Flush hands out everything accumulated and starts a fresh buffer.
func (a *accumulator) Flush() []float32 {
	out := a.samples
	a.samples = make([]float32, 0, a.threshold)
	return out
}

func (a *accumulator) Len() int {
	return len(a.samples)
}

// droppedCounter is implemented by streams that shed frames under load.
type droppedCounter interface {
	Dropped() int
}

// capture is the worker for one recording session. The accumulator is
// touched only by the goroutine running run.
type capture struct {
	sessionID string
	stream    AudioStream
	cfg       CaptureConfig
	acc       *accumulator
	seq       int

	onSegment func(domain.AudioSegment)
	onFailure func(error)

	metrics Metrics
	logger  *slog.Logger

	stopping atomic.Bool
	done     chan struct{}
}

func newCapture(
	sessionID string,
	stream AudioStream,
	cfg CaptureConfig,
	onSegment func(domain.AudioSegment),
	onFailure func(error),
	metrics Metrics,
	logger *slog.Logger,
) *capture {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &capture{
		sessionID: sessionID,
		stream:    stream,
		cfg:       cfg,
		acc:       newAccumulator(cfg.segmentSamples()),
		onSegment: onSegment,
		onFailure: onFailure,
		metrics:   metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// requestStop sets the stop flag and reports whether this call set it.
func (c *capture) requestStop() bool {
	return c.stopping.CompareAndSwap(false, true)
}

func (c *capture) run() {
	defer close(c.done)
	defer c.closeStream()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	frames := c.stream.Frames()
	for {
		if c.stopping.Load() {
			c.drain(frames)
			c.flushTail()
			return
		}

		select {
		case frame, ok := <-frames:
			if !ok {
				if c.stopping.Load() {
					c.flushTail()
					return
				}
				c.onFailure(fmt.Errorf("%w: input stream ended: %v", domain.ErrAudioDevice, c.stream.Err()))
				return
			}
			if c.acc.Append(frame) {
				c.emit(c.acc.Flush())
			}
		case <-ticker.C:
		}
	}
}

// drain consumes the frames already queued when stop was requested. Frames
// arriving later are lost.
func (c *capture) drain(frames <-chan []float32) {
	for n := len(frames); n > 0; n-- {
		frame, ok := <-frames
		if !ok {
			return
		}
		if c.acc.Append(frame) {
			c.emit(c.acc.Flush())
		}
	}
}

func (c *capture) flushTail() {
	tail := c.acc.Len()
	if tail == 0 {
		return
	}
	if !c.cfg.FlushOnStop || tail < c.cfg.minTailSamples() {
		c.logger.Debug("discarding tail audio", "session", c.sessionID, "samples", tail)
		c.acc.Flush()
		return
	}
	c.emit(c.acc.Flush())
}

func (c *capture) emit(samples []float32) {
	c.seq++
	segment := domain.AudioSegment{
		SessionID:  c.sessionID,
		Seq:        c.seq,
		SampleRate: c.cfg.Format.SampleRate,
		Samples:    samples,
	}
	c.metrics.SegmentFlushed(segment.Duration())
	c.logger.Info("segment flushed",
		"session", c.sessionID,
		"seq", segment.Seq,
		"duration", segment.Duration(),
	)
	c.onSegment(segment)
}

func (c *capture) closeStream() {
	if err := c.stream.Close(); err != nil {
		c.logger.Warn("closing input stream", "error", err)
	}
	if dc, ok := c.stream.(droppedCounter); ok {
		if n := dc.Dropped(); n > 0 {
			c.metrics.FramesDropped(n)
			c.logger.Warn("input frames dropped", "session", c.sessionID, "frames", n)
		}
	}
}
