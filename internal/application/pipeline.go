package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"audiotextbot/internal/domain"
)

var errPipelineClosed = errors.New("pipeline closed")

// SegmentArchiver keeps a copy of each flushed segment.
type SegmentArchiver interface {
	Archive(segment domain.AudioSegment) error
}

type PipelineConfig struct {
	Capture CaptureConfig
	// DropStaleReplies discards a reply whose segment is older than the
	// reply already displayed for the same session.
	DropStaleReplies bool
}

type Option func(*Pipeline)

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithArchiver(a SegmentArchiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// Pipeline wires capture, transcription and replies together and owns the
// recording state machine: idle -> recording -> stopping -> idle.
type Pipeline struct {
	source      AudioSource
	model       SpeechModel
	transcriber *Transcriber
	responder   *Responder
	archiver    SegmentArchiver
	events      EventPublisher
	metrics     Metrics
	logger      *slog.Logger
	cfg         PipelineConfig

	// Sends and transcriptions are never cancelled; Close waits for them.
	ctx        context.Context
	modelReady atomic.Bool

	mu      sync.Mutex
	current *capture
	closed  bool

	stateMu sync.RWMutex
	state   domain.PipelineState

	sends sync.WaitGroup

	replyMu      sync.Mutex
	replySession string
	replySeq     int
}

func NewPipeline(
	source AudioSource,
	model SpeechModel,
	transcriber *Transcriber,
	responder *Responder,
	events EventPublisher,
	logger *slog.Logger,
	cfg PipelineConfig,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		source:      source,
		model:       model,
		transcriber: transcriber,
		responder:   responder,
		events:      events,
		metrics:     NoopMetrics{},
		logger:      logger,
		cfg:         cfg,
		ctx:         context.Background(),
		state:       domain.StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadModel loads the speech model. Until it succeeds Start is rejected.
func (p *Pipeline) LoadModel(ctx context.Context) error {
	p.status("Loading ASR model... this might take a moment.", false)
	p.logger.Info("loading ASR model", "model", p.model.Name())

	if err := p.model.Load(ctx); err != nil {
		p.status(fmt.Sprintf("Error loading ASR model: %v", err), true)
		return fmt.Errorf("loading ASR model %s: %w", p.model.Name(), err)
	}

	p.modelReady.Store(true)
	p.logger.Info("ASR model loaded", "model", p.model.Name())
	p.status("ASR model loaded. Ready to record.", false)
	return nil
}

func (p *Pipeline) ModelReady() bool {
	return p.modelReady.Load()
}

func (p *Pipeline) State() domain.PipelineState {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Start opens the input stream and launches the capture worker.
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.modelReady.Load() {
		p.status("ASR model not loaded yet. Please wait or restart.", true)
		return domain.ErrModelNotLoaded
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errPipelineClosed
	}
	if p.current != nil || p.State() != domain.StateIdle {
		return domain.ErrAlreadyRecording
	}

	sessionID := uuid.NewString()
	p.resetReplies(sessionID)
	p.publish(domain.Event{Kind: domain.EventCleared, SessionID: sessionID})

	stream, err := p.source.Open(ctx, p.cfg.Capture.Format)
	if err != nil {
		err = fmt.Errorf("%w: opening %s input: %v", domain.ErrAudioDevice, p.source.Name(), err)
		p.logger.Error("starting capture", "error", err)
		p.status("Error: "+err.Error(), true)
		return err
	}

	var c *capture
	c = newCapture(
		sessionID,
		stream,
		p.cfg.Capture,
		p.handleSegment,
		func(err error) { p.captureFailed(c, err) },
		p.metrics,
		p.logger,
	)
	p.current = c
	p.setState(domain.StateRecording)

	p.logger.Info("recording started", "session", sessionID, "source", p.source.Name())
	p.status("Recording... speak now!", false)

	go c.run()
	return nil
}

// Stop halts the capture worker and waits for it to exit. Calling Stop
// with no active session does nothing.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	c := p.current
	if c == nil {
		p.mu.Unlock()
		return nil
	}
	first := c.requestStop()
	if first {
		p.setState(domain.StateStopping)
	}
	p.mu.Unlock()

	<-c.done

	if !first {
		return nil
	}

	p.mu.Lock()
	if p.current == c {
		p.current = nil
	}
	p.setState(domain.StateIdle)
	p.mu.Unlock()

	p.logger.Info("recording stopped", "session", c.sessionID)
	p.status("Recording stopped.", false)
	return nil
}

// Close stops recording, waits for outstanding replies and releases the model.
func (p *Pipeline) Close() error {
	stopErr := p.Stop()

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.sends.Wait()

	var closeErr error
	if err := p.model.Close(); err != nil {
		closeErr = fmt.Errorf("closing ASR model: %w", err)
	}
	return errors.Join(stopErr, closeErr)
}

func (p *Pipeline) handleSegment(segment domain.AudioSegment) {
	if p.archiver != nil {
		if err := p.archiver.Archive(segment); err != nil {
			p.logger.Warn("archiving segment", "seq", segment.Seq, "error", err)
		}
	}

	start := time.Now()
	text, err := p.transcriber.Transcribe(p.ctx, segment)
	p.metrics.TranscriptionDone(time.Since(start), err)
	if err != nil {
		p.logger.Error("transcribing segment", "seq", segment.Seq, "error", err)
		p.status("Error: "+err.Error(), true)
		return
	}
	if text == "" {
		p.metrics.SegmentSilent()
		p.logger.Debug("no speech in segment", "seq", segment.Seq)
		return
	}

	p.logger.Info("transcribed", "seq", segment.Seq, "text", text)
	p.publish(domain.Event{
		Kind:      domain.EventTranscription,
		Text:      text,
		SessionID: segment.SessionID,
		Seq:       segment.Seq,
	})
	p.dispatchReply(segment.SessionID, segment.Seq, text)
}

// dispatchReply sends text on its own goroutine. Replies may complete out
// of order; acceptReply decides which ones reach the display.
func (p *Pipeline) dispatchReply(sessionID string, seq int, text string) {
	p.sends.Add(1)
	go func() {
		defer p.sends.Done()

		start := time.Now()
		reply, err := p.responder.Send(p.ctx, text)
		p.metrics.ReplyDone(time.Since(start), err)
		if err != nil {
			p.logger.Error("requesting reply", "seq", seq, "error", err)
			p.status("Error: "+err.Error(), true)
			return
		}
		if reply == "" {
			return
		}
		if !p.acceptReply(sessionID, seq) {
			p.metrics.ReplyStale()
			p.logger.Info("dropping stale reply", "seq", seq)
			return
		}

		p.publish(domain.Event{
			Kind:      domain.EventReply,
			Text:      reply,
			SessionID: sessionID,
			Seq:       seq,
		})
	}()
}

// resetReplies makes sessionID the only session whose replies may reach
// the display.
func (p *Pipeline) resetReplies(sessionID string) {
	p.replyMu.Lock()
	defer p.replyMu.Unlock()
	p.replySession = sessionID
	p.replySeq = 0
}

// acceptReply drops replies from an earlier session and replies older than
// the one already displayed.
func (p *Pipeline) acceptReply(sessionID string, seq int) bool {
	p.replyMu.Lock()
	defer p.replyMu.Unlock()

	if p.cfg.DropStaleReplies && (sessionID != p.replySession || seq < p.replySeq) {
		return false
	}
	p.replySeq = seq
	return true
}

func (p *Pipeline) captureFailed(c *capture, err error) {
	p.logger.Error("capture failed", "session", c.sessionID, "error", err)

	p.mu.Lock()
	if p.current == c {
		p.current = nil
		p.setState(domain.StateIdle)
	}
	p.mu.Unlock()

	p.status("Error: "+err.Error(), true)
}

func (p *Pipeline) setState(state domain.PipelineState) {
	p.stateMu.Lock()
	p.state = state
	p.stateMu.Unlock()
	p.metrics.StateChanged(state)
}

func (p *Pipeline) status(text string, isErr bool) {
	p.publish(domain.Event{Kind: domain.EventStatus, Text: text, Error: isErr})
}

func (p *Pipeline) publish(event domain.Event) {
	event.State = p.State()
	event.Time = time.Now()
	p.events.Publish(event)
}
