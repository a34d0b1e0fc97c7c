package application_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"audiotextbot/internal/application"
	"audiotextbot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct {
	frames chan []float32
	closed atomic.Bool

	mu  sync.Mutex
	err error
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan []float32, 1024)}
}

func (s *fakeStream) Frames() <-chan []float32 { return s.frames }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// push queues n samples of the given amplitude in frames of size.
func (s *fakeStream) push(n, size int, amplitude float32) {
	for n > 0 {
		k := size
		if k > n {
			k = n
		}
		frame := make([]float32, k)
		for i := range frame {
			frame[i] = amplitude
		}
		s.frames <- frame
		n -= k
	}
}

// fail ends the stream as a lost device would.
func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.frames)
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	opens   int
	openErr error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Open(_ context.Context, _ application.AudioFormat) (application.AudioStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := newFakeStream()
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) stream(t *testing.T) *fakeStream {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		t.Fatal("no stream opened")
	}
	return f.streams[len(f.streams)-1]
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type fakeSpeech struct {
	loadErr error
	// texts is returned in order, one per Recognize call; the last entry repeats.
	texts []string
	err   error

	mu       sync.Mutex
	segments []domain.AudioSegment
	closed   bool
}

func (f *fakeSpeech) Name() string { return "fake-asr" }

func (f *fakeSpeech) Load(_ context.Context) error { return f.loadErr }

func (f *fakeSpeech) Recognize(_ context.Context, segment domain.AudioSegment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, segment)
	if f.err != nil {
		return "", f.err
	}
	if len(f.texts) == 0 {
		return "", nil
	}
	i := len(f.segments) - 1
	if i >= len(f.texts) {
		i = len(f.texts) - 1
	}
	return f.texts[i], nil
}

func (f *fakeSpeech) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSpeech) calls() []domain.AudioSegment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.AudioSegment(nil), f.segments...)
}

type fakeChat struct {
	reply func(prompt string) (string, error)
	// gates holds a prompt's reply until the channel is closed.
	gates map[string]chan struct{}

	mu      sync.Mutex
	prompts []string
}

func (f *fakeChat) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gate := f.gates[prompt]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.reply == nil {
		return "reply to " + prompt, nil
	}
	return f.reply(prompt)
}

func (f *fakeChat) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) texts(kind domain.EventKind) []string {
	var out []string
	for _, e := range r.snapshot() {
		if e.Kind == kind {
			out = append(out, e.Text)
		}
	}
	return out
}

func (r *recorder) hasStatus(substr string, isErr bool) bool {
	for _, e := range r.snapshot() {
		if e.Kind == domain.EventStatus && e.Error == isErr && strings.Contains(e.Text, substr) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
