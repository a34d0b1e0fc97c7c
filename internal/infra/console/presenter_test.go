package console_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"audiotextbot/internal/application"
	"audiotextbot/internal/domain"
	"audiotextbot/internal/infra/console"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeController struct {
	mu     sync.Mutex
	starts int
	stops  int
	state  domain.PipelineState
}

func (f *fakeController) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.state == domain.StateRecording {
		return domain.ErrAlreadyRecording
	}
	f.state = domain.StateRecording
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.state = domain.StateIdle
	return nil
}

func (f *fakeController) State() domain.PipelineState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) ModelReady() bool { return true }

func TestPresenter_Commands(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := application.NewEventBus(logger)
	ctrl := &fakeController{state: domain.StateIdle}
	out := &syncBuffer{}

	in := strings.NewReader("start\nstart\nstatus\nSTOP\nbogus\nquit\nstart\n")
	p := console.NewPresenter(in, out, ctrl, bus, logger)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if ctrl.starts != 2 || ctrl.stops != 1 {
		t.Errorf("calls: starts=%d stops=%d, want 2/1 (nothing after quit)", ctrl.starts, ctrl.stops)
	}

	output := out.String()
	for _, want := range []string{
		"Error: " + domain.ErrAlreadyRecording.Error(),
		"State: recording, ASR model: ready",
		`Unknown command "bogus"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

type rejectingController struct {
	fakeController
	err error
}

func (r *rejectingController) Start(_ context.Context) error { return r.err }

func TestPresenter_StartErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantPrint bool
	}{
		{name: "closed pipeline", err: errors.New("pipeline closed"), wantPrint: true},
		{name: "already recording", err: domain.ErrAlreadyRecording, wantPrint: true},
		// Published as status events by the pipeline itself.
		{name: "model not loaded", err: domain.ErrModelNotLoaded, wantPrint: false},
		{name: "device failure", err: fmt.Errorf("%w: no input", domain.ErrAudioDevice), wantPrint: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			out := &syncBuffer{}
			ctrl := &rejectingController{err: tt.err}

			p := console.NewPresenter(strings.NewReader("start\n"), out, ctrl, application.NewEventBus(logger), logger)
			if err := p.Run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}

			printed := strings.Contains(out.String(), "Error: "+tt.err.Error())
			if printed != tt.wantPrint {
				t.Errorf("error printed: got %v, want %v\n%s", printed, tt.wantPrint, out.String())
			}
		})
	}
}

func TestPresenter_RendersEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := application.NewEventBus(logger)
	out := &syncBuffer{}

	inR, inW := io.Pipe()
	defer inW.Close()

	p := console.NewPresenter(inR, out, &fakeController{state: domain.StateIdle}, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Run subscribes before printing the banner.
	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(out.String(), "Commands:") {
		if time.Now().After(deadline) {
			t.Fatal("presenter did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(domain.Event{Kind: domain.EventTranscription, Text: "hello world"})
	bus.Publish(domain.Event{Kind: domain.EventReply, Text: "Hi there"})
	bus.Publish(domain.Event{Kind: domain.EventStatus, Text: "network error", Error: true})

	for _, want := range []string{"You: hello world", "Bot: Hi there", "[error] network error"} {
		deadline := time.Now().Add(3 * time.Second)
		for !strings.Contains(out.String(), want) {
			if time.Now().After(deadline) {
				t.Fatalf("output missing %q:\n%s", want, out.String())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run after cancel: got %v", err)
	}
}
