package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"audiotextbot/internal/domain"
)

type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	State() domain.PipelineState
	ModelReady() bool
}

type Subscriber interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// Presenter prints pipeline events to out and reads start/stop commands,
// one per line, from in.
type Presenter struct {
	in     io.Reader
	out    io.Writer
	ctrl   Controller
	events Subscriber
	logger *slog.Logger

	mu sync.Mutex
}

func NewPresenter(in io.Reader, out io.Writer, ctrl Controller, events Subscriber, logger *slog.Logger) *Presenter {
	return &Presenter{
		in:     in,
		out:    out,
		ctrl:   ctrl,
		events: events,
		logger: logger,
	}
}

// Run blocks until the user quits, input ends or ctx is cancelled.
func (p *Presenter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, unsubscribe := p.events.Subscribe(128)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for event := range events {
			p.render(event)
		}
	}()
	defer func() {
		unsubscribe()
		<-printed
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			p.logger.Warn("reading console input", "error", err)
		}
	}()

	p.println("Commands: start, stop, status, quit")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := p.handle(ctx, strings.TrimSpace(strings.ToLower(line))); quit {
				return nil
			}
		}
	}
}

func (p *Presenter) handle(ctx context.Context, cmd string) bool {
	switch cmd {
	case "":
	case "start":
		if err := p.ctrl.Start(ctx); err != nil && !reportedAsStatus(err) {
			p.println("Error: " + err.Error())
		}
	case "stop":
		if err := p.ctrl.Stop(); err != nil {
			p.println("Error: " + err.Error())
		}
	case "status":
		ready := "loading"
		if p.ctrl.ModelReady() {
			ready = "ready"
		}
		p.println(fmt.Sprintf("State: %s, ASR model: %s", p.ctrl.State(), ready))
	case "quit", "exit":
		return true
	default:
		p.println(fmt.Sprintf("Unknown command %q. Commands: start, stop, status, quit", cmd))
	}
	return false
}

// reportedAsStatus reports whether the pipeline already published err as a
// status event, which the printer shows on its own.
func reportedAsStatus(err error) bool {
	return errors.Is(err, domain.ErrModelNotLoaded) || errors.Is(err, domain.ErrAudioDevice)
}

func (p *Presenter) render(event domain.Event) {
	switch event.Kind {
	case domain.EventStatus:
		if event.Error {
			p.println("[error] " + event.Text)
		} else {
			p.println("[status] " + event.Text)
		}
	case domain.EventCleared:
		p.println("----------------------------------------")
	case domain.EventTranscription:
		p.println("You: " + event.Text)
	case domain.EventReply:
		p.println("Bot: " + event.Text)
	}
}

func (p *Presenter) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}
