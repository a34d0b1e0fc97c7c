//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"audiotextbot/internal/application"
)

// bufferedSeconds is how much audio the callback can queue while the
// capture worker is busy transcribing.
const bufferedSeconds = 30

type MicrophoneSource struct {
	logger *slog.Logger
}

func NewMicrophoneSource(logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{logger: logger}
}

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Open(_ context.Context, format application.AudioFormat) (application.AudioStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	framesPerBuffer := format.FramesPerBuffer
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}

	s := &micStream{
		frames: make(chan []float32, bufferedSeconds*format.SampleRate/framesPerBuffer+1),
		watch:  newStallWatch(stallTimeout, time.Now),
		quit:   make(chan struct{}),
		logger: m.logger,
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(format.SampleRate), framesPerBuffer, s.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}

	s.watch.Touch()
	go s.watchdog()

	m.logger.Info("microphone started", "sampleRate", format.SampleRate, "framesPerBuffer", framesPerBuffer)
	return s, nil
}

type micStream struct {
	stream  *portaudio.Stream
	frames  chan []float32
	dropped atomic.Int64
	watch   *stallWatch
	quit    chan struct{}
	logger  *slog.Logger

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closeErr  error
}

// callback runs on the portaudio thread. It must not block.
func (s *micStream) callback(in []float32) {
	s.watch.Touch()
	frame := make([]float32, len(in))
	copy(frame, in)
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

func (s *micStream) Frames() <-chan []float32 {
	return s.frames
}

func (s *micStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// watchdog ends the stream when the device stops delivering frames, which
// is how an unplugged microphone shows up.
func (s *micStream) watchdog() {
	ticker := time.NewTicker(stallTimeout / 4)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			if !s.watch.Stalled() {
				continue
			}
			s.mu.Lock()
			s.err = fmt.Errorf("no audio from input device for %s", stallTimeout)
			s.mu.Unlock()
			s.logger.Error("microphone stalled", "timeout", stallTimeout)
			s.shutdown(true)
			return
		}
	}
}

func (s *micStream) Dropped() int {
	return int(s.dropped.Load())
}

func (s *micStream) Close() error {
	return s.shutdown(false)
}

// shutdown stops the stream; portaudio guarantees no callback runs after
// Stop or Abort returns, so the frames channel can be closed safely. A
// stalled device is aborted since Stop waits for pending buffers.
func (s *micStream) shutdown(abort bool) error {
	s.closeOnce.Do(func() {
		close(s.quit)
		stop := s.stream.Stop
		if abort {
			stop = s.stream.Abort
		}
		if err := stop(); err != nil {
			s.closeErr = fmt.Errorf("stopping stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("closing stream: %w", err)
		}
		portaudio.Terminate()
		close(s.frames)
		s.logger.Info("microphone stopped")
	})
	return s.closeErr
}
