package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"audiotextbot/internal/application"
)

const defaultFilePollInterval = 500 * time.Millisecond

// FileSource replays WAV files dropped into a directory as if they were
// microphone input. Each file is played once per process.
type FileSource struct {
	dir          string
	realtime     bool
	pollInterval time.Duration
	processed    map[string]bool
	mu           sync.Mutex
	logger       *slog.Logger
}

// NewFileSource creates a source over dir. With realtime set, frames are
// paced at the nominal sample rate instead of being delivered at once.
func NewFileSource(dir string, realtime bool, logger *slog.Logger) *FileSource {
	return &FileSource{
		dir:          dir,
		realtime:     realtime,
		pollInterval: defaultFilePollInterval,
		processed:    make(map[string]bool),
		logger:       logger,
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Open(_ context.Context, format application.AudioFormat) (application.AudioStream, error) {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating audio dir: %w", err)
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if format.FramesPerBuffer <= 0 {
		format.FramesPerBuffer = 1024
	}

	s := &fileStream{
		source: f,
		format: format,
		frames: make(chan []float32, 32),
		quit:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()

	f.logger.Info("file source started", "dir", f.dir, "realtime", f.realtime)
	return s, nil
}

// nextFile returns the samples of the first unplayed WAV file in the
// directory, or nil when there is none.
func (f *FileSource) nextFile(sampleRate int) (string, []float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return "", nil, fmt.Errorf("reading dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}
		f.processed[path] = true

		samples, rate, err := readWAVFile(path)
		if err != nil {
			f.logger.Warn("skipping audio file", "path", path, "error", err)
			continue
		}
		if rate != sampleRate {
			f.logger.Warn("skipping audio file with mismatched sample rate",
				"path", path,
				"fileRate", rate,
				"sampleRate", sampleRate,
			)
			continue
		}
		return path, samples, nil
	}

	return "", nil, nil
}

func readWAVFile(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()
	return DecodeWAV(file)
}

type fileStream struct {
	source *FileSource
	format application.AudioFormat
	frames chan []float32
	quit   chan struct{}
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func (s *fileStream) Frames() <-chan []float32 {
	return s.frames
}

func (s *fileStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
	})
	return nil
}

func (s *fileStream) run() {
	defer s.wg.Done()
	defer close(s.frames)

	ticker := time.NewTicker(s.source.pollInterval)
	defer ticker.Stop()

	for {
		path, samples, err := s.source.nextFile(s.format.SampleRate)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}
		if samples != nil {
			s.source.logger.Info("playing audio file", "path", path, "samples", len(samples))
			if !s.play(samples) {
				return
			}
			continue
		}

		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
	}
}

// play delivers samples in FramesPerBuffer chunks. It reports false when
// the stream was closed mid-file.
func (s *fileStream) play(samples []float32) bool {
	size := s.format.FramesPerBuffer
	frameDur := time.Duration(size) * time.Second / time.Duration(s.format.SampleRate)

	for off := 0; off < len(samples); off += size {
		end := off + size
		if end > len(samples) {
			end = len(samples)
		}

		select {
		case s.frames <- samples[off:end]:
		case <-s.quit:
			return false
		}

		if s.source.realtime {
			select {
			case <-time.After(frameDur):
			case <-s.quit:
				return false
			}
		}
	}
	return true
}
