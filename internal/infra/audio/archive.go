package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"audiotextbot/internal/domain"
)

// Archiver writes every flushed segment to dir as a WAV file named
// <session>-<seq>.wav.
type Archiver struct {
	dir string
}

func NewArchiver(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &Archiver{dir: dir}, nil
}

func (a *Archiver) Archive(segment domain.AudioSegment) error {
	if segment.Empty() {
		return nil
	}
	path := a.Path(segment)
	if err := WriteWAVFile(path, segment.Samples, segment.SampleRate); err != nil {
		return fmt.Errorf("archiving segment %d: %w", segment.Seq, err)
	}
	return nil
}

func (a *Archiver) Path(segment domain.AudioSegment) string {
	return filepath.Join(a.dir, fmt.Sprintf("%s-%04d.wav", segment.SessionID, segment.Seq))
}
