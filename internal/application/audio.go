package application

import "context"

// AudioStream is an open input stream. Frames is closed when the stream
// ends, after which Err reports why (nil for a requested close).
type AudioStream interface {
	Frames() <-chan []float32
	Err() error
	Close() error
}

// AudioSource opens input streams in the requested format.
type AudioSource interface {
	Open(ctx context.Context, format AudioFormat) (AudioStream, error)
	Name() string
}

type AudioFormat struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 1024,
	}
}
