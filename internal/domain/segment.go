package domain

import "time"

// AudioSegment is a run of mono float32 samples handed from capture to
// transcription. It is owned by exactly one goroutine at a time.
type AudioSegment struct {
	SessionID  string
	Seq        int
	SampleRate int
	Samples    []float32
}

// Duration reports how much audio the segment holds.
func (s AudioSegment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Empty reports whether the segment carries no samples.
func (s AudioSegment) Empty() bool {
	return len(s.Samples) == 0
}
