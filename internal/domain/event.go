package domain

import "time"

// PipelineState models the recording lifecycle.
type PipelineState string

const (
	StateIdle      PipelineState = "idle"
	StateRecording PipelineState = "recording"
	StateStopping  PipelineState = "stopping"
)

// EventKind identifies what a presentation layer should do with an event.
type EventKind string

const (
	// EventStatus replaces the status line. Error is set for failures.
	EventStatus EventKind = "status"
	// EventTranscription appends Text to the transcript display.
	EventTranscription EventKind = "transcription"
	// EventReply replaces the reply display with Text.
	EventReply EventKind = "reply"
	// EventCleared resets both displays at the start of a session.
	EventCleared EventKind = "cleared"
)

// Event is a single message from the pipeline to presentation.
type Event struct {
	Kind      EventKind     `json:"kind"`
	Text      string        `json:"text"`
	Error     bool          `json:"error,omitempty"`
	State     PipelineState `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	Seq       int           `json:"seq,omitempty"`
	Time      time.Time     `json:"time"`
}
