package domain

import "errors"

// Pipeline error taxonomy. Components wrap these with fmt.Errorf("%w: ...")
// so callers can classify failures with errors.Is.
var (
	ErrAudioDevice      = errors.New("audio device error")
	ErrTranscription    = errors.New("transcription error")
	ErrNetwork          = errors.New("network error")
	ErrAPIFormat        = errors.New("api format error")
	ErrModelNotLoaded   = errors.New("ASR model not loaded")
	ErrAlreadyRecording = errors.New("already recording")
)
