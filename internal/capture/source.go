// Package capture owns the microphone device and the per-session WAV artifact.
package capture

import "errors"

// Config describes one capture session.
type Config struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	// ArtifactPath is the well-known temporary file the session records into.
	// It is created or overwritten on start.
	ArtifactPath string
}

var (
	// ErrAlreadyRecording is returned when a capture session is already active.
	ErrAlreadyRecording = errors.New("capture already active")
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Source is a physical or synthetic audio input device. ReadFrame blocks
// until the next frame of interleaved 16-bit samples is available and returns
// io.EOF once the source is stopped.
type Source interface {
	Start(cfg Config) error
	ReadFrame() ([]int16, error)
	Stop() error
}
