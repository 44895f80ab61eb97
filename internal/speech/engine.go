// Package speech wraps external streaming speech-to-text engines.
package speech

import (
	"context"
	"errors"
)

// ErrNotAuthorized is returned by Open when the engine requires a recognition
// grant that has not been given.
var ErrNotAuthorized = errors.New("speech recognition not authorized")

// Config describes the audio a stream will receive.
type Config struct {
	SampleRate int
	Channels   int
	Language   string
}

// Event is one notification from an open stream. Engines report cumulative
// hypotheses: Text replaces any earlier text, Segments is the count of
// recognized segments so far. A stream delivers zero or more partial events
// followed by exactly one terminal event (Final set, or Err set), after which
// the event channel is closed. Cancel suppresses the terminal event.
type Event struct {
	Text     string
	Segments int
	Final    bool
	Err      error
}

// Stream is one recognition session against the engine.
type Stream interface {
	// Feed pushes captured PCM (16-bit little-endian) into the engine.
	Feed(pcm []byte) error
	// End signals end of input; the engine should emit its final event.
	End()
	// Events delivers engine notifications in emission order.
	Events() <-chan Event
	// Cancel aborts the session and releases engine resources.
	Cancel()
}

// Engine opens recognition streams.
type Engine interface {
	Open(ctx context.Context, cfg Config) (Stream, error)
	// Available reports whether the engine can accept a session right now.
	Available() bool
}
