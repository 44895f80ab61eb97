// Package playback plays recorded WAV artifacts.
package playback

import (
	"context"
	"errors"
)

// ErrNoArtifact is returned when the requested file cannot be opened.
var ErrNoArtifact = errors.New("playback artifact unavailable")

// Player plays one local audio file at a time. Play returns once playback has
// started; done is invoked exactly once when playback finishes or is stopped.
type Player interface {
	Play(ctx context.Context, path string, done func(err error)) error
	Stop()
}

// NoopPlayer satisfies Player where no output device exists (headless runs
// and tests). It completes immediately.
type NoopPlayer struct{}

func (NoopPlayer) Play(_ context.Context, _ string, done func(error)) error {
	if done != nil {
		go done(nil)
	}
	return nil
}

func (NoopPlayer) Stop() {}
