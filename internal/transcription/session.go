// Package transcription accumulates engine hypotheses for one session.
package transcription

import (
	"sync"

	"github.com/pacelabs/pace-core/internal/speech"
)

// Update is the session-level interpretation of one engine event.
type Update struct {
	Transcript string
	WordCount  int
	// Grew reports whether this event increased the recognized word count.
	Grew  bool
	Final bool
	// Err is set only when the failure should surface to the caller: engine
	// errors arriving after any text exists are swallowed and the session
	// finishes with partial data instead.
	Err error
	// Degraded marks a swallowed engine error.
	Degraded bool
}

// Session wraps an open speech stream and tracks the cumulative transcript.
// Engines return cumulative hypotheses, so each event replaces the running
// text; the word count comes from recognized segments, not whitespace
// splitting, so mid-word revisions are not double counted.
type Session struct {
	stream speech.Stream

	mu         sync.Mutex
	transcript string
	words      int
	ended      bool
}

func New(stream speech.Stream) *Session {
	return &Session{stream: stream}
}

// Feed pushes captured PCM into the engine. No-op after End.
func (s *Session) Feed(pcm []byte) error {
	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return nil
	}
	return s.stream.Feed(pcm)
}

// End signals end of input to the engine. Idempotent.
func (s *Session) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	s.stream.End()
}

// Cancel aborts the engine task.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.stream.Cancel()
}

// Events exposes the engine's event stream.
func (s *Session) Events() <-chan speech.Event { return s.stream.Events() }

// Apply folds one engine event into the session state.
func (s *Session) Apply(ev speech.Event) Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Err != nil {
		if s.transcript == "" {
			return Update{Err: ev.Err}
		}
		return Update{Transcript: s.transcript, WordCount: s.words, Degraded: true}
	}

	s.transcript = ev.Text
	up := Update{Transcript: ev.Text, Final: ev.Final}
	if ev.Segments > s.words {
		s.words = ev.Segments
		up.Grew = true
	}
	up.WordCount = s.words
	return up
}

// Transcript returns the latest hypothesis.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript
}

// Words returns the recognized segment count.
func (s *Session) Words() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words
}
