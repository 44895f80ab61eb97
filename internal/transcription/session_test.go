package transcription

import (
	"errors"
	"testing"

	"github.com/pacelabs/pace-core/internal/speech"
)

func TestApplyReplacesAndGrows(t *testing.T) {
	s := New(speech.NewMockStream())

	up := s.Apply(speech.Event{Text: "hello", Segments: 1})
	if !up.Grew || up.WordCount != 1 {
		t.Fatalf("expected growth to 1, got %+v", up)
	}

	up = s.Apply(speech.Event{Text: "hello world", Segments: 2})
	if !up.Grew || up.WordCount != 2 || up.Transcript != "hello world" {
		t.Fatalf("expected growth to 2, got %+v", up)
	}

	// A revision of the same hypothesis replaces text without growing.
	up = s.Apply(speech.Event{Text: "hello, world", Segments: 2})
	if up.Grew {
		t.Fatalf("revision should not count as growth: %+v", up)
	}
	if s.Transcript() != "hello, world" {
		t.Fatalf("transcript not replaced: %q", s.Transcript())
	}
	if s.Words() != 2 {
		t.Fatalf("expected 2 words, got %d", s.Words())
	}
}

func TestApplyErrorBeforeTextSurfaces(t *testing.T) {
	s := New(speech.NewMockStream())

	up := s.Apply(speech.Event{Err: errors.New("decoder crashed")})
	if up.Err == nil {
		t.Fatal("expected surfaced error with empty transcript")
	}
	if up.Degraded {
		t.Fatal("surfaced error must not be marked degraded")
	}
}

func TestApplyErrorAfterTextDegrades(t *testing.T) {
	s := New(speech.NewMockStream())
	s.Apply(speech.Event{Text: "partial words here", Segments: 3})

	up := s.Apply(speech.Event{Err: errors.New("decoder crashed")})
	if up.Err != nil {
		t.Fatalf("error after text must be swallowed, got %v", up.Err)
	}
	if !up.Degraded {
		t.Fatal("expected degraded update")
	}
	if up.Transcript != "partial words here" || up.WordCount != 3 {
		t.Fatalf("partial data lost: %+v", up)
	}
}

func TestFeedAfterEndIsNoop(t *testing.T) {
	stream := speech.NewMockStream()
	s := New(stream)

	if err := s.Feed([]byte{0, 0}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	s.End()
	s.End() // idempotent
	if err := s.Feed([]byte{0, 0}); err != nil {
		t.Fatalf("feed after end: %v", err)
	}

	var events []speech.Event
	for ev := range s.Events() {
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected partial + final, got %d events", len(events))
	}
	if !events[len(events)-1].Final {
		t.Fatal("last event not final")
	}
	if events[len(events)-1].Segments != 1 {
		t.Fatalf("frame fed after end was recognized: %+v", events[len(events)-1])
	}
}
