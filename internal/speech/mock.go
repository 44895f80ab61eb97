package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockEngine is an in-process engine for development and tests. By default it
// synthesizes one word per fed frame; tests can drive a stream directly
// through Emit for full control over event order and content.
type MockEngine struct{}

func NewMockEngine() *MockEngine { return &MockEngine{} }

func (m *MockEngine) Available() bool { return true }

func (m *MockEngine) Open(_ context.Context, _ Config) (Stream, error) {
	return NewMockStream(), nil
}

// MockStream implements Stream with scriptable events.
type MockStream struct {
	mu        sync.Mutex
	events    chan Event
	words     []string
	scripted  bool
	ended     bool
	cancelled bool
	closed    bool
}

func NewMockStream() *MockStream {
	return &MockStream{events: make(chan Event, 64)}
}

// NewScriptedStream returns a stream that only produces events through Emit;
// fed audio is accepted and discarded.
func NewScriptedStream() *MockStream {
	s := NewMockStream()
	s.scripted = true
	return s
}

// Emit injects an event as if the engine produced it. Terminal events close
// the stream. Tests that use Emit take over event production entirely.
func (s *MockStream) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripted = true
	if s.closed {
		return
	}
	s.events <- ev
	if ev.Final || ev.Err != nil {
		close(s.events)
		s.closed = true
	}
}

func (s *MockStream) Feed(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.cancelled || s.closed || s.scripted {
		return nil
	}
	s.words = append(s.words, fmt.Sprintf("word%d", len(s.words)+1))
	select {
	case s.events <- Event{Text: strings.Join(s.words, " "), Segments: len(s.words)}:
	default:
	}
	return nil
}

func (s *MockStream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.cancelled || s.scripted {
		s.ended = true
		return
	}
	s.ended = true
	if !s.closed {
		s.events <- Event{Text: strings.Join(s.words, " "), Segments: len(s.words), Final: true}
		close(s.events)
		s.closed = true
	}
}

func (s *MockStream) Events() <-chan Event { return s.events }

func (s *MockStream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if !s.closed {
		close(s.events)
		s.closed = true
	}
}
