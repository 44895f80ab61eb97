package capture

import (
	"io"
	"math"
	"sync"
	"time"
)

// SyntheticSource generates a sine tone without touching hardware. It paces
// frame delivery to the configured frame duration unless Unpaced is set,
// which tests use to avoid real sleeps.
type SyntheticSource struct {
	// Unpaced disables real-time pacing of ReadFrame.
	Unpaced bool
	// MaxFrames stops the source after this many frames when > 0.
	MaxFrames int

	mu      sync.Mutex
	cfg     Config
	frames  int
	phase   float64
	stopped bool
	done    chan struct{}
}

func NewSyntheticSource() *SyntheticSource { return &SyntheticSource{} }

func (s *SyntheticSource) Start(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.frames = 0
	s.phase = 0
	s.stopped = false
	s.done = make(chan struct{})
	return nil
}

func (s *SyntheticSource) ReadFrame() ([]int16, error) {
	s.mu.Lock()
	if s.stopped || (s.MaxFrames > 0 && s.frames >= s.MaxFrames) {
		s.mu.Unlock()
		return nil, io.EOF
	}
	cfg := s.cfg
	done := s.done
	s.frames++
	frame := make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	step := 2 * math.Pi * 440 / float64(cfg.SampleRate)
	for i := 0; i < cfg.FramesPerBuffer; i++ {
		sample := int16(3000 * math.Sin(s.phase))
		s.phase += step
		for c := 0; c < cfg.Channels; c++ {
			frame[i*cfg.Channels+c] = sample
		}
	}
	s.mu.Unlock()

	if !s.Unpaced {
		wait := time.Duration(cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate)
		select {
		case <-done:
			return nil, io.EOF
		case <-time.After(wait):
		}
	}
	return frame, nil
}

func (s *SyntheticSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	return nil
}
