package capture

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// active enforces the one-capture-at-a-time invariant device-wide.
var active atomic.Bool

// Session is one exclusive capture of the input device. Frames are delivered
// on Frames() as interleaved little-endian PCM bytes and simultaneously
// appended to the WAV artifact at Config.ArtifactPath.
type Session struct {
	cfg Config
	src Source
	log *slog.Logger

	frames  chan []byte
	file    *os.File
	enc     *wav.Encoder
	samples int64 // sample frames written, for duration

	loopDone chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// Start opens the device and the artifact file. On any failure both are
// released and the session is not considered active.
func Start(cfg Config, src Source, log *slog.Logger) (*Session, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRecording
	}

	if dir := filepath.Dir(cfg.ArtifactPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			active.Store(false)
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	file, err := os.Create(cfg.ArtifactPath)
	if err != nil {
		active.Store(false)
		return nil, fmt.Errorf("create artifact: %w", err)
	}
	if err := src.Start(cfg); err != nil {
		file.Close()
		os.Remove(cfg.ArtifactPath)
		active.Store(false)
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		src:      src,
		log:      log.With(slog.String("component", "capture")),
		frames:   make(chan []byte, 32),
		file:     file,
		enc:      wav.NewEncoder(file, cfg.SampleRate, 16, cfg.Channels, 1),
		loopDone: make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer close(s.loopDone)
	defer close(s.frames)
	for {
		frame, err := s.src.ReadFrame()
		if err != nil {
			return
		}
		if err := s.write(frame); err != nil {
			s.log.Warn("artifact write failed", slog.String("error", err.Error()))
			return
		}
		pcm := make([]byte, len(frame)*2)
		for i, v := range frame {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
		}
		select {
		case s.frames <- pcm:
		default:
			// Consumer is behind; drop rather than stall the device.
		}
	}
}

func (s *Session) write(frame []int16) error {
	samples := make([]int, len(frame))
	for i, v := range frame {
		samples[i] = int(v)
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: s.cfg.Channels, SampleRate: s.cfg.SampleRate},
		Data:   samples,
	}
	if err := s.enc.Write(buf); err != nil {
		return err
	}
	s.samples += int64(len(frame) / s.cfg.Channels)
	return nil
}

// Frames delivers captured PCM; closed once the device stops.
func (s *Session) Frames() <-chan []byte { return s.frames }

// Path returns the artifact location.
func (s *Session) Path() string { return s.cfg.ArtifactPath }

// Duration reports audio written to the artifact so far.
func (s *Session) Duration() time.Duration {
	return time.Duration(s.samples) * time.Second / time.Duration(s.cfg.SampleRate)
}

// Stop releases the device and flushes the artifact. Safe to call more than
// once; every exit path must go through here so the device is never leaked.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		err := s.src.Stop()
		<-s.loopDone
		if cerr := s.enc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close wav encoder: %w", cerr)
		}
		if cerr := s.file.Close(); cerr != nil && err == nil {
			err = cerr
		}
		active.Store(false)
		s.stopErr = err
	})
	return s.stopErr
}
