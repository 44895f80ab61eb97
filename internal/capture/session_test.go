package capture

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 320,
		ArtifactPath:    filepath.Join(t.TempDir(), "session.wav"),
	}
}

func TestCaptureWritesArtifactAndDeliversFrames(t *testing.T) {
	cfg := testConfig(t)
	src := &SyntheticSource{Unpaced: true, MaxFrames: 10}

	s, err := Start(cfg, src, newLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}

	var frames int
	for pcm := range s.Frames() {
		if len(pcm) != cfg.FramesPerBuffer*cfg.Channels*2 {
			t.Fatalf("unexpected frame size %d", len(pcm))
		}
		frames++
	}
	if frames == 0 {
		t.Fatal("no frames delivered")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	wantDur := time.Duration(10*cfg.FramesPerBuffer) * time.Second / time.Duration(cfg.SampleRate)
	if s.Duration() != wantDur {
		t.Fatalf("duration = %v, want %v", s.Duration(), wantDur)
	}

	file, err := os.Open(cfg.ArtifactPath)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer file.Close()
	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if int(dec.SampleRate) != cfg.SampleRate {
		t.Fatalf("artifact sample rate %d, want %d", dec.SampleRate, cfg.SampleRate)
	}
	if len(buf.Data) != 10*cfg.FramesPerBuffer {
		t.Fatalf("artifact has %d samples, want %d", len(buf.Data), 10*cfg.FramesPerBuffer)
	}
}

func TestSecondCaptureRejected(t *testing.T) {
	cfg := testConfig(t)
	// Paced source so the capture loop idles instead of spinning.
	src := &SyntheticSource{MaxFrames: 100000}

	s, err := Start(cfg, src, newLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	defer s.Stop()

	cfg2 := testConfig(t)
	if _, err := Start(cfg2, NewSyntheticSource(), newLogger()); err != ErrAlreadyRecording {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The device is free again after stop.
	s2, err := Start(cfg2, &SyntheticSource{Unpaced: true, MaxFrames: 1}, newLogger())
	if err != nil {
		t.Fatalf("restart capture: %v", err)
	}
	for range s2.Frames() {
	}
	if err := s2.Stop(); err != nil {
		t.Fatalf("stop second capture: %v", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	s, err := Start(cfg, &SyntheticSource{Unpaced: true, MaxFrames: 2}, newLogger())
	if err != nil {
		t.Fatalf("start capture: %v", err)
	}
	for range s.Frames() {
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
