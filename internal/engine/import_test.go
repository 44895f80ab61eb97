package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pacelabs/pace-core/internal/config"
	"github.com/pacelabs/pace-core/internal/playback"
	"github.com/pacelabs/pace-core/internal/speech"
)

// writeTestWAV produces a mono 16-bit sine file with the given frame count.
func writeTestWAV(t *testing.T, path string, sampleRate, frames int) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	data := make([]int, frames)
	step := 2 * math.Pi * 440 / float64(sampleRate)
	for i := range data {
		data[i] = int(int16(3000 * math.Sin(step * float64(i))))
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   data,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func TestImportTranscribesWholeFile(t *testing.T) {
	env := newTestEnv(t, speech.NewMockEngine(), playback.NoopPlayer{}, nil)

	src := filepath.Join(t.TempDir(), "voice-memo.wav")
	writeTestWAV(t, src, 16000, 8000) // half a second of audio

	if err := env.eng.Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}

	snap := env.eng.State()
	if !snap.CanAnalyze {
		t.Fatalf("imported session not analyzable: %+v", snap)
	}
	if snap.Transcript == "" || snap.WordCount == 0 {
		t.Fatalf("import produced no transcript: %+v", snap)
	}

	if _, err := os.Stat(filepath.Join(env.artDir, "imported.wav")); err != nil {
		t.Fatalf("imported artifact missing: %v", err)
	}

	sum, err := env.eng.Analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if sum.Duration != 500*time.Millisecond {
		t.Fatalf("duration = %v, want 500ms", sum.Duration)
	}
}

func TestImportRejectsOversizeFile(t *testing.T) {
	env := newTestEnv(t, speech.NewMockEngine(), playback.NoopPlayer{}, func(cfg *config.EngineConfig) {
		cfg.MaxImportBytes = 1024
	})

	src := filepath.Join(t.TempDir(), "big.wav")
	writeTestWAV(t, src, 16000, 4000) // well past the 1KiB cap

	err := env.eng.Import(context.Background(), src)
	if !errors.Is(err, ErrImportTooLarge) {
		t.Fatalf("expected ErrImportTooLarge, got %v", err)
	}

	// The rejection must leave no trace behind.
	if _, err := os.Stat(filepath.Join(env.artDir, "imported.wav")); !os.IsNotExist(err) {
		t.Fatalf("oversize import left an artifact: %v", err)
	}
	if snap := env.eng.State(); snap.CanAnalyze || snap.Phase != PhaseIdle {
		t.Fatalf("engine state disturbed: %+v", snap)
	}
}

func TestImportMissingFile(t *testing.T) {
	env := newTestEnv(t, speech.NewMockEngine(), playback.NoopPlayer{}, nil)
	if err := env.eng.Import(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestImportedSessionCanBeSaved(t *testing.T) {
	env := newTestEnv(t, speech.NewMockEngine(), playback.NoopPlayer{}, nil)

	src := filepath.Join(t.TempDir(), "memo.wav")
	writeTestWAV(t, src, 16000, 16000)

	if err := env.eng.Import(context.Background(), src); err != nil {
		t.Fatalf("import: %v", err)
	}
	meta, err := env.eng.Save(context.Background(), "Imported memo")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.Duration != 1.0 {
		t.Fatalf("duration = %v, want 1s", meta.Duration)
	}
	recs := env.catalog.Recordings()
	if len(recs) != 1 || recs[0].Name != "Imported memo" {
		t.Fatalf("imported recording not persisted: %+v", recs)
	}
}
