package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/pacelabs/pace-core/internal/speech"
	"github.com/pacelabs/pace-core/internal/transcription"
)

const importedArtifactName = "imported.wav"

// importChunkBytes is the feed granularity for whole-file transcription.
const importChunkBytes = 64 * 1024

// Import copies an externally supplied WAV file to a private location and
// runs it through the speech engine in whole-file mode, producing a completed
// session that can be analyzed and saved like a live capture. Files over the
// configured size cap are rejected with no side effects.
func (e *Engine) Import(ctx context.Context, sourcePath string) error {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.phase != PhaseIdle || e.playing {
		e.mu.Unlock()
		return fmt.Errorf("%w: import requires an idle engine", ErrInvalidState)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("import source: %w", err)
	}
	if info.Size() > e.engCfg.MaxImportBytes {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrImportTooLarge, info.Size(), e.engCfg.MaxImportBytes)
	}
	e.busy = true
	e.mu.Unlock()

	sess, err := e.runImport(ctx, sourcePath)

	e.mu.Lock()
	e.busy = false
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.sess = sess
		e.lastErr = ""
	}
	e.publishLocked()
	e.mu.Unlock()
	return err
}

func (e *Engine) runImport(ctx context.Context, sourcePath string) (*session, error) {
	dest := filepath.Join(e.capCfg.ArtifactDir, importedArtifactName)
	if err := copyFile(sourcePath, dest); err != nil {
		return nil, fmt.Errorf("copy import source: %w", err)
	}

	pcm, sampleRate, channels, duration, err := decodeWAV(dest)
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}

	stream, err := e.speech.Open(ctx, speech.Config{
		SampleRate: sampleRate,
		Channels:   channels,
		Language:   e.engCfg.Language,
	})
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	ts := transcription.New(stream)

	for off := 0; off < len(pcm); off += importChunkBytes {
		end := off + importChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := ts.Feed(pcm[off:end]); err != nil {
			break
		}
	}
	ts.End()

	deadline := time.NewTimer(45 * time.Second)
	defer deadline.Stop()
	var surfaced error
	for {
		select {
		case ev, ok := <-ts.Events():
			if !ok {
				goto done
			}
			up := ts.Apply(ev)
			if up.Err != nil {
				surfaced = up.Err
			}
			if up.Degraded {
				e.log.Warn("engine error during import, keeping partial transcript")
			}
		case <-deadline.C:
			e.log.Warn("import transcription timed out, keeping partial transcript")
			ts.Cancel()
			goto done
		case <-ctx.Done():
			ts.Cancel()
			os.Remove(dest)
			return nil, ctx.Err()
		}
	}
done:
	if surfaced != nil && ts.Transcript() == "" {
		os.Remove(dest)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, surfaced)
	}

	now := e.clock()
	sess := &session{
		id:           uuid.NewString(),
		startedAt:    now.Add(-duration),
		endedAt:      now,
		transcript:   ts.Transcript(),
		words:        ts.Words(),
		artifactPath: dest,
		duration:     duration,
		completed:    true,
	}
	e.log.Info("import transcribed",
		slog.String("session", sess.id),
		slog.Int("words", sess.words),
		slog.Duration("duration", duration))
	return sess, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// decodeWAV loads a whole artifact as little-endian PCM bytes.
func decodeWAV(path string) (pcm []byte, sampleRate, channels int, duration time.Duration, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("decode wav: %w", err)
	}
	sampleRate = int(dec.SampleRate)
	channels = int(dec.NumChans)
	if sampleRate <= 0 || channels <= 0 {
		return nil, 0, 0, 0, fmt.Errorf("invalid wav format")
	}

	pcm = make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	frames := len(buf.Data) / channels
	duration = time.Duration(frames) * time.Second / time.Duration(sampleRate)
	return pcm, sampleRate, channels, duration, nil
}
