// Package engine owns the recording session lifecycle: it coordinates audio
// capture with the streaming speech engine, derives speaking-rate metrics
// from partial transcripts, and drives save/playback/import of the resulting
// artifact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pacelabs/pace-core/internal/blob"
	"github.com/pacelabs/pace-core/internal/capture"
	"github.com/pacelabs/pace-core/internal/catalog"
	"github.com/pacelabs/pace-core/internal/config"
	"github.com/pacelabs/pace-core/internal/playback"
	"github.com/pacelabs/pace-core/internal/rate"
	"github.com/pacelabs/pace-core/internal/speech"
	"github.com/pacelabs/pace-core/internal/stall"
	"github.com/pacelabs/pace-core/internal/transcription"
)

// Phase is the engine's lifecycle state. Playback is an orthogonal substate
// available only from idle once an artifact exists.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseFinalizing Phase = "finalizing"
)

const artifactName = "session.wav"

// Snapshot is the published read-only view of the engine.
type Snapshot struct {
	Phase             Phase
	Transcript        string
	WordCount         int
	WordsPerMinute    int
	Speed             rate.Category
	UnclearSpeech     bool
	CanAnalyze        bool
	PlaybackAvailable bool
	Playing           bool
	LastError         string
}

// Summary is the result of analyzing a completed session.
type Summary struct {
	WordsPerMinute int
	Speed          rate.Category
	WordCount      int
	Duration       time.Duration
	Transcript     string
}

// session is the transient state of one capture, owned by the engine.
type session struct {
	id           string
	startedAt    time.Time
	endedAt      time.Time
	transcript   string
	words        int
	unclear      bool
	artifactPath string
	duration     time.Duration
	completed    bool
	analyzed     bool
	wpm          int
	speed        rate.Category

	cap   *capture.Session
	ts    *transcription.Session
	stall *stall.Detector
	grace *time.Timer
}

// Engine is the recording state machine. All published state lives behind one
// mutex; commands return quickly and completion is observed through the
// change callback.
type Engine struct {
	capCfg config.CaptureConfig
	engCfg config.EngineConfig
	owner  string

	source  capture.Source
	speech  speech.Engine
	player  playback.Player
	catalog *catalog.Catalog
	blobs   blob.Store
	log     *slog.Logger
	clock   func() time.Time

	mu       sync.Mutex
	phase    Phase
	sess     *session
	playing  bool
	busy     bool
	lastErr  string
	closed   bool
	onChange func(Snapshot)
	wg       sync.WaitGroup
}

// New builds an engine and probes the speech engine once so unusable
// deployments fail at startup rather than on the first recording.
func New(capCfg config.CaptureConfig, engCfg config.EngineConfig, owner string,
	source capture.Source, eng speech.Engine, player playback.Player,
	cat *catalog.Catalog, blobs blob.Store, log *slog.Logger) (*Engine, error) {

	if !eng.Available() {
		return nil, ErrEngineUnavailable
	}
	if player == nil {
		player = playback.NoopPlayer{}
	}
	return &Engine{
		capCfg:  capCfg,
		engCfg:  engCfg,
		owner:   owner,
		source:  source,
		speech:  eng,
		player:  player,
		catalog: cat,
		blobs:   blobs,
		log:     log.With(slog.String("component", "engine")),
		clock:   time.Now,
		phase:   PhaseIdle,
	}, nil
}

// SetOnChange registers the snapshot callback. The callback runs with engine
// state frozen and must not call back into the engine.
func (e *Engine) SetOnChange(fn func(Snapshot)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// State returns the current snapshot.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Catalog exposes the recording catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Start opens the capture device and a speech stream together and moves to
// recording. On partial failure both are torn down and the engine stays idle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrInvalidState
	}
	if e.playing {
		return fmt.Errorf("%w: playback active", ErrInvalidState)
	}
	if e.busy {
		return ErrBusy
	}
	if e.phase != PhaseIdle {
		return ErrAlreadyRecording
	}

	capCfg := capture.Config{
		SampleRate:      e.capCfg.SampleRate,
		Channels:        e.capCfg.Channels,
		FramesPerBuffer: e.capCfg.SampleRate * e.capCfg.FrameDurationMS / 1000,
		ArtifactPath:    filepath.Join(e.capCfg.ArtifactDir, artifactName),
	}
	cs, err := capture.Start(capCfg, e.source, e.log)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrAlreadyRecording):
			err = fmt.Errorf("%w: device held by another session", ErrAlreadyRecording)
		case errors.Is(err, capture.ErrDeviceUnavailable):
			err = fmt.Errorf("%w: %v", ErrNotPermittedToRecord, err)
		default:
			err = fmt.Errorf("%w: %v", ErrCaptureDevice, err)
		}
		e.failLocked(err)
		return err
	}

	stream, err := e.speech.Open(ctx, speech.Config{
		SampleRate: e.capCfg.SampleRate,
		Channels:   e.capCfg.Channels,
		Language:   e.engCfg.Language,
	})
	if err != nil {
		_ = cs.Stop()
		if errors.Is(err, speech.ErrNotAuthorized) {
			err = fmt.Errorf("%w: %v", ErrNotAuthorizedToRecognize, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		e.failLocked(err)
		return err
	}

	sess := &session{
		id:           uuid.NewString(),
		startedAt:    e.clock(),
		artifactPath: capCfg.ArtifactPath,
		cap:          cs,
		ts:           transcription.New(stream),
		stall:        stall.New(e.clock),
	}
	e.sess = sess
	e.phase = PhaseRecording
	e.lastErr = ""

	e.wg.Add(2)
	go e.pumpFrames(sess)
	go e.pumpEvents(sess)

	e.log.Info("recording started", slog.String("session", sess.id))
	e.publishLocked()
	return nil
}

// pumpFrames feeds captured audio into the speech stream until the capture
// channel closes, then signals end of input.
func (e *Engine) pumpFrames(sess *session) {
	defer e.wg.Done()
	for pcm := range sess.cap.Frames() {
		_ = sess.ts.Feed(pcm)
	}
	sess.ts.End()
}

func (e *Engine) pumpEvents(sess *session) {
	defer e.wg.Done()
	for ev := range sess.ts.Events() {
		e.handleEvent(sess, ev)
	}
}

// handleEvent applies one engine event: transcript replacement, stall
// detection, and engine-driven finalization on the terminal event.
func (e *Engine) handleEvent(sess *session, ev speech.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != sess || sess.completed {
		return
	}

	up := sess.ts.Apply(ev)
	if up.Err != nil {
		err := fmt.Errorf("%w: %v", ErrTranscriptionFailed, up.Err)
		e.log.Error("recognition failed before any transcript", slog.String("error", up.Err.Error()))
		e.abortLocked(sess, err)
		e.publishLocked()
		return
	}
	if up.Degraded {
		e.log.Warn("engine error after partial transcript, keeping partial data",
			slog.String("session", sess.id))
	}

	sess.transcript = up.Transcript
	if up.Grew {
		sess.words = up.WordCount
		sess.stall.Growth()
	} else if e.phase == PhaseRecording {
		threshold := time.Duration(e.engCfg.StallThresholdMS) * time.Millisecond
		if sess.stall.CheckStalled(threshold) {
			sess.unclear = true
			e.log.Warn("no transcript growth, speech unclear", slog.String("session", sess.id))
		}
	}

	if ev.Final {
		e.finalizeLocked(sess)
	}
	e.publishLocked()
}

// Stop signals finalization immediately, releases the device, and ends the
// engine's input. Completion arrives with the engine's terminal event or,
// failing that, when the grace period expires.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseRecording {
		return ErrNotRecording
	}
	sess := e.sess
	e.phase = PhaseFinalizing
	sess.endedAt = e.clock()
	e.publishLocked()

	_ = sess.cap.Stop()
	sess.ts.End()

	grace := time.Duration(e.engCfg.FinalizeGraceMS) * time.Millisecond
	sess.grace = time.AfterFunc(grace, func() { e.onGraceExpired(sess) })
	return nil
}

// onGraceExpired cancels a session whose engine never produced a terminal
// event, keeping whatever transcript existed at cancellation time.
func (e *Engine) onGraceExpired(sess *session) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != sess || e.phase != PhaseFinalizing || sess.completed {
		return
	}
	e.log.Warn("no terminal event before grace period, cancelling recognition",
		slog.String("session", sess.id))
	sess.ts.Cancel()
	e.finalizeLocked(sess)
	e.publishLocked()
}

// finalizeLocked completes the session: device released, artifact flushed,
// engine back to idle with an analyzable session.
func (e *Engine) finalizeLocked(sess *session) {
	if sess.grace != nil {
		sess.grace.Stop()
		sess.grace = nil
	}
	_ = sess.cap.Stop()
	sess.duration = sess.cap.Duration()
	if sess.endedAt.IsZero() {
		sess.endedAt = e.clock()
	}
	sess.completed = true
	e.phase = PhaseIdle
	e.log.Info("recording finalized",
		slog.String("session", sess.id),
		slog.Int("words", sess.words),
		slog.Duration("duration", sess.duration))
}

// abortLocked tears the active session down after an unrecoverable error.
func (e *Engine) abortLocked(sess *session, err error) {
	if sess.grace != nil {
		sess.grace.Stop()
		sess.grace = nil
	}
	sess.ts.Cancel()
	_ = sess.cap.Stop()
	e.sess = nil
	e.phase = PhaseIdle
	e.lastErr = err.Error()
}

// failLocked records a command failure without touching any active session.
func (e *Engine) failLocked(err error) {
	e.lastErr = err.Error()
	e.publishLocked()
}

// Analyze computes the final words-per-minute and speed category for the
// completed session using total elapsed wall time and final word count.
func (e *Engine) Analyze() (Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle || e.sess == nil || !e.sess.completed {
		return Summary{}, ErrNoSession
	}
	sess := e.sess
	e.analyzeLocked(sess)
	e.publishLocked()
	return Summary{
		WordsPerMinute: sess.wpm,
		Speed:          sess.speed,
		WordCount:      sess.words,
		Duration:       sess.duration,
		Transcript:     sess.transcript,
	}, nil
}

func (e *Engine) analyzeLocked(sess *session) {
	elapsed := sess.endedAt.Sub(sess.startedAt)
	if elapsed <= 0 {
		sess.wpm = 0
		sess.speed = rate.Unclear
	} else {
		sess.wpm = rate.ComputeWPM(sess.words, elapsed)
		sess.speed = rate.Classify(sess.wpm)
	}
	sess.analyzed = true
}

// Save uploads the session artifact and persists its metadata through the
// catalog. Upload success with a failed metadata write leaves an orphaned
// blob, which is reported rather than rolled back.
func (e *Engine) Save(ctx context.Context, name string) (catalog.Metadata, error) {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return catalog.Metadata{}, ErrBusy
	}
	if e.phase != PhaseIdle || e.sess == nil || !e.sess.completed {
		e.mu.Unlock()
		return catalog.Metadata{}, ErrNoSession
	}
	sess := e.sess
	if !sess.analyzed {
		e.analyzeLocked(sess)
	}
	e.busy = true
	artifact := sess.artifactPath
	meta := catalog.Metadata{
		ID:             uuid.NewString(),
		Name:           name,
		Timestamp:      e.clock(),
		Duration:       sess.duration.Seconds(),
		WordsPerMinute: sess.wpm,
		SpeechSpeed:    sess.speed,
		Transcript:     sess.transcript,
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.publishLocked()
		e.mu.Unlock()
	}()

	key := fmt.Sprintf("recordings/%s/%s.wav", e.owner, meta.ID)
	uri, err := e.blobs.Upload(ctx, artifact, key)
	if err != nil {
		return catalog.Metadata{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	meta.StorageURI = uri

	if err := e.catalog.Append(ctx, meta); err != nil {
		e.log.Warn("metadata write failed after upload, blob orphaned",
			slog.String("key", key),
			slog.String("uri", uri),
			slog.String("error", err.Error()))
		return catalog.Metadata{}, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}
	e.log.Info("recording saved", slog.String("id", meta.ID), slog.String("name", name))
	return meta, nil
}

// Play starts playback of the last capture's local artifact.
func (e *Engine) Play(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle {
		return fmt.Errorf("%w: cannot play while %s", ErrInvalidState, e.phase)
	}
	if e.sess == nil || !e.sess.completed {
		return ErrNoSession
	}
	if e.playing {
		return nil
	}
	err := e.player.Play(ctx, e.sess.artifactPath, func(playErr error) {
		e.mu.Lock()
		e.playing = false
		if playErr != nil && !errors.Is(playErr, context.Canceled) {
			e.lastErr = playErr.Error()
			e.log.Warn("playback ended with error", slog.String("error", playErr.Error()))
		}
		e.publishLocked()
		e.mu.Unlock()
	})
	if err != nil {
		e.failLocked(err)
		return err
	}
	e.playing = true
	e.publishLocked()
	return nil
}

// StopPlayback halts the active playback, if any.
func (e *Engine) StopPlayback() {
	e.mu.Lock()
	playing := e.playing
	e.mu.Unlock()
	if playing {
		e.player.Stop()
	}
}

// Delete removes a saved recording through the catalog.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.catalog.Remove(ctx, id)
}

// LoadCatalog refreshes the catalog cache from the metadata store.
func (e *Engine) LoadCatalog(ctx context.Context) error {
	return e.catalog.Load(ctx)
}

// Export fetches a saved recording's artifact into destDir and returns the
// local path.
func (e *Engine) Export(ctx context.Context, id, destDir string) (string, error) {
	m, ok := e.catalog.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	data, err := e.blobs.Download(ctx, m.StorageURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	if destDir == "" {
		destDir = e.capCfg.ArtifactDir
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	path := filepath.Join(destDir, m.ID+".wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return path, nil
}

// Close synchronously cancels any active session and releases the device.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	if e.sess != nil && !e.sess.completed {
		if e.sess.grace != nil {
			e.sess.grace.Stop()
			e.sess.grace = nil
		}
		e.sess.ts.Cancel()
		_ = e.sess.cap.Stop()
		e.sess.completed = true
		e.phase = PhaseIdle
	}
	playing := e.playing
	e.mu.Unlock()

	if playing {
		e.player.Stop()
	}
	e.wg.Wait()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:     e.phase,
		Playing:   e.playing,
		LastError: e.lastErr,
	}
	if s := e.sess; s != nil {
		snap.Transcript = s.transcript
		snap.WordCount = s.words
		snap.UnclearSpeech = s.unclear
		snap.CanAnalyze = s.completed && e.phase == PhaseIdle
		snap.PlaybackAvailable = s.completed && s.artifactPath != ""
		if s.analyzed {
			snap.WordsPerMinute = s.wpm
			snap.Speed = s.speed
		}
	}
	return snap
}

func (e *Engine) publishLocked() {
	if e.onChange != nil {
		e.onChange(e.snapshotLocked())
	}
}
