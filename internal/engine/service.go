package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/pacelabs/pace-core/internal/bus"
	"github.com/pacelabs/pace-core/internal/catalog"
	"github.com/pacelabs/pace-core/internal/protocol"
)

// Service exposes the engine over the bus: commands arrive on
// pace.cmd.<op> request/reply subjects, state snapshots and transcripts are
// broadcast as they change.
type Service struct {
	engine *Engine
	bus    *bus.Client
	logger *slog.Logger
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	prev Snapshot

	sessionsStarted metric.Int64Counter
	sessionsDone    metric.Int64Counter
	stallsRaised    metric.Int64Counter
	savesTotal      metric.Int64Counter
	importsTotal    metric.Int64Counter
}

func NewService(parent context.Context, eng *Engine, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		engine: eng,
		bus:    busClient,
		logger: log.With(slog.String("component", "engine-service")),
		ctx:    ctx,
		cancel: cancel,
	}

	meter := otel.GetMeterProvider().Meter("pace-core/engine")
	s.sessionsStarted, _ = meter.Int64Counter("pace.sessions.started")
	s.sessionsDone, _ = meter.Int64Counter("pace.sessions.finalized")
	s.stallsRaised, _ = meter.Int64Counter("pace.stalls.raised")
	s.savesTotal, _ = meter.Int64Counter("pace.recordings.saved")
	s.importsTotal, _ = meter.Int64Counter("pace.recordings.imported")
	return s
}

func (s *Service) Start() error {
	s.engine.SetOnChange(s.onChange)

	sub, err := s.bus.Conn().Subscribe(protocol.SubjectCommandPrefix+".>", s.handleCommand)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

// onChange publishes the snapshot and derives transcript broadcasts and
// metrics from the transition. It runs under the engine lock, so it must not
// call back into the engine.
func (s *Service) onChange(snap Snapshot) {
	s.mu.Lock()
	prev := s.prev
	s.prev = snap
	s.mu.Unlock()

	if snap.Phase == PhaseRecording && prev.Phase == PhaseIdle {
		s.sessionsStarted.Add(s.ctx, 1)
	}
	if snap.CanAnalyze && !prev.CanAnalyze {
		s.sessionsDone.Add(s.ctx, 1)
	}
	if snap.UnclearSpeech && !prev.UnclearSpeech {
		s.stallsRaised.Add(s.ctx, 1)
	}

	s.publish(protocol.SubjectState, s.stateMessage(snap))
	if snap.Transcript != prev.Transcript || (snap.CanAnalyze && !prev.CanAnalyze) {
		s.publish(s.transcriptSubject(snap), protocol.Transcript{
			Text:      snap.Transcript,
			Words:     snap.WordCount,
			Partial:   snap.Phase != PhaseIdle,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (s *Service) transcriptSubject(snap Snapshot) string {
	if snap.Phase == PhaseIdle && snap.CanAnalyze {
		return protocol.SubjectTranscriptFinal
	}
	return protocol.SubjectTranscriptPartial
}

func (s *Service) handleCommand(msg *nats.Msg) {
	op := strings.TrimPrefix(msg.Subject, protocol.SubjectCommandPrefix+".")

	var cmd protocol.Command
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			s.respond(msg, protocol.CommandReply{OK: false, Error: "malformed command payload"})
			return
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, 60*time.Second)
		defer cancel()
		s.respond(msg, s.dispatch(ctx, op, cmd))
	}()
}

func (s *Service) dispatch(ctx context.Context, op string, cmd protocol.Command) protocol.CommandReply {
	var (
		reply protocol.CommandReply
		err   error
	)
	switch op {
	case protocol.CmdStart:
		err = s.engine.Start(ctx)
	case protocol.CmdStop:
		err = s.engine.Stop()
	case protocol.CmdAnalyze:
		_, err = s.engine.Analyze()
	case protocol.CmdSave:
		var m catalog.Metadata
		m, err = s.engine.Save(ctx, cmd.Name)
		if err == nil {
			reply.Recording = &m
			s.savesTotal.Add(s.ctx, 1)
		}
	case protocol.CmdDelete:
		err = s.engine.Delete(ctx, cmd.ID)
	case protocol.CmdPlay:
		err = s.engine.Play(ctx)
	case protocol.CmdStopPlayback:
		s.engine.StopPlayback()
	case protocol.CmdImport:
		err = s.engine.Import(ctx, cmd.Path)
		if err == nil {
			s.importsTotal.Add(s.ctx, 1)
		}
	case protocol.CmdExport:
		reply.Path, err = s.engine.Export(ctx, cmd.ID, cmd.Dir)
	case protocol.CmdLoad:
		err = s.engine.LoadCatalog(ctx)
		if err == nil {
			reply.Recordings = s.engine.Catalog().Recordings()
		}
	default:
		reply.Error = "unknown command: " + op
		state := s.stateMessage(s.engine.State())
		reply.State = &state
		return reply
	}

	if err != nil {
		reply.Error = err.Error()
		s.logger.Warn("command failed", slog.String("op", op), slog.String("error", err.Error()))
	} else {
		reply.OK = true
	}
	state := s.stateMessage(s.engine.State())
	reply.State = &state
	return reply
}

func (s *Service) stateMessage(snap Snapshot) protocol.EngineState {
	return protocol.EngineState{
		Phase:             string(snap.Phase),
		Transcript:        snap.Transcript,
		WordCount:         snap.WordCount,
		WordsPerMinute:    snap.WordsPerMinute,
		SpeechSpeed:       string(snap.Speed),
		UnclearSpeech:     snap.UnclearSpeech,
		CanAnalyze:        snap.CanAnalyze,
		PlaybackAvailable: snap.PlaybackAvailable,
		Playing:           snap.Playing,
		LastError:         snap.LastError,
		Timestamp:         time.Now().UTC(),
	}
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal bus message", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish bus message",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

func (s *Service) respond(msg *nats.Msg, reply protocol.CommandReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slog.String("error", err.Error()))
		return
	}
	_ = msg.Respond(data)
}
