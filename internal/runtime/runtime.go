// Package runtime wires the recording engine, its collaborators, and the
// observability surface into one process.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pacelabs/pace-core/internal/blob"
	"github.com/pacelabs/pace-core/internal/bus"
	"github.com/pacelabs/pace-core/internal/capture"
	"github.com/pacelabs/pace-core/internal/catalog"
	"github.com/pacelabs/pace-core/internal/config"
	"github.com/pacelabs/pace-core/internal/engine"
	"github.com/pacelabs/pace-core/internal/natsserver"
	"github.com/pacelabs/pace-core/internal/playback"
	"github.com/pacelabs/pace-core/internal/speech"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	busClient *bus.Client
	service   *engine.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.busClient = busClient

	store, err := catalog.OpenSQLite(ctx, r.cfg.Catalog, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open catalog store: %w", err)
	}
	defer store.Close()

	blobs, err := r.openBlobStore(busClient)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	cat := catalog.New(store, blobs, r.cfg.Catalog.OwnerID, r.logger)
	if err := cat.Load(ctx); err != nil {
		r.logger.Warn("initial catalog load failed", slog.String("error", err.Error()))
	}

	speechEngine, err := r.openSpeechEngine()
	if err != nil {
		return fmt.Errorf("failed to open speech engine: %w", err)
	}

	eng, err := engine.New(
		r.cfg.Capture, r.cfg.Engine, r.cfg.Catalog.OwnerID,
		r.captureSource(), speechEngine, r.player(),
		cat, blobs, r.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to build recording engine: %w", err)
	}
	defer eng.Close()

	service := engine.NewService(ctx, eng, busClient, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("failed to start engine service: %w", err)
	}
	defer service.Close()
	r.service = service

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) openBlobStore(busClient *bus.Client) (blob.Store, error) {
	switch r.cfg.Storage.Mode {
	case "nats":
		return blob.NewNATSStore(busClient.JetStream(), r.cfg.Storage.Bucket)
	default:
		return blob.NewFSStore(r.cfg.Storage.Root)
	}
}

func (r *Runtime) openSpeechEngine() (speech.Engine, error) {
	switch r.cfg.Engine.Mode {
	case "exec":
		return speech.NewExecEngine(speech.ExecOptions{
			Command:        r.cfg.Engine.Command,
			ModelPath:      r.cfg.Engine.ModelPath,
			PartialEveryMS: r.cfg.Engine.PartialEveryMS,
		})
	default:
		return speech.NewMockEngine(), nil
	}
}

func (r *Runtime) captureSource() capture.Source {
	switch r.cfg.Capture.Device {
	case "synthetic":
		return capture.NewSyntheticSource()
	default:
		return capture.NewPortAudioSource()
	}
}

func (r *Runtime) player() playback.Player {
	switch r.cfg.Engine.Playback {
	case "none":
		return playback.NoopPlayer{}
	default:
		return playback.NewPortAudioPlayer()
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.service.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
