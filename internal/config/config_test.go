package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.SampleRate != 44100 || cfg.Capture.Channels != 2 {
		t.Fatalf("unexpected capture defaults: %+v", cfg.Capture)
	}
	if cfg.Engine.StallThresholdMS != 3000 {
		t.Fatalf("expected stall threshold 3000, got %d", cfg.Engine.StallThresholdMS)
	}
	if cfg.Engine.FinalizeGraceMS != 1500 {
		t.Fatalf("expected finalize grace 1500, got %d", cfg.Engine.FinalizeGraceMS)
	}
	if cfg.Engine.MaxImportBytes != 10<<20 {
		t.Fatalf("expected 10MiB import cap, got %d", cfg.Engine.MaxImportBytes)
	}
	if cfg.Catalog.OwnerID != "default" {
		t.Fatalf("expected default owner, got %q", cfg.Catalog.OwnerID)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PACE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("PACE_BUS_USERNAME", "alice")
	t.Setenv("PACE_BUS_TLS_INSECURE", "true")
	t.Setenv("PACE_CAPTURE_DEVICE", "synthetic")
	t.Setenv("PACE_CAPTURE_SAMPLE_RATE", "16000")
	t.Setenv("PACE_ENGINE_MODE", "exec")
	t.Setenv("PACE_ENGINE_COMMAND", "whisper-cli --format json")
	t.Setenv("PACE_ENGINE_STALL_THRESHOLD_MS", "5000")
	t.Setenv("PACE_ENGINE_MAX_IMPORT_BYTES", "1048576")
	t.Setenv("PACE_CATALOG_OWNER_ID", "tester")
	t.Setenv("PACE_STORAGE_MODE", "nats")
	t.Setenv("PACE_STORAGE_BUCKET", "takes")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || !cfg.Bus.TLSInsecure {
		t.Fatal("expected bus credential overrides")
	}
	if cfg.Capture.Device != "synthetic" || cfg.Capture.SampleRate != 16000 {
		t.Fatalf("expected capture overrides, got %+v", cfg.Capture)
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "whisper-cli --format json" {
		t.Fatalf("expected engine overrides, got %+v", cfg.Engine)
	}
	if cfg.Engine.StallThresholdMS != 5000 {
		t.Fatalf("expected stall threshold override, got %d", cfg.Engine.StallThresholdMS)
	}
	if cfg.Engine.MaxImportBytes != 1048576 {
		t.Fatalf("expected import cap override, got %d", cfg.Engine.MaxImportBytes)
	}
	if cfg.Catalog.OwnerID != "tester" {
		t.Fatalf("expected owner override, got %q", cfg.Catalog.OwnerID)
	}
	if cfg.Storage.Mode != "nats" || cfg.Storage.Bucket != "takes" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pace.yaml")
	body := []byte(`
capture:
  device: synthetic
  sample_rate: 22050
engine:
  mode: mock
  playback: none
catalog:
  owner_id: studio
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Capture.Device != "synthetic" || cfg.Capture.SampleRate != 22050 {
		t.Fatalf("yaml capture not applied: %+v", cfg.Capture)
	}
	if cfg.Engine.Playback != "none" {
		t.Fatalf("yaml playback not applied: %q", cfg.Engine.Playback)
	}
	if cfg.Catalog.OwnerID != "studio" {
		t.Fatalf("yaml owner not applied: %q", cfg.Catalog.OwnerID)
	}
	// Untouched sections keep defaults.
	if cfg.Engine.StallThresholdMS != 3000 {
		t.Fatalf("defaults lost on partial yaml: %d", cfg.Engine.StallThresholdMS)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("PACE_ENGINE_MODE", "telepathy")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown engine mode")
	}
}

func TestExecModeRequiresCommand(t *testing.T) {
	t.Setenv("PACE_ENGINE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
