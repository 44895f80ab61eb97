package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type CaptureConfig struct {
	Device          string `yaml:"device"` // portaudio, synthetic
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FrameDurationMS int    `yaml:"frame_duration_ms"`
	ArtifactDir     string `yaml:"artifact_dir"`
}

type EngineConfig struct {
	Mode             string `yaml:"mode"` // mock, exec
	Command          string `yaml:"command"`
	ModelPath        string `yaml:"model_path"`
	Language         string `yaml:"language"`
	PartialEveryMS   int    `yaml:"partial_every_ms"`
	StallThresholdMS int    `yaml:"stall_threshold_ms"`
	FinalizeGraceMS  int    `yaml:"finalize_grace_ms"`
	MaxImportBytes   int64  `yaml:"max_import_bytes"`
	Playback         string `yaml:"playback"` // portaudio, none
}

type CatalogConfig struct {
	Path    string `yaml:"path"`
	OwnerID string `yaml:"owner_id"`
}

type StorageConfig struct {
	Mode   string `yaml:"mode"` // fs, nats
	Root   string `yaml:"root"`
	Bucket string `yaml:"bucket"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Capture     CaptureConfig   `yaml:"capture"`
	Engine      EngineConfig    `yaml:"engine"`
	Catalog     CatalogConfig   `yaml:"catalog"`
	Storage     StorageConfig   `yaml:"storage"`
}

func Default() Config {
	return Config{
		RuntimeName: "pace-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Capture: CaptureConfig{
			Device:          "portaudio",
			SampleRate:      44100,
			Channels:        2,
			FrameDurationMS: 20,
			ArtifactDir:     "./data/artifacts",
		},
		Engine: EngineConfig{
			Mode:             "mock",
			PartialEveryMS:   800,
			StallThresholdMS: 3000,
			FinalizeGraceMS:  1500,
			MaxImportBytes:   10 << 20,
			Playback:         "portaudio",
		},
		Catalog: CatalogConfig{
			Path:    "./data/pace-catalog.db",
			OwnerID: "default",
		},
		Storage: StorageConfig{
			Mode:   "fs",
			Root:   "./data/blobs",
			Bucket: "pace-recordings",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "PACE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "PACE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "PACE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "PACE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "PACE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "PACE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "PACE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "PACE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "PACE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "PACE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "PACE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "PACE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "PACE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "PACE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "PACE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "PACE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Capture.Device, "PACE_CAPTURE_DEVICE")
	overrideInt(&cfg.Capture.SampleRate, "PACE_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "PACE_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "PACE_CAPTURE_FRAME_DURATION_MS")
	overrideString(&cfg.Capture.ArtifactDir, "PACE_CAPTURE_ARTIFACT_DIR")
	overrideString(&cfg.Engine.Mode, "PACE_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "PACE_ENGINE_COMMAND")
	overrideString(&cfg.Engine.ModelPath, "PACE_ENGINE_MODEL_PATH")
	overrideString(&cfg.Engine.Language, "PACE_ENGINE_LANGUAGE")
	overrideInt(&cfg.Engine.PartialEveryMS, "PACE_ENGINE_PARTIAL_EVERY_MS")
	overrideInt(&cfg.Engine.StallThresholdMS, "PACE_ENGINE_STALL_THRESHOLD_MS")
	overrideInt(&cfg.Engine.FinalizeGraceMS, "PACE_ENGINE_FINALIZE_GRACE_MS")
	overrideInt64(&cfg.Engine.MaxImportBytes, "PACE_ENGINE_MAX_IMPORT_BYTES")
	overrideString(&cfg.Engine.Playback, "PACE_ENGINE_PLAYBACK")
	overrideString(&cfg.Catalog.Path, "PACE_CATALOG_PATH")
	overrideString(&cfg.Catalog.OwnerID, "PACE_CATALOG_OWNER_ID")
	overrideString(&cfg.Storage.Mode, "PACE_STORAGE_MODE")
	overrideString(&cfg.Storage.Root, "PACE_STORAGE_ROOT")
	overrideString(&cfg.Storage.Bucket, "PACE_STORAGE_BUCKET")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideInt64(target *int64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Capture.Device {
	case "portaudio", "synthetic":
	default:
		return errors.New("capture.device must be one of portaudio|synthetic")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Capture.ArtifactDir == "" {
		return errors.New("capture.artifact_dir must not be empty")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.StallThresholdMS <= 0 {
		return errors.New("engine.stall_threshold_ms must be positive")
	}
	if cfg.Engine.FinalizeGraceMS <= 0 {
		return errors.New("engine.finalize_grace_ms must be positive")
	}
	if cfg.Engine.MaxImportBytes <= 0 {
		return errors.New("engine.max_import_bytes must be positive")
	}
	switch cfg.Engine.Playback {
	case "portaudio", "none":
	default:
		return errors.New("engine.playback must be one of portaudio|none")
	}
	if cfg.Catalog.Path == "" {
		return errors.New("catalog.path must not be empty")
	}
	if cfg.Catalog.OwnerID == "" {
		return errors.New("catalog.owner_id must not be empty")
	}
	switch cfg.Storage.Mode {
	case "fs":
		if cfg.Storage.Root == "" {
			return errors.New("storage.root must not be empty when mode=fs")
		}
	case "nats":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must not be empty when mode=nats")
		}
	default:
		return errors.New("storage.mode must be one of fs|nats")
	}
	return nil
}
