package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittoca/internal/bytesize"
	"github.com/marmos91/dittoca/internal/telemetry"
	"github.com/marmos91/dittoca/pkg/api"
	"github.com/marmos91/dittoca/pkg/cas"
)

// DefaultAutosaveGCInterval is the value log GC period of the autosave
// store.
const DefaultAutosaveGCInterval = 10 * time.Minute

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", nil) are replaced with defaults; explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyAPIDefaults(&cfg.API)
	applyServerDefaults(&cfg.Server)
	applyAutosaveDefaults(&cfg.Autosave)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = append([]string(nil), telemetry.DefaultProfileTypes...)
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyAPIDefaults sets status API server defaults.
func applyAPIDefaults(cfg *api.APIConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// applyServerDefaults fills the Channel Access settings from the EPICS
// defaults.
func applyServerDefaults(cfg *ServerConfig) {
	d := cas.DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = d.Port
	}
	if cfg.BeaconPort == 0 {
		cfg.BeaconPort = d.BeaconPort
	}
	if cfg.BeaconMinPeriod == 0 {
		cfg.BeaconMinPeriod = d.BeaconMinPeriod
	}
	if cfg.BeaconPeriod == 0 {
		cfg.BeaconPeriod = d.BeaconPeriod
	}
	if cfg.AnomalyInterval == 0 {
		cfg.AnomalyInterval = d.AnomalyInterval
	}
	if cfg.InterfaceCheck == 0 {
		cfg.InterfaceCheck = d.InterfaceCheck
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = bytesize.ByteSize(d.BufferSize)
	}
	if cfg.MaxArrayBytes == 0 {
		cfg.MaxArrayBytes = bytesize.ByteSize(d.MaxArrayBytes)
	}
	if cfg.MaxEventQueue == 0 {
		cfg.MaxEventQueue = d.MaxEventQueue
	}
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = d.StallTimeout
	}
	if cfg.MinMinorVersion == 0 {
		cfg.MinMinorVersion = d.MinMinorVersion
	}
}

func applyAutosaveDefaults(cfg *AutosaveConfig) {
	if cfg.GCInterval == 0 {
		cfg.GCInterval = DefaultAutosaveGCInterval
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Autosave: AutosaveConfig{
			Path: "/tmp/dittoca-autosave",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
