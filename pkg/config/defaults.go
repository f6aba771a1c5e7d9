package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/keymint/keymint/pkg/registry"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyEngineDefaults(&cfg.Engine)
	applyKerberosDefaults(&cfg.Kerberos)
	applyDatabaseDefaults(&cfg.Database)
	applyJournalDefaults(&cfg.Journal)
	applyMetricsDefaults(&cfg.Metrics)
	cfg.API.ApplyDefaults()
	applyAdminDefaults(&cfg.Admin)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	// Default sample rate is 1.0 (sample all traces)
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	// Apply profiling defaults
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Enabled defaults to false (opt-in for profiling)

	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	// Default profile types include CPU, memory allocation, and goroutines
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyEngineDefaults sets the staging and cache directory defaults.
func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(stateDir(), "data")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(stateDir(), "cache")
	}
}

// applyKerberosDefaults sets keytab generation defaults.
// EncryptionTypes stays empty here: the provider substitutes its own
// defaults, keeping the canonical list in one place.
func applyKerberosDefaults(cfg *KerberosConfig) {
	// Realm has no default - principals must carry a realm or the
	// deployment must configure one
	_ = cfg
}

// applyDatabaseDefaults sets registry database defaults.
func applyDatabaseDefaults(cfg *registry.Config) {
	cfg.ApplyDefaults()
}

// applyJournalDefaults sets the journal directory default.
func applyJournalDefaults(cfg *JournalConfig) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(stateDir(), "journal")
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyAdminDefaults sets admin user defaults.
func applyAdminDefaults(cfg *AdminConfig) {
	// Default username is "admin"
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	// Email and PasswordHash have no defaults - they're optional or set during init
}

// stateDir returns the directory mutable state defaults live under:
// ~/.keymint, or the current directory when home cannot be determined.
func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keymint"
	}
	return filepath.Join(home, ".keymint")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Database: registry.Config{
			Type: registry.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
		Admin: AdminConfig{
			Username: "admin",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
