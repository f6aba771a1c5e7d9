package config

import (
	"strings"
	"testing"

	"github.com/keymint/keymint/pkg/registry"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_MissingDataDir(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Engine.DataDir = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing data dir")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "engine") || !strings.Contains(errStr, "datadir") {
		t.Errorf("Expected error about engine data dir, got: %v", err)
	}
}

func TestValidate_MissingJournalPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Journal.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing journal path")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "journal") || !strings.Contains(errStr, "path") {
		t.Errorf("Expected error about journal path, got: %v", err)
	}
}

func TestValidate_EmptyCacheDirAllowed(t *testing.T) {
	// An unset cache dir disables caching rather than failing validation;
	// runs needing cached material fail at run time instead.
	cfg := GetDefaultConfig()
	cfg.Engine.CacheDir = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected empty cache dir to validate, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") && !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_MetricsPortConflict(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.API.Port

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for metrics port conflicting with API port")
	}
}

func TestValidate_InvalidDatabase(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database = registry.Config{Type: "oracle"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for unsupported database type")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("Expected error mentioning database, got: %v", err)
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Validation accepts both uppercase and lowercase log levels
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize - level should remain as-is
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}

	// Normalization happens in ApplyDefaults, not Validate
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}
