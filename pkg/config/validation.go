package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. It caches struct metadata, so
// reusing one instance across calls is both safe and cheap.
var validate = validator.New()

// Validate checks the configuration for invalid or inconsistent values.
//
// Field-level rules are expressed as `validate` struct tags. Cross-field
// rules that tags cannot express are checked explicitly afterwards.
// Validation never mutates the configuration; normalization happens in
// ApplyDefaults.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Cross-field rules

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but no endpoint is configured")
	}

	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("profiling is enabled but no endpoint is configured")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.API.Port {
		return fmt.Errorf("metrics port %d conflicts with the API port", cfg.Metrics.Port)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}

// formatValidationError converts validator's error into a readable message
// naming the offending field and the rule it broke.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrors) == 0 {
		return err
	}

	fieldError := validationErrors[0]
	if fieldError.Param() != "" {
		return fmt.Errorf("invalid configuration: field %s failed on the '%s=%s' rule",
			fieldError.Namespace(), fieldError.Tag(), fieldError.Param())
	}
	return fmt.Errorf("invalid configuration: field %s failed on the '%s' rule",
		fieldError.Namespace(), fieldError.Tag())
}
