package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so runs can be
// correlated and queried in log aggregation.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Materialization
	// ========================================================================
	KeyRunID       = "run_id"      // Batch run identifier
	KeyPrincipal   = "principal"   // Kerberos principal name
	KeyHost        = "host"        // Target host for the keytab
	KeyKeytabPath  = "keytab_path" // Requested keytab path on the target host
	KeyDestination = "destination" // Materialized file under the data directory
	KeyCachePath   = "cache_path"  // Cached keytab file path
	KeyOutcome     = "outcome"     // Per-identity outcome: created, skipped, failed
	KeyKVNO        = "kvno"        // Key version number

	// ========================================================================
	// Batch accounting
	// ========================================================================
	KeyTotal   = "total"
	KeyCreated = "created"
	KeySkipped = "skipped"
	KeyFailed  = "failed"

	// ========================================================================
	// Storage & infrastructure
	// ========================================================================
	KeyDatabase = "database" // Registry backend: sqlite, postgres
	KeyJournal  = "journal"  // Journal database path
	KeyDataDir  = "data_dir"
	KeyCacheDir = "cache_dir"
	KeyPath     = "path" // Generic file/directory path
	KeyMode     = "mode" // File mode/permissions (Unix-style)

	// ========================================================================
	// HTTP API
	// ========================================================================
	KeyMethod     = "method"
	KeyRoute      = "route"
	KeyStatus     = "status"
	KeyRequestID  = "request_id"
	KeyRemoteAddr = "remote_addr"
	KeyUsername   = "username"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyComponent  = "component"   // Subsystem: engine, cache, registry, api
)
