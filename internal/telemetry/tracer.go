package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for materialization operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Domain keys use the "keytab." prefix; subsystem keys use their own prefix.
const (
	// ========================================================================
	// Identity attributes
	// ========================================================================
	AttrPrincipal  = "keytab.principal"   // Kerberos principal name
	AttrHost       = "keytab.host"        // Target host for the keytab
	AttrKeytabPath = "keytab.path"        // Requested keytab path on the host
	AttrDest       = "keytab.destination" // Staged file under the data directory
	AttrCachable   = "keytab.cachable"    // Identity eligible for caching
	AttrOutcome    = "keytab.outcome"     // created, skipped, failed
	AttrKVNO       = "keytab.kvno"        // Key version number

	// ========================================================================
	// Run attributes
	// ========================================================================
	AttrRunID      = "run.id"
	AttrRunTotal   = "run.total"
	AttrRunCreated = "run.created"
	AttrRunSkipped = "run.skipped"
	AttrRunFailed  = "run.failed"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit  = "cache.hit"
	AttrCachePath = "cache.path"

	// ========================================================================
	// Journal attributes
	// ========================================================================
	AttrJournalPath = "journal.path"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for one manifest run
	SpanRun = "run.execute"

	// Per-identity materialization
	SpanMaterialize = "identity.materialize"

	// Provider operations
	SpanKeytabGenerate = "keytab.generate"
	SpanKeytabWrite    = "keytab.write"
	SpanKeytabCopy     = "keytab.copy"

	// Cache operations
	SpanCacheStore   = "cache.store"
	SpanCacheRestore = "cache.restore"

	// Registry operations
	SpanRegistryLookup = "registry.lookup"
	SpanRegistryUpdate = "registry.update"

	// Journal operations
	SpanJournalRecord = "journal.record"
)

// Principal returns an attribute for the principal name
func Principal(name string) attribute.KeyValue {
	return attribute.String(AttrPrincipal, name)
}

// Host returns an attribute for the target host
func Host(host string) attribute.KeyValue {
	return attribute.String(AttrHost, host)
}

// KeytabPath returns an attribute for the requested keytab path
func KeytabPath(path string) attribute.KeyValue {
	return attribute.String(AttrKeytabPath, path)
}

// Destination returns an attribute for the staged destination file
func Destination(path string) attribute.KeyValue {
	return attribute.String(AttrDest, path)
}

// Cachable returns an attribute for cache eligibility
func Cachable(cachable bool) attribute.KeyValue {
	return attribute.Bool(AttrCachable, cachable)
}

// Outcome returns an attribute for the per-identity outcome
func Outcome(outcome string) attribute.KeyValue {
	return attribute.String(AttrOutcome, outcome)
}

// KVNO returns an attribute for the key version number
func KVNO(kvno int) attribute.KeyValue {
	return attribute.Int(AttrKVNO, kvno)
}

// RunID returns an attribute for the run identifier
func RunID(id string) attribute.KeyValue {
	return attribute.String(AttrRunID, id)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CachePath returns an attribute for a cached keytab file path
func CachePath(path string) attribute.KeyValue {
	return attribute.String(AttrCachePath, path)
}

// JournalPath returns an attribute for the journal database directory
func JournalPath(path string) attribute.KeyValue {
	return attribute.String(AttrJournalPath, path)
}

// StartRunSpan starts the root span for one manifest run.
func StartRunSpan(ctx context.Context, runID string, total int) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRun, trace.WithAttributes(
		RunID(runID),
		attribute.Int(AttrRunTotal, total),
	))
}

// StartMaterializeSpan starts a span for one identity materialization.
func StartMaterializeSpan(ctx context.Context, principal, host, keytabPath string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanMaterialize, trace.WithAttributes(
		Principal(principal),
		Host(host),
		KeytabPath(keytabPath),
	))
}

// StartCacheSpan starts a span for a keytab cache operation. name is one of
// the SpanCache constants.
func StartCacheSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// StartRegistrySpan starts a span for a registry store operation. name is
// one of the SpanRegistry constants.
func StartRegistrySpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// RecordRunTotals sets the aggregate counters on the run span.
func RecordRunTotals(span trace.Span, total, created, skipped, failed int) {
	span.SetAttributes(
		attribute.Int(AttrRunTotal, total),
		attribute.Int(AttrRunCreated, created),
		attribute.Int(AttrRunSkipped, skipped),
		attribute.Int(AttrRunFailed, failed),
	)
}
