package materialize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"

	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/internal/securefs"
	"github.com/keymint/keymint/internal/telemetry"
	"github.com/keymint/keymint/pkg/kerberos"
	"github.com/keymint/keymint/pkg/keycache"
	"github.com/keymint/keymint/pkg/registry/models"
)

// Registry is the slice of the registry store the engine depends on.
type Registry interface {
	// FindPrincipal returns the principal record by name.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	FindPrincipal(ctx context.Context, name string) (*models.Principal, error)

	// UpdateCachedKeytabPath records where the principal's keytab material
	// is cached. An empty path clears the record.
	UpdateCachedKeytabPath(ctx context.Context, name, path string) error

	// PrincipalProvisionedOnHost reports whether the principal's keytab was
	// previously delivered for the host.
	PrincipalProvisionedOnHost(ctx context.Context, principal, host string) (bool, error)

	// MarkProvisioned records a delivery for a principal/host pair.
	MarkProvisioned(ctx context.Context, provision *models.HostProvision) error
}

// Engine materializes keytab files into the per-host staging area.
//
// An Engine carries the visitation state for exactly one run: create a new
// Engine per run so deduplication starts fresh.
//
// Thread Safety: an Engine processes one identity at a time and must not be
// shared across goroutines.
type Engine struct {
	dataDir  string
	registry Registry
	cache    *keycache.Cache
	provider kerberos.Provider
	visited  *VisitTracker
	metrics  *Metrics
}

// Config wires an Engine.
type Config struct {
	// DataDir is the root of the staging area keytabs are delivered under.
	DataDir string

	// Registry resolves principals and tracks provisioning state.
	Registry Registry

	// Cache stores reusable keytab material for non-service principals.
	Cache *keycache.Cache

	// Provider generates and transfers keytab files.
	Provider kerberos.Provider

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// NewEngine validates the wiring and returns an engine with a fresh
// visitation set.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("keytab cache is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("kerberos provider is required")
	}

	return &Engine{
		dataDir:  cfg.DataDir,
		registry: cfg.Registry,
		cache:    cfg.Cache,
		provider: cfg.Provider,
		visited:  NewVisitTracker(),
		metrics:  cfg.Metrics,
	}, nil
}

// DataDir returns the staging area root.
func (e *Engine) DataDir() string {
	return e.dataDir
}

// Materialize processes one identity record and returns its outcome. Per
// identity failures are reported on the Result, never returned: the caller
// decides whether to continue the batch. Use IsFatal on Result.Err to spot
// engine faults that must abort the run.
func (e *Engine) Materialize(ctx context.Context, identity Identity, principal string, secrets Secrets) Result {
	start := time.Now()
	result := e.materialize(ctx, identity, principal, secrets)
	e.metrics.RecordResult(result.Outcome, time.Since(start))
	if result.Failed() && IsFatal(result.Err) {
		e.metrics.RecordFatalFault()
	}
	return result
}

func (e *Engine) materialize(ctx context.Context, identity Identity, principal string, secrets Secrets) Result {
	// Identities without a host or a keytab slot have nowhere to deliver
	// to. Not an error: the record simply does not apply here.
	if identity.Host == "" || identity.DestinationPath == "" {
		return skipped(identity, principal, "incomplete identity record")
	}

	if e.visited.Seen(principal, identity.Host, identity.DestinationPath) {
		logger.DebugCtx(ctx, "Skipping previously processed keytab",
			logger.KeyPrincipal, principal,
			logger.KeyHost, identity.Host,
			logger.KeyKeytabPath, identity.DestinationPath,
		)
		return skipped(identity, principal, "previously processed")
	}

	// The visit is recorded whether or not materialization succeeds, so a
	// failed destination is not retried within the run.
	defer e.visited.Record(principal, identity.Host, identity.DestinationPath)

	logger.InfoCtx(ctx, "Creating keytab file",
		logger.KeyPrincipal, principal,
		logger.KeyHost, identity.Host,
		logger.KeyKeytabPath, identity.DestinationPath,
	)

	destFile := ResolveDestination(e.dataDir, identity.Host, identity.DestinationPath)
	destDir := filepath.Dir(destFile)
	telemetry.SetAttributes(ctx, telemetry.Destination(destFile), telemetry.Cachable(identity.Cachable))

	if err := securefs.MkdirOwnerOnly(destDir); err != nil {
		if errors.Is(err, securefs.ErrPermissionEnforcement) {
			return e.fail(ctx, identity, principal,
				fmt.Errorf("failed to secure the keytab staging directory for %s: %w", principal, err))
		}
		return e.fail(ctx, identity, principal, failure(ErrDestinationUnavailable,
			"failed to create keytab file for %s, the destination directory does not exist: %s", principal, destDir))
	}

	password, hasPassword := secrets.Password(principal)
	if !hasPassword {
		return e.materializeFromCache(ctx, identity, principal, destFile)
	}
	return e.materializeFresh(ctx, identity, principal, password, secrets.KeyVersion(principal), destFile)
}

// materializeFromCache handles identities whose principal came without a
// password. Either the keytab was already delivered for the host in a
// previous run, or it must be restored from the cache.
func (e *Engine) materializeFromCache(ctx context.Context, identity Identity, principal, destFile string) Result {
	provisioned, err := e.registry.PrincipalProvisionedOnHost(ctx, principal, identity.Host)
	if err != nil {
		return e.fail(ctx, identity, principal, failure(ErrMaterializationFailed,
			"failed to create keytab file for %s, cannot determine the provisioning state for host %s (%v)",
			principal, identity.Host, err))
	}
	if provisioned {
		logger.DebugCtx(ctx, "Skipping keytab file, missing password indicates nothing to do",
			logger.KeyPrincipal, principal,
			logger.KeyHost, identity.Host,
			logger.KeyKeytabPath, identity.DestinationPath,
		)
		return skipped(identity, principal, "already provisioned")
	}

	cachedPath, err := e.lookupCachedKeytab(ctx, principal)
	if err != nil {
		return e.fail(ctx, identity, principal, failure(ErrMaterializationFailed,
			"failed to create keytab file for %s, cannot look up the cached file (%v)", principal, err))
	}
	if cachedPath == "" {
		return e.fail(ctx, identity, principal, failure(ErrMissingCachedMaterial,
			"failed to create keytab for %s, missing cached file", principal))
	}

	copyCtx, copySpan := telemetry.StartSpan(ctx, telemetry.SpanKeytabCopy)
	telemetry.SetAttributes(copyCtx, telemetry.CachePath(cachedPath), telemetry.Destination(destFile))
	err = e.provider.CopyKeytabFile(cachedPath, destFile)
	if err != nil {
		telemetry.RecordError(copyCtx, err)
	}
	copySpan.End()
	if err != nil {
		return e.fail(ctx, identity, principal, failure(ErrMaterializationFailed,
			"failed to create keytab file for %s - %v", principal, err))
	}

	return created(identity, principal, destFile)
}

// materializeFresh generates keytab material from the supplied password,
// caches it when allowed, and delivers it to the staging area.
func (e *Engine) materializeFresh(ctx context.Context, identity Identity, principal, password string, keyVersion int, destFile string) Result {
	var kt *keytab.Keytab

	// A principal seen for an earlier destination this run already had its
	// keys generated. Reuse the cached material so every host receives
	// identical keys.
	if e.visited.SeenPrincipal(principal) {
		kt = e.readCachedKeytab(ctx, principal)
	}

	if kt == nil {
		genCtx, genSpan := telemetry.StartSpan(ctx, telemetry.SpanKeytabGenerate)
		telemetry.SetAttributes(genCtx, telemetry.Principal(principal), telemetry.KVNO(keyVersion))
		fresh, err := e.provider.CreateKeytab(principal, password, keyVersion)
		if err != nil {
			telemetry.RecordError(genCtx, err)
		}
		genSpan.End()
		if err != nil {
			return e.fail(ctx, identity, principal, failure(ErrMaterializationFailed,
				"failed to create keytab file for %s at %s (%v)", principal, identity.DestinationPath, err))
		}
		kt = fresh

		if err := e.maybeCacheKeytab(ctx, identity, principal, kt); err != nil {
			return e.fail(ctx, identity, principal, err)
		}
	}

	writeCtx, writeSpan := telemetry.StartSpan(ctx, telemetry.SpanKeytabWrite)
	telemetry.SetAttributes(writeCtx, telemetry.Destination(destFile))
	err := e.provider.WriteKeytabFile(kt, destFile)
	if err != nil {
		telemetry.RecordError(writeCtx, err)
	}
	writeSpan.End()
	if err != nil {
		return e.fail(ctx, identity, principal, failure(ErrMaterializationFailed,
			"failed to export keytab file for %s at %s (%v)", principal, destFile, err))
	}

	if err := securefs.EnforceOwnerOnly(destFile); err != nil {
		return e.fail(ctx, identity, principal,
			fmt.Errorf("failed to secure the keytab file for %s: %w", principal, err))
	}

	logger.DebugCtx(ctx, "Successfully created keytab file",
		logger.KeyPrincipal, principal,
		logger.KeyHost, identity.Host,
		logger.KeyDestination, destFile,
	)

	return created(identity, principal, destFile)
}

// lookupCachedKeytab resolves the principal's recorded cache location. An
// unknown principal or one without cached material yields an empty path.
func (e *Engine) lookupCachedKeytab(ctx context.Context, principal string) (string, error) {
	entity, err := e.findPrincipal(ctx, principal)
	if errors.Is(err, models.ErrPrincipalNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !entity.HasCachedKeytab() {
		return "", nil
	}
	return entity.CachedKeytabPath, nil
}

// findPrincipal is the traced registry read.
func (e *Engine) findPrincipal(ctx context.Context, principal string) (*models.Principal, error) {
	ctx, span := telemetry.StartRegistrySpan(ctx, telemetry.SpanRegistryLookup, telemetry.Principal(principal))
	defer span.End()

	entity, err := e.registry.FindPrincipal(ctx, principal)
	if err != nil && !errors.Is(err, models.ErrPrincipalNotFound) {
		telemetry.RecordError(ctx, err)
	}
	return entity, err
}

// updateCachedKeytabPath is the traced registry write.
func (e *Engine) updateCachedKeytabPath(ctx context.Context, principal, path string) error {
	ctx, span := telemetry.StartRegistrySpan(ctx, telemetry.SpanRegistryUpdate,
		telemetry.Principal(principal), telemetry.CachePath(path))
	defer span.End()

	err := e.registry.UpdateCachedKeytabPath(ctx, principal, path)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

// readCachedKeytab restores material cached earlier in the run. Failures
// are tolerated: the caller regenerates from the password instead.
func (e *Engine) readCachedKeytab(ctx context.Context, principal string) *keytab.Keytab {
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheRestore, telemetry.Principal(principal))
	defer span.End()

	kt := e.readCachedKeytabFile(ctx, principal)
	telemetry.SetAttributes(ctx, telemetry.CacheHit(kt != nil))
	return kt
}

func (e *Engine) readCachedKeytabFile(ctx context.Context, principal string) *keytab.Keytab {
	cachedPath, err := e.lookupCachedKeytab(ctx, principal)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read the cached keytab, recreating if possible",
			logger.KeyPrincipal, principal,
			logger.KeyError, err.Error(),
		)
		return nil
	}
	if cachedPath == "" {
		return nil
	}
	telemetry.SetAttributes(ctx, telemetry.CachePath(cachedPath))

	kt, err := e.provider.ReadKeytabFile(cachedPath)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read the cached keytab, recreating if possible",
			logger.KeyPrincipal, principal,
			logger.KeyCachePath, cachedPath,
			logger.KeyError, err.Error(),
		)
		return nil
	}
	return kt
}

// maybeCacheKeytab retains freshly generated material for reuse by later
// runs. Only non-service principals with a cachable identity are kept; a
// service keytab is regenerated on demand instead.
func (e *Engine) maybeCacheKeytab(ctx context.Context, identity Identity, principal string, kt *keytab.Keytab) error {
	if !identity.Cachable {
		return nil
	}

	entity, err := e.findPrincipal(ctx, principal)
	if errors.Is(err, models.ErrPrincipalNotFound) {
		return nil
	}
	if err != nil {
		// Caching is an optimization. When the registry cannot say whether
		// the principal qualifies, deliver the keytab anyway.
		logger.WarnCtx(ctx, "Failed to look up the principal, skipping keytab caching",
			logger.KeyPrincipal, principal,
			logger.KeyError, err.Error(),
		)
		return nil
	}
	if entity.IsService {
		return nil
	}

	data, err := kt.Marshal()
	if err != nil {
		return failure(ErrMaterializationFailed,
			"failed to cache the keytab for %s (%v)", principal, err)
	}

	storeCtx, storeSpan := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheStore, telemetry.Principal(principal))
	cachePath, err := e.cache.Store(principal, data)
	if err != nil {
		// An unconfigured or unusable cache poisons every later
		// passwordless run; both abort the batch.
		telemetry.RecordError(storeCtx, err)
		storeSpan.End()
		return fmt.Errorf("failed to cache the keytab for %s: %w", principal, err)
	}
	telemetry.SetAttributes(storeCtx, telemetry.CachePath(cachePath))
	storeSpan.End()
	e.metrics.RecordCacheStore()

	oldPath := entity.CachedKeytabPath
	if err := e.updateCachedKeytabPath(ctx, principal, cachePath); err != nil {
		return failure(ErrMaterializationFailed,
			"failed to record the cached keytab for %s (%v)", principal, err)
	}

	// The superseded entry is best-effort cleanup. A failure leaves a
	// stray cache file behind, never a broken run.
	if oldPath != "" && oldPath != cachePath {
		if err := e.cache.Remove(oldPath); err != nil {
			logger.DebugCtx(ctx, "Failed to remove orphaned cache file",
				logger.KeyPrincipal, principal,
				logger.KeyCachePath, oldPath,
				logger.KeyError, err.Error(),
			)
		} else {
			e.metrics.RecordOrphanRemoved()
		}
	}

	return nil
}

func (e *Engine) fail(ctx context.Context, identity Identity, principal string, err error) Result {
	logger.ErrorCtx(ctx, "Failed to create keytab file",
		logger.KeyPrincipal, principal,
		logger.KeyHost, identity.Host,
		logger.KeyKeytabPath, identity.DestinationPath,
		logger.KeyError, err.Error(),
	)
	return Result{
		Principal: principal,
		Host:      identity.Host,
		Outcome:   OutcomeFailed,
		Kind:      ErrorKind(err),
		Message:   err.Error(),
		Err:       err,
	}
}

func skipped(identity Identity, principal, reason string) Result {
	return Result{
		Principal: principal,
		Host:      identity.Host,
		Outcome:   OutcomeSkipped,
		Reason:    reason,
	}
}

func created(identity Identity, principal, destFile string) Result {
	return Result{
		Principal:       principal,
		Host:            identity.Host,
		Outcome:         OutcomeCreated,
		DestinationFile: destFile,
	}
}

// failure builds a classified per-identity error: a human message carrying
// the principal and path, chained onto the failure kind sentinel.
func failure(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}
