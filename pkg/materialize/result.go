package materialize

import (
	"errors"

	"github.com/keymint/keymint/internal/securefs"
	"github.com/keymint/keymint/pkg/keycache"
)

// Per-identity failure kinds. One bad identity does not abort the batch;
// these are recorded on its Result and processing continues.
var (
	// ErrDestinationUnavailable means the per-host staging directory could
	// not be created or used.
	ErrDestinationUnavailable = errors.New("destination directory unavailable")

	// ErrMissingCachedMaterial means the principal has no password this
	// run and no cached keytab to fall back to.
	ErrMissingCachedMaterial = errors.New("missing cached keytab material")

	// ErrMaterializationFailed wraps provider failures: generating,
	// reading, writing, or copying keytab material.
	ErrMaterializationFailed = errors.New("keytab materialization failed")
)

// IsFatal reports whether the error is an engine-level fault that must
// abort the whole run rather than fail a single identity. Fatal faults are
// a missing or unusable cache directory and permission enforcement
// failures; all indicate a broken deployment, not a bad record.
func IsFatal(err error) bool {
	return errors.Is(err, keycache.ErrCacheUnconfigured) ||
		errors.Is(err, keycache.ErrCacheUnavailable) ||
		errors.Is(err, securefs.ErrPermissionEnforcement)
}

// ErrorKind returns the short classification name for a materialization
// error, used in reports and journal records.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, keycache.ErrCacheUnconfigured):
		return "cache_unconfigured"
	case errors.Is(err, keycache.ErrCacheUnavailable):
		return "cache_unavailable"
	case errors.Is(err, securefs.ErrPermissionEnforcement):
		return "permission_enforcement_failed"
	case errors.Is(err, ErrDestinationUnavailable):
		return "destination_unavailable"
	case errors.Is(err, ErrMissingCachedMaterial):
		return "missing_cached_material"
	default:
		return "materialization_failed"
	}
}

// Outcome classifies what happened to one identity record.
type Outcome string

const (
	// OutcomeCreated means a keytab file was delivered to the staging
	// directory.
	OutcomeCreated Outcome = "created"

	// OutcomeSkipped means there was nothing to do: incomplete record,
	// already processed this run, or already provisioned.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeFailed means the identity could not be materialized.
	OutcomeFailed Outcome = "failed"
)

// Result is the per-identity outcome of a Materialize call.
type Result struct {
	Principal string  `json:"principal"`
	Host      string  `json:"host,omitempty"`
	Outcome   Outcome `json:"outcome"`

	// DestinationFile is the staged keytab path for created results.
	DestinationFile string `json:"destination_file,omitempty"`

	// Reason explains skipped results.
	Reason string `json:"reason,omitempty"`

	// Kind and Message describe failed results.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`

	// Err carries the classified error for failed results. It is kept out
	// of serialized records; Kind and Message preserve the information.
	Err error `json:"-"`
}

// Failed reports whether the result records a failure.
func (r Result) Failed() bool {
	return r.Outcome == OutcomeFailed
}
