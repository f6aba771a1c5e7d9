// Package registry provides the principal persistence layer.
//
// This package implements the Store interface for tracking Kerberos
// principals, their cached keytab material, and the hosts they have been
// provisioned on.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package registry

import (
	"context"

	"github.com/keymint/keymint/pkg/registry/models"
)

// Store provides the registry persistence interface.
//
// Thread Safety: Implementations must be safe for concurrent use from
// multiple goroutines.
type Store interface {
	// ============================================
	// PRINCIPAL OPERATIONS
	// ============================================

	// FindPrincipal returns a principal by name.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	FindPrincipal(ctx context.Context, name string) (*models.Principal, error)

	// ListPrincipals returns all principals ordered by name.
	ListPrincipals(ctx context.Context) ([]*models.Principal, error)

	// CreatePrincipal creates a new principal.
	// The principal ID will be generated if empty.
	// Returns the generated ID.
	// Returns models.ErrDuplicatePrincipal if a principal with the same
	// name exists.
	CreatePrincipal(ctx context.Context, principal *models.Principal) (string, error)

	// UpdatePrincipal updates an existing principal.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	UpdatePrincipal(ctx context.Context, principal *models.Principal) error

	// UpdateCachedKeytabPath records where the principal's keytab material
	// is cached. An empty path clears the record.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	UpdateCachedKeytabPath(ctx context.Context, name, path string) error

	// DeletePrincipal deletes a principal by name.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	// Also deletes all host provisions for the principal.
	DeletePrincipal(ctx context.Context, name string) error

	// ============================================
	// HOST PROVISION OPERATIONS
	// ============================================

	// PrincipalProvisionedOnHost reports whether the principal's keytab was
	// previously materialized for the host.
	PrincipalProvisionedOnHost(ctx context.Context, principal, host string) (bool, error)

	// MarkProvisioned records a materialization for a principal/host pair.
	// Marking an already provisioned pair refreshes the recorded keytab
	// path instead of failing.
	MarkProvisioned(ctx context.Context, provision *models.HostProvision) error

	// ListProvisions returns the host provisions for a principal ordered
	// by host.
	// Returns models.ErrPrincipalNotFound if the principal doesn't exist.
	ListProvisions(ctx context.Context, principal string) ([]*models.HostProvision, error)

	// RemoveProvision removes the provision record for a principal/host
	// pair, forcing the next materialization to regenerate or re-copy.
	// Returns models.ErrProvisionNotFound if no such record exists.
	RemoveProvision(ctx context.Context, principal, host string) error

	// ============================================
	// HEALTH & LIFECYCLE
	// ============================================

	// Healthcheck verifies the underlying database is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases the underlying database connection.
	Close() error
}
