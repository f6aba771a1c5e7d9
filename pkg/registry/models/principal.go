package models

import (
	"fmt"
	"time"
)

// Principal represents a Kerberos principal tracked by the registry.
//
// The registry is the durable record of which principals exist, whether
// they are service principals, and where their reusable keytab material
// is cached. Materialization runs consult it to decide between generating
// fresh keys and serving cached ones.
type Principal struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Name      string `gorm:"uniqueIndex;not null;size:255" json:"name"`
	IsService bool   `gorm:"default:true" json:"is_service"`

	// CachedKeytabPath points at the cached keytab file for this principal.
	// Empty means no material is cached. Service principals are never
	// cached; their keys are regenerated on demand.
	CachedKeytabPath string `gorm:"size:512" json:"cached_keytab_path,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Principal.
func (Principal) TableName() string {
	return "principals"
}

// HasCachedKeytab reports whether cached keytab material is recorded.
func (p *Principal) HasCachedKeytab() bool {
	return p.CachedKeytabPath != ""
}

// Validate checks if the principal has valid configuration.
func (p *Principal) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("principal name is required")
	}
	return nil
}
