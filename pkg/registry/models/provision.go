package models

import "time"

// HostProvision records that a principal's keytab was materialized for a
// host. Its presence tells later runs that a keytab can be served from
// cache even when the principal's password is no longer available.
type HostProvision struct {
	PrincipalName string `gorm:"primaryKey;size:255" json:"principal_name"`
	Host          string `gorm:"primaryKey;size:255" json:"host"`

	// KeytabPath is the destination path the keytab was materialized to,
	// as requested by the host.
	KeytabPath string `gorm:"size:512" json:"keytab_path,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for HostProvision.
func (HostProvision) TableName() string {
	return "host_provisions"
}
