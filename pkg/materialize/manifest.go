package materialize

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Record is one manifest entry: a principal and the delivery request for
// its keytab.
type Record struct {
	Principal  string `yaml:"principal" json:"principal"`
	Host       string `yaml:"host" json:"host"`
	KeytabPath string `yaml:"keytab_path" json:"keytab_path"`
	Cachable   bool   `yaml:"cachable" json:"cachable"`

	// Service marks the principal as a service principal when the record
	// is used to register principals in the registry. Service principals
	// are never cached.
	Service bool `yaml:"service,omitempty" json:"service,omitempty"`
}

// Identity returns the record's delivery request in engine form.
func (r Record) Identity() Identity {
	return Identity{
		Host:            r.Host,
		DestinationPath: r.KeytabPath,
		Cachable:        r.Cachable,
	}
}

// Manifest lists the identity records of one run in processing order.
//
// Manifests carry no secrets: the password and key version maps travel in a
// separate file so the identity list can live in version control.
type Manifest struct {
	Identities []Record `yaml:"identities" json:"identities"`
}

// Validate checks that every record names a principal. Hosts and keytab
// paths may be empty; the engine treats such records as no-ops.
func (m *Manifest) Validate() error {
	for i, record := range m.Identities {
		if record.Principal == "" {
			return fmt.Errorf("identity %d: principal is required", i)
		}
	}
	return nil
}

// LoadManifest reads and validates a YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &manifest, nil
}

type secretsFile struct {
	Passwords   map[string]string `yaml:"passwords"`
	KeyVersions map[string]int    `yaml:"key_versions"`
}

// LoadSecrets reads the YAML secrets file carrying the password and key
// version maps. Missing sections yield empty maps, which the engine treats
// as "no fresh material for any principal".
func LoadSecrets(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Secrets{}, fmt.Errorf("read secrets %s: %w", path, err)
	}

	var file secretsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets %s: %w", path, err)
	}

	return Secrets{
		Passwords:   file.Passwords,
		KeyVersions: file.KeyVersions,
	}, nil
}
