package kerberos

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/keymint/keymint/internal/securefs"
	"github.com/keymint/keymint/pkg/config"
)

// defaultKeyVersion is used when an identity record does not carry an
// explicit key version number.
const defaultKeyVersion = 1

// Provider produces and persists Kerberos keytab material.
//
// LocalProvider derives keys from principal passwords locally. Deployments
// that delegate key management to an external KDC admin service can plug in
// their own implementation; the materialization engine only depends on this
// interface.
type Provider interface {
	// CreateKeytab derives keys for the principal from its password and
	// returns an in-memory keytab. keyVersion <= 0 selects the default
	// key version number (1).
	CreateKeytab(principal, password string, keyVersion int) (*keytab.Keytab, error)

	// WriteKeytabFile serializes the keytab to path, readable and writable
	// only by the owner.
	WriteKeytabFile(kt *keytab.Keytab, path string) error

	// ReadKeytabFile reads and parses the keytab file at path.
	ReadKeytabFile(path string) (*keytab.Keytab, error)

	// CopyKeytabFile copies the keytab at src to dest, re-serializing it so
	// that dest is always a validated keytab with owner-only permissions.
	CopyKeytabFile(src, dest string) error
}

// LocalProvider generates keytab material in-process using locally derived
// keys. It holds the default realm and the set of encryption types to
// produce keys for.
//
// A LocalProvider is immutable after construction and safe for concurrent use.
type LocalProvider struct {
	realm  string
	etypes []int32
}

// NewLocalProvider creates a provider from configuration.
//
// Environment variables take precedence over config file values:
//   - KEYMINT_KERBEROS_REALM overrides Realm
//
// An empty realm is allowed as long as every principal handed to
// CreateKeytab carries its own realm qualifier (name@REALM).
func NewLocalProvider(cfg *config.KerberosConfig) (*LocalProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("kerberos config is nil")
	}

	etypes, err := ResolveEncryptionTypes(cfg.EncryptionTypes)
	if err != nil {
		return nil, fmt.Errorf("resolve encryption types: %w", err)
	}

	return &LocalProvider{
		realm:  resolveRealm(cfg.Realm),
		etypes: etypes,
	}, nil
}

// Realm returns the configured default realm.
func (p *LocalProvider) Realm() string {
	return p.realm
}

// EncryptionTypes returns the canonical names of the configured encryption
// types, in the order keys are generated.
func (p *LocalProvider) EncryptionTypes() []string {
	names := make([]string, 0, len(p.etypes))
	for _, id := range p.etypes {
		names = append(names, EncryptionTypeName(id))
	}
	return names
}

// CreateKeytab derives one key per configured encryption type and returns
// the resulting keytab. All entries share a single timestamp and the given
// key version number.
func (p *LocalProvider) CreateKeytab(principal, password string, keyVersion int) (*keytab.Keytab, error) {
	if principal == "" {
		return nil, fmt.Errorf("principal is empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password is empty for principal %s", principal)
	}

	name, realm := splitPrincipal(principal)
	if realm == "" {
		realm = p.realm
	}
	if realm == "" {
		return nil, fmt.Errorf("no realm for principal %s (configure a default realm or use name@REALM)", principal)
	}

	if keyVersion <= 0 {
		keyVersion = defaultKeyVersion
	}

	kt := keytab.New()
	ts := time.Now()
	for _, etype := range p.etypes {
		if err := kt.AddEntry(name, realm, password, ts, uint8(keyVersion), etype); err != nil {
			return nil, fmt.Errorf("add %s entry for %s: %w", EncryptionTypeName(etype), principal, err)
		}
	}

	return kt, nil
}

// WriteKeytabFile serializes the keytab and writes it atomically with
// owner-only permissions.
func (p *LocalProvider) WriteKeytabFile(kt *keytab.Keytab, path string) error {
	if kt == nil {
		return fmt.Errorf("keytab is nil")
	}

	data, err := kt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal keytab: %w", err)
	}

	if err := securefs.WriteFileOwnerOnly(path, data); err != nil {
		return fmt.Errorf("write keytab %s: %w", path, err)
	}

	return nil
}

// ReadKeytabFile reads and parses a keytab file.
func (p *LocalProvider) ReadKeytabFile(path string) (*keytab.Keytab, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keytab file: %w", err)
	}

	kt := keytab.New()
	if err := kt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("parse keytab: %w", err)
	}

	return kt, nil
}

// CopyKeytabFile copies src to dest by parsing and re-serializing, so a
// corrupt source is rejected instead of propagated.
func (p *LocalProvider) CopyKeytabFile(src, dest string) error {
	kt, err := p.ReadKeytabFile(src)
	if err != nil {
		return fmt.Errorf("copy keytab from %s: %w", src, err)
	}

	return p.WriteKeytabFile(kt, dest)
}

// Compile-time check that LocalProvider implements Provider.
var _ Provider = (*LocalProvider)(nil)

// splitPrincipal splits a principal into its name and realm parts.
// A principal without a realm qualifier returns an empty realm.
func splitPrincipal(principal string) (name, realm string) {
	if i := strings.LastIndex(principal, "@"); i >= 0 {
		return principal[:i], principal[i+1:]
	}
	return principal, ""
}

// resolveRealm resolves the default realm with environment variable override.
//
// Resolution order (highest priority first):
//  1. KEYMINT_KERBEROS_REALM env var
//  2. configRealm from configuration file
func resolveRealm(configRealm string) string {
	if envRealm := os.Getenv("KEYMINT_KERBEROS_REALM"); envRealm != "" {
		return envRealm
	}
	return configRealm
}
