package materialize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeTestFile(t, "manifest.yaml", `
identities:
  - principal: hdfs@EXAMPLE.COM
    host: h1
    keytab_path: /etc/security/keytabs/hdfs.headless.keytab
    cachable: true
  - principal: HTTP/h2@EXAMPLE.COM
    host: h2
    keytab_path: /etc/security/keytabs/spnego.service.keytab
`)

	manifest, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}

	if len(manifest.Identities) != 2 {
		t.Fatalf("len(Identities) = %d, want 2", len(manifest.Identities))
	}

	first := manifest.Identities[0]
	if first.Principal != "hdfs@EXAMPLE.COM" || first.Host != "h1" || !first.Cachable {
		t.Errorf("first record = %+v", first)
	}
	if first.KeytabPath != "/etc/security/keytabs/hdfs.headless.keytab" {
		t.Errorf("first keytab path = %q", first.KeytabPath)
	}

	if manifest.Identities[1].Cachable {
		t.Error("cachable should default to false")
	}
}

func TestLoadManifest_MissingPrincipal(t *testing.T) {
	path := writeTestFile(t, "manifest.yaml", `
identities:
  - principal: hdfs@EXAMPLE.COM
    host: h1
    keytab_path: /etc/krb5.keytab
  - host: h2
    keytab_path: /etc/krb5.keytab
`)

	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("LoadManifest() expected error for a record without a principal")
	}
	if !strings.Contains(err.Error(), "identity 1") || !strings.Contains(err.Error(), "principal is required") {
		t.Errorf("error = %q, want the failing record index and reason", err)
	}
}

func TestLoadManifest_InvalidYAML(t *testing.T) {
	path := writeTestFile(t, "manifest.yaml", "identities: [unclosed")

	if _, err := LoadManifest(path); err == nil {
		t.Fatal("LoadManifest() expected error for invalid YAML")
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadManifest() expected error for a missing file")
	}
}

func TestRecord_Identity(t *testing.T) {
	record := Record{
		Principal:  "hdfs@EXAMPLE.COM",
		Host:       "h1",
		KeytabPath: "/etc/krb5.keytab",
		Cachable:   true,
	}

	identity := record.Identity()
	if identity.Host != "h1" || identity.DestinationPath != "/etc/krb5.keytab" || !identity.Cachable {
		t.Errorf("Identity() = %+v", identity)
	}
}

func TestLoadSecrets(t *testing.T) {
	path := writeTestFile(t, "secrets.yaml", `
passwords:
  hdfs@EXAMPLE.COM: p@ss
key_versions:
  hdfs@EXAMPLE.COM: 4
`)

	secrets, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}

	password, ok := secrets.Password("hdfs@EXAMPLE.COM")
	if !ok || password != "p@ss" {
		t.Errorf("Password() = %q, %v", password, ok)
	}
	if kvno := secrets.KeyVersion("hdfs@EXAMPLE.COM"); kvno != 4 {
		t.Errorf("KeyVersion() = %d, want 4", kvno)
	}
}

func TestLoadSecrets_MissingSections(t *testing.T) {
	path := writeTestFile(t, "secrets.yaml", "passwords:\n")

	secrets, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}

	if _, ok := secrets.Password("hdfs@EXAMPLE.COM"); ok {
		t.Error("empty secrets file should know no passwords")
	}
	if kvno := secrets.KeyVersion("hdfs@EXAMPLE.COM"); kvno != 0 {
		t.Errorf("KeyVersion() = %d, want 0", kvno)
	}
}

func TestSecrets_Password(t *testing.T) {
	secrets := Secrets{Passwords: map[string]string{
		"hdfs@EXAMPLE.COM": "p@ss",
		"yarn@EXAMPLE.COM": "",
	}}

	if _, ok := secrets.Password("missing@EXAMPLE.COM"); ok {
		t.Error("unknown principal reported a password")
	}

	// A blank entry means the secret was withheld, same as absent
	if _, ok := secrets.Password("yarn@EXAMPLE.COM"); ok {
		t.Error("empty password treated as usable")
	}

	if password, ok := secrets.Password("hdfs@EXAMPLE.COM"); !ok || password != "p@ss" {
		t.Errorf("Password() = %q, %v", password, ok)
	}
}
