// Package materialize implements the keytab materialization engine.
//
// Given identity records describing which principal needs a keytab on which
// host, the engine decides between skipping (already done), copying
// previously cached material, and generating fresh keys, then delivers the
// resulting keytab file into a per-host staging directory with owner-only
// permissions.
package materialize

// Identity describes one keytab delivery request: a principal's keytab is
// wanted at DestinationPath on Host. Records are supplied by the caller and
// never mutated.
type Identity struct {
	// Host is the host the keytab is destined for.
	Host string

	// DestinationPath is the path the keytab will eventually live at on
	// the host. It names the request; the engine stages the file under
	// its own data directory keyed by this path's digest.
	DestinationPath string

	// Cachable marks the generated keytab as eligible for caching, so
	// later runs can materialize it again without the password.
	Cachable bool
}

// Secrets carries the per-run key material lookups: principal to password
// and principal to key version number. Both maps are read-only for the
// duration of a run.
//
// A principal absent from Passwords means its secret was not freshly
// generated this run and the engine must fall back to cached material.
type Secrets struct {
	Passwords   map[string]string
	KeyVersions map[string]int
}

// Password returns the password for the principal and whether one is known.
func (s Secrets) Password(principal string) (string, bool) {
	password, ok := s.Passwords[principal]
	if !ok || password == "" {
		return "", false
	}
	return password, true
}

// KeyVersion returns the key version number for the principal, or zero when
// none is recorded (the provider substitutes its default).
func (s Secrets) KeyVersion(principal string) int {
	return s.KeyVersions[principal]
}
