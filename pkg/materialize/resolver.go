package materialize

import (
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
)

// ResolveDestination computes the staging path for a delivery request:
// dataDir/host/sha1hex(destinationPath).
//
// The digest gives a deterministic, filesystem-safe name for an arbitrary
// destination path. It is a naming scheme, not a security boundary.
func ResolveDestination(dataDir, host, destinationPath string) string {
	sum := sha1.Sum([]byte(destinationPath))
	return filepath.Join(dataDir, host, hex.EncodeToString(sum[:]))
}
