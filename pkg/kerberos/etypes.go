package kerberos

import (
	"fmt"
	"strings"

	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
)

// DefaultEncryptionTypes is the set of encryption types used when none are
// configured.
var DefaultEncryptionTypes = []string{
	"aes256-cts-hmac-sha1-96",
	"aes128-cts-hmac-sha1-96",
}

// etypeNames maps supported encryption type IDs to their canonical names.
var etypeNames = map[int32]string{
	etypeID.AES128_CTS_HMAC_SHA1_96:    "aes128-cts-hmac-sha1-96",
	etypeID.AES256_CTS_HMAC_SHA1_96:    "aes256-cts-hmac-sha1-96",
	etypeID.AES128_CTS_HMAC_SHA256_128: "aes128-cts-hmac-sha256-128",
	etypeID.AES256_CTS_HMAC_SHA384_192: "aes256-cts-hmac-sha384-192",
	etypeID.DES3_CBC_SHA1_KD:           "des3-cbc-sha1-kd",
	etypeID.RC4_HMAC:                   "rc4-hmac",
}

// ResolveEncryptionTypes maps encryption type names to their IDs, dropping
// duplicates while preserving order. Names are matched case-insensitively
// and may use any of the standard aliases (e.g. "aes256-cts" for
// "aes256-cts-hmac-sha1-96"). An empty list selects DefaultEncryptionTypes.
func ResolveEncryptionTypes(names []string) ([]int32, error) {
	if len(names) == 0 {
		names = DefaultEncryptionTypes
	}

	seen := make(map[int32]bool, len(names))
	ids := make([]int32, 0, len(names))
	for _, name := range names {
		id := etypeID.EtypeSupported(strings.ToLower(strings.TrimSpace(name)))
		if id == 0 {
			return nil, fmt.Errorf("unsupported encryption type %q", name)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return ids, nil
}

// EncryptionTypeName returns the canonical name for an encryption type ID,
// or a numeric form for IDs outside the supported set.
func EncryptionTypeName(id int32) string {
	if name, ok := etypeNames[id]; ok {
		return name
	}
	return fmt.Sprintf("etype-%d", id)
}
