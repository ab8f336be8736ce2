package idhash

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// Fingerprint computes a deterministic content fingerprint using SHA256.
// Returns the base58-encoded hash (43 or 44 characters).
func Fingerprint(content []byte) string {
	hash := sha256.Sum256(content)
	return base58.Encode(hash[:])
}
