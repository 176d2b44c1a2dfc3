// Package hashing computes and compares content digests for uploaded
// documents. Digests are SHA-256 over the exact byte sequence; equality of
// digests is the sole truth criterion for document integrity.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the lowercase hex SHA-256 digest of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the digest of b equals expectedHex. Hex comparison
// is case-insensitive.
func Verify(b []byte, expectedHex string) bool {
	return strings.EqualFold(Digest(b), expectedHex)
}
