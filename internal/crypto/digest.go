package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the SHA-256 digest of content as a lowercase hex
// string. It is computed over plaintext before encryption and verified
// again after decryption, independently of the AEAD tag, so storage
// corruption surfaces as an integrity fault rather than an auth fault.
func Checksum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Verify reports whether content hashes to the expected digest.
// This is an integrity check, not a secret comparison.
func Verify(content []byte, expected string) bool {
	return Checksum(content) == expected
}
