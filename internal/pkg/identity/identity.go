package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// KeyFromEmail derives the irreversible identity key for an email address:
// lowercase hex SHA-256 of the lower-cased, trimmed address. The key is the
// only identity representation that is ever persisted or logged; the raw
// email lives exactly as long as the request that carried it.
func KeyFromEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ValidKey reports whether s looks like an identity key: 64 lowercase hex
// characters. Token claims are checked against this before being trusted.
func ValidKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
