package job

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeURL trims surrounding whitespace from a submitted URL. The URL is
// stored as submitted; only the fingerprint lowercases it.
func NormalizeURL(url string) string {
	return strings.TrimSpace(url)
}

// Fingerprint returns the deterministic content fingerprint for a source URL:
// the hex SHA-256 of the normalized, lowercased URL.
func Fingerprint(url string) string {
	normalized := strings.ToLower(NormalizeURL(url))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
