package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// SealKeyEnv is the env var name for the credential sealing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SealKeyEnv = "STUDYDECK_CRED_SEAL_KEY"

	// fingerprintLen is the number of hex chars kept in a fingerprint.
	fingerprintLen = 12
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns a short, log-safe identifier for a credential.
// The empty credential has the empty fingerprint.
func Fingerprint(credential string) string {
	if credential == "" {
		return ""
	}
	return HashSHA256Hex(credential)[:fingerprintLen]
}

// NewOpaque returns a cryptographically random URL-safe string built from nBytes of entropy.
func NewOpaque(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 32
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	// URL-safe, no padding.
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// KeyFromEnv returns the trimmed bytes of the secret stored in envKey, enforcing a minimum byte length.
// If the env var is missing/blank -> ErrKeyMissing.
// If too short -> ErrKeyTooShort.
func KeyFromEnv(envKey string, minBytes int) ([]byte, error) {
	return KeyFromString(os.Getenv(envKey), minBytes)
}

// KeyFromString applies the KeyFromEnv rules to an already-loaded value.
func KeyFromString(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrKeyTooShort
	}
	return b, nil
}
