// Package token provides credential-handling primitives for studydeck.
//
// It never interprets credentials. It only derives log-safe fingerprints,
// mints opaque random strings, and loads secret keys from the environment.
//
// Design goals:
// - Raw access/refresh credentials must never reach a log line.
// - Fingerprints are stable (SHA-256 prefix) so related log events can be correlated.
//
// Environment:
// - STUDYDECK_CRED_SEAL_KEY: secret used to seal persisted credentials at rest.
package token
