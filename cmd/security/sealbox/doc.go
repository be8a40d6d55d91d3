// Package sealbox seals small secrets (persisted credentials) at rest.
//
// Sealing uses XChaCha20-Poly1305 with a random 24-byte nonce per message.
// The AEAD key is derived from the configured secret with HKDF-SHA256, so any
// secret of at least MinSecretBytes bytes can be used directly from the environment.
//
// Output layout: nonce || ciphertext+tag.
package sealbox
