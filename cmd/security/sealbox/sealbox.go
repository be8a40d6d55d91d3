package sealbox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretBytes is the smallest secret accepted by New.
const MinSecretBytes = 32

// hkdfInfo binds derived keys to this purpose and format version.
const hkdfInfo = "studydeck credential seal v1"

var (
	// ErrSecretTooShort is returned by New for secrets under MinSecretBytes.
	ErrSecretTooShort = errors.New("sealbox: secret too short")

	// ErrOpen is returned when a sealed value is truncated, tampered with,
	// or was sealed under a different key or associated data.
	ErrOpen = errors.New("sealbox: cannot open sealed value")
)

// Sealer seals and opens values with one derived key. It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New derives an AEAD key from secret and returns a Sealer.
func New(secret []byte) (*Sealer, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("sealbox: derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealbox: init aead: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext and authenticates it together with ad.
func (s *Sealer) Seal(plaintext, ad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealbox: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, ad), nil
}

// Open reverses Seal. The same ad must be supplied.
func (s *Sealer) Open(sealed, ad []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrOpen
	}
	out, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], ad)
	if err != nil {
		return nil, ErrOpen
	}
	return out, nil
}
