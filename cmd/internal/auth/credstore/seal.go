package credstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"studydeck/cmd/security/sealbox"
)

const sealedPrefix = "sealed.v1."

// SealedBackend encrypts each credential before handing it to the wrapped backend.
// The associated data binds a value to its profile and kind, so swapping the
// stored access and refresh values fails to open.
type SealedBackend struct {
	inner   Backend
	sealer  *sealbox.Sealer
	profile string
}

// Seal wraps inner with XChaCha20-Poly1305 sealing keyed by secret.
func Seal(inner Backend, secret []byte, profile string) (*SealedBackend, error) {
	s, err := sealbox.New(secret)
	if err != nil {
		return nil, err
	}
	if profile == "" {
		profile = "default"
	}
	return &SealedBackend{inner: inner, sealer: s, profile: profile}, nil
}

func (b *SealedBackend) Name() string { return b.inner.Name() + "+sealed" }

func (b *SealedBackend) ad(k Kind) []byte {
	return []byte("studydeck/" + b.profile + "/" + string(k))
}

func (b *SealedBackend) seal(k Kind, v string) (string, error) {
	ct, err := b.sealer.Seal([]byte(v), b.ad(k))
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(ct), nil
}

func (b *SealedBackend) open(k Kind, v string) (string, error) {
	if v == "" {
		return "", nil
	}
	enc, ok := strings.CutPrefix(v, sealedPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %s is not sealed", ErrCorrupt, k)
	}
	raw, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, k, err)
	}
	pt, err := b.sealer.Open(raw, b.ad(k))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, k, err)
	}
	return string(pt), nil
}

func (b *SealedBackend) Load(ctx context.Context) (Pair, bool, error) {
	p, ok, err := b.inner.Load(ctx)
	if err != nil || !ok {
		return Pair{}, ok, err
	}
	access, err := b.open(KindAccess, p.Access)
	if err != nil {
		return Pair{}, false, err
	}
	refresh, err := b.open(KindRefresh, p.Refresh)
	if err != nil {
		return Pair{}, false, err
	}
	return Pair{Access: access, Refresh: refresh}, true, nil
}

func (b *SealedBackend) Save(ctx context.Context, p Pair) error {
	access, err := b.seal(KindAccess, p.Access)
	if err != nil {
		return err
	}
	refresh, err := b.seal(KindRefresh, p.Refresh)
	if err != nil {
		return err
	}
	return b.inner.Save(ctx, Pair{Access: access, Refresh: refresh})
}

func (b *SealedBackend) Delete(ctx context.Context) error { return b.inner.Delete(ctx) }

func (b *SealedBackend) Close() error { return b.inner.Close() }
