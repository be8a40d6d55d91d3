package password

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	h := New(FastParams())

	enc, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(enc, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding: %q", enc)
	}

	cases := []struct {
		in   string
		want bool
	}{
		{in: "correct horse battery staple", want: true},
		{in: "Correct horse battery staple", want: false},
		{in: "", want: false},
	}
	for _, tc := range cases {
		ok, err := h.Verify(enc, tc.in)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tc.in, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q)=%v want %v", tc.in, ok, tc.want)
		}
	}
}

func TestHash_RejectsBadInput(t *testing.T) {
	t.Parallel()

	h := New(FastParams())
	if _, err := h.Hash(""); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("empty: got %v", err)
	}
	if _, err := h.Hash(strings.Repeat("x", MaxLength+1)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("long: got %v", err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	t.Parallel()

	h := New(FastParams())
	for _, enc := range []string{
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
	} {
		ok, err := h.Verify(enc, "whatever")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("Verify(%q)=(%v,%v) want ErrInvalidHash", enc, ok, err)
		}
	}
}

func TestVerify_RefusesOversizedParams(t *testing.T) {
	t.Parallel()

	strong := New(Params{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	enc, err := strong.Hash("pw")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if _, err := New(FastParams()).Verify(enc, "pw"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for a hash far above the hasher's cost, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	t.Parallel()

	fast := New(FastParams())
	enc, err := fast.Hash("pw")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if fast.NeedsRehash(enc) {
		t.Fatalf("hash made with the current params must not need a rehash")
	}

	stronger := New(Params{MemoryKiB: 16 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if !stronger.NeedsRehash(enc) {
		t.Fatalf("weaker hash should need a rehash")
	}
	if !fast.NeedsRehash("garbage") {
		t.Fatalf("malformed hash should need a rehash")
	}
}
