package credstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"studydeck/cmd/security/token"
)

const defaultBackendTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. nil means slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBackendTimeout bounds each backend call made by Set and Clear.
func WithBackendTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Store is the in-process view of the credential pair.
//
// All reads are served from memory. Writes go to the backend first (Set) or
// memory first (Clear) under the same lock, so Get always observes the most
// recent Set or Clear that returned before it was called.
type Store struct {
	mu      sync.RWMutex
	pair    Pair
	version uint64
	closed  bool

	backend Backend
	log     *slog.Logger
	timeout time.Duration
}

// Open builds a Store over backend and loads any persisted pair.
// A nil backend means a MemoryBackend.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Store{
		backend: backend,
		log:     slog.Default(),
		timeout: defaultBackendTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	p, ok, err := backend.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		s.log.Warn("credstore.load.corrupt", "backend", backend.Name(), "err", err)
		if derr := backend.Delete(ctx); derr != nil {
			return nil, &OpError{Op: "Open", Backend: backend.Name(), Err: derr}
		}
		return s, nil
	case err != nil:
		return nil, &OpError{Op: "Open", Backend: backend.Name(), Err: err}
	case !ok || p.Empty():
		return s, nil
	case !p.Complete():
		s.log.Warn("credstore.load.partial", "backend", backend.Name())
		if derr := backend.Delete(ctx); derr != nil {
			return nil, &OpError{Op: "Open", Backend: backend.Name(), Err: derr}
		}
		return s, nil
	}

	s.pair = p
	s.log.Info("credstore.load", "backend", backend.Name(), "token_fp", token.Fingerprint(p.Access))
	return s, nil
}

// NewMemory returns a Store with no persistence.
func NewMemory(opts ...Option) *Store {
	s, _ := Open(context.Background(), NewMemoryBackend(), opts...)
	return s
}

// Set replaces both credentials. A partial pair is rejected with ErrPartialPair.
// If the backend write fails the in-memory pair is unchanged.
func (s *Store) Set(access, refresh string) error {
	p := Pair{Access: access, Refresh: refresh}
	if !p.Complete() {
		return ErrPartialPair
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &OpError{Op: "Set", Backend: s.backend.Name(), Err: ErrBackendClosed}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Save(ctx, p); err != nil {
		return &OpError{Op: "Set", Backend: s.backend.Name(), Err: err}
	}

	s.pair = p
	s.version++
	s.log.Debug("credstore.set", "token_fp", token.Fingerprint(access), "version", s.version)
	return nil
}

// Get returns the credential of the given kind.
func (s *Store) Get(kind Kind) (string, bool) {
	s.mu.RLock()
	v := s.pair.Value(kind)
	s.mu.RUnlock()
	return v, v != ""
}

// Snapshot returns both credentials read under one lock.
func (s *Store) Snapshot() Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}

// Version increments on every successful Set or Clear.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Clear removes both credentials. It is idempotent.
// Memory is always cleared; a backend failure is returned as *OpError.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked("Clear")
}

// CompareAndClear clears the store only if the current access credential is access.
// It reports whether a clear happened.
func (s *Store) CompareAndClear(access string) (bool, error) {
	if access == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair.Access != access {
		return false, nil
	}
	return true, s.clearLocked("CompareAndClear")
}

func (s *Store) clearLocked(op string) error {
	had := !s.pair.Empty()
	s.pair = Pair{}
	s.version++
	if had {
		s.log.Debug("credstore.clear", "op", op, "version", s.version)
	}

	if s.closed {
		return &OpError{Op: op, Backend: s.backend.Name(), Err: ErrBackendClosed}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Delete(ctx); err != nil {
		s.log.Warn("credstore.clear.backend_error", "backend", s.backend.Name(), "err", err)
		return &OpError{Op: op, Backend: s.backend.Name(), Err: err}
	}
	return nil
}

// Backend returns the backend name.
func (s *Store) Backend() string { return s.backend.Name() }

// Close releases the backend. The in-memory pair stays readable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
