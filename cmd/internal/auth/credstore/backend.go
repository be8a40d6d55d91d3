package credstore

import (
	"context"
	"sync"
)

// Backend persists a single credential pair.
//
// Save and Delete must be atomic with respect to Load: a concurrent or
// subsequent Load sees either the old pair or the new one, never a mix.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Load returns the persisted pair. ok is false when nothing is stored.
	// A partially stored pair is returned with ok=true; the Store purges it.
	Load(ctx context.Context) (p Pair, ok bool, err error)
	Save(ctx context.Context, p Pair) error
	Delete(ctx context.Context) error
	Close() error
}

// MemoryBackend keeps the pair only for the life of the process.
type MemoryBackend struct {
	mu   sync.Mutex
	pair Pair
	set  bool
}

// NewMemoryBackend returns an empty volatile backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Load(context.Context) (Pair, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair, m.set, nil
}

func (m *MemoryBackend) Save(_ context.Context, p Pair) error {
	m.mu.Lock()
	m.pair, m.set = p, true
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(context.Context) error {
	m.mu.Lock()
	m.pair, m.set = Pair{}, false
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
