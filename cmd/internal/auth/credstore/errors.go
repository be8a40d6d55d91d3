package credstore

import (
	"errors"
	"fmt"
)

var (
	// ErrPartialPair is returned when Set is called without both credentials.
	ErrPartialPair = errors.New("credstore: partial credential pair")

	// ErrBackendClosed is returned for writes after Close.
	ErrBackendClosed = errors.New("credstore: backend closed")

	// ErrCorrupt is returned by a backend whose persisted pair cannot be decoded.
	// Open treats it as absent and purges it.
	ErrCorrupt = errors.New("credstore: corrupt persisted credentials")
)

// OpError wraps a backend failure with the store operation and backend name.
type OpError struct {
	Op      string
	Backend string
	Err     error
}

func (e *OpError) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("credstore.%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("credstore.%s (%s): %v", e.Op, e.Backend, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
