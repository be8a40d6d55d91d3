package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to validation failures).
var (
	ErrInvalidInput = errors.New("invalid_input")
)
