package password

import "errors"

// Public, stable errors for callers.
var (
	ErrEmptyPassword   = errors.New("password: empty password")
	ErrPasswordTooLong = errors.New("password: password too long")
	ErrInvalidHash     = errors.New("password: invalid hash")
)
