package token

import "errors"

// Public, stable errors for callers.
var (
	ErrKeyMissing  = errors.New("token: secret key missing")
	ErrKeyTooShort = errors.New("token: secret key too short")
)
