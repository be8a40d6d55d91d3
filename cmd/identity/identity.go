package identity

import (
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// Limits mirror the backend's user model.
const (
	MaxUsernameLen = 150
	MaxPasswordLen = 4096
)

// Identity is a username + password pair submitted by the user.
type Identity struct {
	Username string
	Password string
}

// New returns a normalized Identity.
func New(username, password string) Identity {
	return Identity{Username: NormalizeUsername(username), Password: password}
}

// Validate checks the identity is complete enough to send.
// Passwords are not trimmed or otherwise altered; only emptiness and size are checked.
func (id Identity) Validate() error {
	const op = "identity.Validate"

	u := NormalizeUsername(id.Username)
	switch {
	case u == "":
		return OpError{Op: op, Kind: ErrInvalidInput, Field: "username", Msg: "required"}
	case utf8.RuneCountInString(u) > MaxUsernameLen:
		return OpError{Op: op, Kind: ErrInvalidInput, Field: "username", Msg: "too long"}
	case id.Password == "":
		return OpError{Op: op, Kind: ErrInvalidInput, Field: "password", Msg: "required"}
	case len(id.Password) > MaxPasswordLen:
		return OpError{Op: op, Kind: ErrInvalidInput, Field: "password", Msg: "too long"}
	}
	return nil
}

// Normalized returns a copy with the username normalized, or a validation error.
func (id Identity) Normalized() (Identity, error) {
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return New(id.Username, id.Password), nil
}

// String never includes the password.
func (id Identity) String() string {
	return fmt.Sprintf("Identity{Username: %q, Password: [redacted]}", id.Username)
}

// LogValue implements slog.LogValuer.
func (id Identity) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", id.Username))
}
