package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Field names the offending input ("username", "password"). Msg never contains secrets.
type OpError struct {
	Op    string
	Kind  error
	Field string
	Msg   string
}

func (e OpError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %v: %s: %s", e.Op, e.Kind, e.Field, e.Msg)
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e OpError) Unwrap() error { return e.Kind }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// FieldOf returns the offending field of an OpError, or "".
func FieldOf(err error) string {
	var oe OpError
	if errors.As(err, &oe) {
		return oe.Field
	}
	return ""
}
