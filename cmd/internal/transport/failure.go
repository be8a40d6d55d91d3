package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed exchange.
type Kind int

const (
	// KindValidation is a 4xx other than 401/403.
	KindValidation Kind = iota + 1
	// KindAuth is a 401 or 403.
	KindAuth
	// KindTransport is a network error, timeout or cancellation; no response was read.
	KindTransport
	// KindServer is a 5xx, an unexpected status, or a malformed response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

var (
	ErrValidation = errors.New("validation failure")
	ErrAuth       = errors.New("auth failure")
	ErrTransport  = errors.New("transport failure")
	ErrServer     = errors.New("server failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindAuth:
		return ErrAuth
	case KindTransport:
		return ErrTransport
	default:
		return ErrServer
	}
}

// Failure is the normalized error for a request that did not produce a 2xx.
type Failure struct {
	Kind   Kind
	Status int // 0 for transport failures
	Method string
	Path   string

	// Code and Message come from the server's JSON error body when present.
	Code    string
	Message string
	// Fields holds per-field validation messages (DRF style).
	Fields map[string][]string
	// Payload is the raw response body.
	Payload []byte

	Err error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Kind.sentinel().Error())
	if f.Method != "" {
		fmt.Fprintf(&b, ": %s %s", f.Method, f.Path)
	}
	if f.Status != 0 {
		fmt.Fprintf(&b, ": status %d", f.Status)
	}
	if f.Code != "" {
		fmt.Fprintf(&b, ": %s", f.Code)
	}
	if f.Message != "" {
		fmt.Fprintf(&b, ": %s", f.Message)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the sentinel for the failure kind.
func (f *Failure) Is(target error) bool { return target == f.Kind.sentinel() }

// AsFailure extracts a *Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// KindOf returns the failure kind of err, or 0 when err is not a *Failure.
func KindOf(err error) Kind {
	if f, ok := AsFailure(err); ok {
		return f.Kind
	}
	return 0
}

// IsAuth reports whether err is a 401/403 failure.
func IsAuth(err error) bool { return errors.Is(err, ErrAuth) }

// ClassifyStatus maps a non-2xx status to a failure kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}

func newStatusFailure(method, path string, status int, body []byte) *Failure {
	f := &Failure{
		Kind:    ClassifyStatus(status),
		Status:  status,
		Method:  method,
		Path:    path,
		Payload: body,
	}
	f.Code, f.Message, f.Fields = parseErrorPayload(body)
	if f.Message == "" {
		f.Message = http.StatusText(status)
	}
	return f
}

// parseErrorPayload reads the common error shapes:
//
//	{"detail": "...", "code": "..."}            (DRF / simplejwt)
//	{"error": "...", "message": "..."}
//	{"username": ["already exists"], ...}       (DRF field errors)
func parseErrorPayload(body []byte) (code, message string, fields map[string][]string) {
	var m map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &m) != nil {
		return "", "", nil
	}

	str := func(key string) string {
		raw, ok := m[key]
		if !ok {
			return ""
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return ""
		}
		return s
	}

	code = str("code")
	message = str("detail")
	if message == "" {
		message = str("message")
	}
	if e := str("error"); e != "" {
		if code == "" && !strings.Contains(e, " ") {
			code = e
		} else if message == "" {
			message = e
		}
	}

	for k, raw := range m {
		var list []string
		if json.Unmarshal(raw, &list) != nil || len(list) == 0 {
			continue
		}
		if fields == nil {
			fields = make(map[string][]string)
		}
		fields[k] = list
	}

	if message == "" && len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		message = keys[0] + ": " + fields[keys[0]][0]
	}
	return code, message, fields
}
