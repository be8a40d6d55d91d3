package identity

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		in        Identity
		wantField string
	}{
		{name: "ok", in: Identity{Username: "alice", Password: "pw"}},
		{name: "blank username", in: Identity{Username: "   ", Password: "pw"}, wantField: "username"},
		{name: "empty password", in: Identity{Username: "alice"}, wantField: "password"},
		{name: "long username", in: Identity{Username: strings.Repeat("a", MaxUsernameLen+1), Password: "pw"}, wantField: "username"},
		{name: "long password", in: Identity{Username: "alice", Password: strings.Repeat("p", MaxPasswordLen+1)}, wantField: "password"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.in.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: unexpected error %v", err)
				}
				return
			}
			if !IsInvalidInput(err) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if got := FieldOf(err); got != tc.wantField {
				t.Fatalf("FieldOf()=%q want=%q", got, tc.wantField)
			}
		})
	}
}

func TestNormalizedKeepsPasswordAndCase(t *testing.T) {
	t.Parallel()

	id, err := Identity{Username: "  Alice ", Password: " pw "}.Normalized()
	if err != nil {
		t.Fatalf("Normalized: %v", err)
	}
	if id.Username != "Alice" {
		t.Fatalf("username=%q want Alice", id.Username)
	}
	if id.Password != " pw " {
		t.Fatalf("password must not be altered, got %q", id.Password)
	}
}

func TestPasswordNeverFormatted(t *testing.T) {
	t.Parallel()

	id := New("alice", "hunter2")

	for _, s := range []string{id.String(), fmt.Sprint(id), fmt.Sprintf("%v", id)} {
		if strings.Contains(s, "hunter2") {
			t.Fatalf("password leaked in %q", s)
		}
	}

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	log.Info("auth.login", "identity", id)
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("password leaked in log: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "alice") {
		t.Fatalf("username missing from log: %s", buf.String())
	}
}
