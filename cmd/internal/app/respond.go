package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"studydeck/cmd/internal/auth/flow"
	"studydeck/cmd/internal/auth/gate"
	"studydeck/cmd/internal/transport"
)

const maxFormBytes = 1 << 20

type errorBody struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Message string              `json:"message,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Status  int                 `json:"status,omitempty"`
	State   string              `json:"state,omitempty"`
	Login   string              `json:"login,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// isFormPost reports a classic browser form submission.
func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

// navigate finishes a state-changing request: browsers follow a 303, API callers get JSON.
func navigate(w http.ResponseWriter, r *http.Request, target string, status int, body any) {
	if gate.WantsHTML(r) || isFormPost(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}
	writeJSON(w, status, body)
}

// safeNext keeps post-login redirects on this origin.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return HomeRoute
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return HomeRoute
	}
	return next
}

// evict sends the caller back to the login view.
func (a *App) evict(w http.ResponseWriter, r *http.Request) {
	gate.Evict(w, r, LoginRoute, a.tracker.State())
}

// fail renders err. On a protected view an auth failure evicts to login;
// everything else is shown inline with the backend status preserved.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, protected bool) {
	if protected && transport.IsAuth(err) {
		a.log.InfoContext(r.Context(), "shell.evict", "path", r.URL.Path, "state", a.tracker.State().String())
		a.evict(w, r)
		return
	}

	switch {
	case errors.Is(err, flow.ErrStaleResponse):
		writeJSON(w, http.StatusConflict, errorBody{Error: "stale_response", Message: err.Error()})
		return
	case errors.Is(err, flow.ErrNoSession):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no_session", State: a.tracker.State().String(), Login: LoginRoute})
		return
	}

	f, ok := transport.AsFailure(err)
	if !ok {
		a.log.ErrorContext(r.Context(), "shell.error", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal"})
		return
	}

	writeJSON(w, failureStatus(f), errorBody{
		Error:   f.Kind.String(),
		Code:    f.Code,
		Message: f.Message,
		Fields:  f.Fields,
		Status:  f.Status,
	})
}

// failureStatus preserves the backend's error status. Failures raised on a
// 2xx (malformed or oversized bodies) or before any response map to 502/504/400.
func failureStatus(f *transport.Failure) int {
	if f.Status >= 400 {
		return f.Status
	}
	switch f.Kind {
	case transport.KindValidation:
		return http.StatusBadRequest
	case transport.KindTransport:
		if f.Code == "timeout" {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}
