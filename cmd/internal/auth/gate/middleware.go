package gate

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// Middleware admits requests through Decide and sends everything else to Evict.
func (g *Gate) Middleware(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Decide() == Allow {
				next.ServeHTTP(w, r)
				return
			}

			state := StateUnauthenticated
			if g.tracker != nil {
				state = g.tracker.State()
			}
			Evict(w, r, loginPath, state)
		})
	}
}

// Evict sends a refused request to login. A browser navigation is redirected
// with 303 to loginPath?next=<original>; any other request gets a 401 JSON body.
func Evict(w http.ResponseWriter, r *http.Request, loginPath string, state State) {
	if WantsHTML(r) {
		http.Redirect(w, r, loginPath+"?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "login_required",
		"state": state.String(),
		"login": loginPath,
	})
}

// WantsHTML reports a browser navigation.
func WantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
