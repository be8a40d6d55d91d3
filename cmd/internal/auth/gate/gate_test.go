package gate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/transport"
)

type countingMetrics struct {
	transitions map[string]int
	decisions   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[string]int{}, decisions: map[string]int{}}
}

func (m *countingMetrics) SessionTransition(from, to string) { m.transitions[from+"->"+to]++ }
func (m *countingMetrics) GateDecision(d string)             { m.decisions[d]++ }

func authFailure(credential string, status int) transport.Exchange {
	return transport.Exchange{
		Method:     http.MethodDelete,
		Path:       "/api/topic/delete/5",
		Credential: credential,
		Status:     status,
		Failure:    &transport.Failure{Kind: transport.ClassifyStatus(status), Status: status},
	}
}

func TestDecide_PresenceOnly(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	g := New(store, nil)

	if d := g.Decide(); d != RedirectToLogin {
		t.Fatalf("Decide before login=%s want redirect_to_login", d)
	}
	_ = store.Set("A1", "R1")
	if d := g.Decide(); d != Allow {
		t.Fatalf("Decide after login=%s want allow", d)
	}
	_ = store.Clear()
	if d := g.Decide(); d != RedirectToLogin {
		t.Fatalf("Decide after clear=%s want redirect_to_login", d)
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	m := newCountingMetrics()
	tr := NewTracker(store, WithTrackerMetrics(m))
	g := New(store, tr)

	if s := tr.State(); s != StateUnauthenticated {
		t.Fatalf("initial state=%s", s)
	}

	_ = store.Set("A1", "R1")
	tr.MarkAuthenticated()
	if s := tr.State(); s != StateAuthenticated {
		t.Fatalf("after login state=%s", s)
	}

	tr.ObserveExchange(context.Background(), authFailure("A1", http.StatusUnauthorized))
	if s := tr.State(); s != StateExpired {
		t.Fatalf("after 401 state=%s want expired", s)
	}
	if p := store.Snapshot(); !p.Empty() {
		t.Fatalf("store not cleared on expiry: %+v", p)
	}
	if d := g.Decide(); d != RedirectToLogin {
		t.Fatalf("Decide after expiry=%s", d)
	}

	_ = store.Set("A2", "R2")
	tr.MarkAuthenticated()
	if s := tr.State(); s != StateAuthenticated {
		t.Fatalf("after re-login state=%s", s)
	}

	_ = store.Clear()
	tr.MarkLoggedOut()
	if s := tr.State(); s != StateUnauthenticated {
		t.Fatalf("after logout state=%s", s)
	}

	want := map[string]int{
		"unauthenticated->authenticated": 1,
		"authenticated->expired":         1,
		"expired->authenticated":         1,
		"authenticated->unauthenticated": 1,
	}
	for k, v := range want {
		if m.transitions[k] != v {
			t.Fatalf("transitions[%s]=%d want %d (all=%v)", k, m.transitions[k], v, m.transitions)
		}
	}
}

func TestTracker_ForbiddenAlsoExpires(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	_ = store.Set("A1", "R1")
	tr := NewTracker(store)

	tr.ObserveExchange(context.Background(), authFailure("A1", http.StatusForbidden))
	if s := tr.State(); s != StateExpired {
		t.Fatalf("state=%s want expired", s)
	}
}

func TestTracker_IgnoresIrrelevantFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ex   transport.Exchange
	}{
		{name: "stale credential", ex: authFailure("A0", http.StatusUnauthorized)},
		{name: "no credential sent", ex: authFailure("", http.StatusUnauthorized)},
		{name: "server error", ex: authFailure("A1", http.StatusInternalServerError)},
		{name: "validation error", ex: authFailure("A1", http.StatusBadRequest)},
		{name: "success", ex: transport.Exchange{Credential: "A1", Status: 200}},
		{name: "transport", ex: transport.Exchange{Credential: "A1", Failure: &transport.Failure{Kind: transport.KindTransport}}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := credstore.NewMemory()
			_ = store.Set("A1", "R1")
			tr := NewTracker(store)

			tr.ObserveExchange(context.Background(), tc.ex)
			if s := tr.State(); s != StateAuthenticated {
				t.Fatalf("state=%s want authenticated", s)
			}
			if v, _ := store.Get(credstore.KindAccess); v != "A1" {
				t.Fatalf("store changed: %q", v)
			}
		})
	}
}

func TestTracker_ExpireAndReset(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	_ = store.Set("A1", "R1")
	tr := NewTracker(store)

	if err := tr.Expire("manual"); err != nil {
		t.Fatalf("Expire: %v", err)
	}
	if s := tr.State(); s != StateExpired {
		t.Fatalf("state=%s", s)
	}
	tr.Reset()
	if s := tr.State(); s != StateUnauthenticated {
		t.Fatalf("after Reset state=%s", s)
	}
	if err := tr.Expire("nothing stored"); err != nil {
		t.Fatalf("Expire on empty store: %v", err)
	}
	if s := tr.State(); s != StateUnauthenticated {
		t.Fatalf("Expire on empty store changed state to %s", s)
	}
}

func TestDecide_CountsDecisions(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	m := newCountingMetrics()
	g := New(store, nil, WithMetrics(m))

	g.Decide()
	_ = store.Set("A1", "R1")
	g.Decide()
	g.Decide()

	if m.decisions["redirect_to_login"] != 1 || m.decisions["allow"] != 2 {
		t.Fatalf("decisions=%v", m.decisions)
	}
}

func signedAccess(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret-not-known-to-client"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestDecide_ExpiryCheck(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cases := []struct {
		name   string
		access string
		want   Decision
		state  State
	}{
		{name: "valid jwt", access: signedAccess(t, now.Add(5*time.Minute)), want: Allow, state: StateAuthenticated},
		{name: "expired jwt", access: signedAccess(t, now.Add(-time.Minute)), want: RedirectToLogin, state: StateExpired},
		{name: "within skew", access: signedAccess(t, now.Add(10*time.Second)), want: RedirectToLogin, state: StateExpired},
		{name: "opaque credential", access: "A1", want: Allow, state: StateAuthenticated},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := credstore.NewMemory()
			_ = store.Set(tc.access, "R1")
			tr := NewTracker(store)
			g := New(store, tr, WithExpiryCheck(clock, 30*time.Second))

			if d := g.Decide(); d != tc.want {
				t.Fatalf("Decide=%s want %s", d, tc.want)
			}
			if s := tr.State(); s != tc.state {
				t.Fatalf("state=%s want %s", s, tc.state)
			}
			if tc.want == RedirectToLogin && !store.Snapshot().Empty() {
				t.Fatalf("expired credential left in store")
			}
		})
	}
}

func TestDecide_ExpiryCheckOffByDefault(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	_ = store.Set(signedAccess(t, time.Now().Add(-time.Hour)), "R1")
	if d := New(store, nil).Decide(); d != Allow {
		t.Fatalf("presence-only gate must not read expiry, got %s", d)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	store := credstore.NewMemory()
	tr := NewTracker(store)
	g := New(store, tr)

	called := 0
	h := g.Middleware("/login")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	// Browser navigation is redirected.
	req := httptest.NewRequest(http.MethodGet, "/topics/flashcards/3?x=1", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status=%d want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?next=%2Ftopics%2Fflashcards%2F3%3Fx%3D1" {
		t.Fatalf("Location=%q", loc)
	}

	// API request gets 401 JSON.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d want 401", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "login_required" || body["state"] != "unauthenticated" || body["login"] != "/login" {
		t.Fatalf("body=%v", body)
	}
	if called != 0 {
		t.Fatalf("protected handler ran without a credential")
	}

	_ = store.Set("A1", "R1")
	tr.MarkAuthenticated()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics", nil))
	if rec.Code != http.StatusOK || called != 1 {
		t.Fatalf("status=%d called=%d", rec.Code, called)
	}

	tr.ObserveExchange(context.Background(), authFailure("A1", http.StatusUnauthorized))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics", nil))
	body = nil
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if rec.Code != http.StatusUnauthorized || body["state"] != "expired" {
		t.Fatalf("after expiry status=%d body=%v", rec.Code, body)
	}
}

func TestEvict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		accept   string
		wantCode int
		wantLoc  string
	}{
		{name: "browser", accept: "text/html", wantCode: http.StatusSeeOther, wantLoc: "/login?next=%2Ftopics"},
		{name: "api", accept: "application/json", wantCode: http.StatusUnauthorized},
		{name: "no accept", wantCode: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/topics", nil)
		if tc.accept != "" {
			req.Header.Set("Accept", tc.accept)
		}
		if got := WantsHTML(req); got != (tc.wantCode == http.StatusSeeOther) {
			t.Fatalf("%s: WantsHTML=%v", tc.name, got)
		}

		rec := httptest.NewRecorder()
		Evict(rec, req, "/login", StateExpired)
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: status=%d want %d", tc.name, rec.Code, tc.wantCode)
		}
		if loc := rec.Header().Get("Location"); loc != tc.wantLoc {
			t.Fatalf("%s: Location=%q want %q", tc.name, loc, tc.wantLoc)
		}
		if tc.wantCode == http.StatusUnauthorized {
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body["state"] != "expired" {
				t.Fatalf("%s: body=%v err=%v", tc.name, body, err)
			}
		}
	}
}
