package gate

import (
	"context"
	"log/slog"
	"sync"

	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/token"
)

// Metrics receives session and gate counters. *metrics.Recorder implements it.
type Metrics interface {
	SessionTransition(from, to string)
	GateDecision(decision string)
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the tracker logger.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// WithTrackerMetrics sets the transition counter.
func WithTrackerMetrics(m Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

// Tracker is the session state machine over a credential store.
//
//	unauthenticated --login--> authenticated --logout--> unauthenticated
//	authenticated --401/403--> expired --login--> authenticated
type Tracker struct {
	mu    sync.Mutex
	store *credstore.Store

	// expired is set once the backend rejected the credential stored in rejected.
	expired  bool
	rejected string
	last     State

	log     *slog.Logger
	metrics Metrics
}

// NewTracker returns a tracker whose initial state follows the store contents.
func NewTracker(store *credstore.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.last = t.stateLocked()
	return t
}

func (t *Tracker) stateLocked() State {
	access, ok := t.store.Get(credstore.KindAccess)
	if t.expired && (!ok || access == t.rejected) {
		return StateExpired
	}
	if ok {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// transitionLocked records a move to the current state, if it changed.
func (t *Tracker) transitionLocked(reason string) State {
	to := t.stateLocked()
	if to == t.last {
		return to
	}
	from := t.last
	t.last = to

	t.log.Info("session.transition", "from", from.String(), "to", to.String(), "reason", reason)
	if t.metrics != nil {
		t.metrics.SessionTransition(from.String(), to.String())
	}
	return to
}

// State returns the current session state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked("store")
}

// MarkAuthenticated records a successful login. Call after store.Set.
func (t *Tracker) MarkAuthenticated() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expired, t.rejected = false, ""
	t.transitionLocked("login")
}

// MarkLoggedOut records a logout. Call after store.Clear.
func (t *Tracker) MarkLoggedOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expired, t.rejected = false, ""
	t.transitionLocked("logout")
}

// Reset forgets any expiry, used when registration wipes the session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expired, t.rejected = false, ""
	t.transitionLocked("reset")
}

// Expire demotes the current session to expired and clears the store.
// Memory is cleared even when the returned persistence error is non-nil.
func (t *Tracker) Expire(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	access, ok := t.store.Get(credstore.KindAccess)
	if !ok {
		return nil
	}
	t.expired, t.rejected = true, access
	err := t.store.Clear()
	t.transitionLocked(reason)
	return err
}

// ExpireCredential expires the session only if access is still the stored
// credential. It reports whether the session was demoted.
func (t *Tracker) ExpireCredential(access, reason string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared, err := t.store.CompareAndClear(access)
	if !cleared {
		return false, err
	}
	t.expired, t.rejected = true, access
	t.transitionLocked(reason)
	return true, err
}

// ObserveExchange implements transport.Observer.
//
// Only an auth failure for the credential that is still stored demotes the
// session. A late 401 for a replaced credential, or for a request that carried
// none, leaves the state alone.
func (t *Tracker) ObserveExchange(ctx context.Context, ex transport.Exchange) {
	if ex.Failure == nil || ex.Failure.Kind != transport.KindAuth || ex.Credential == "" {
		return
	}

	demoted, err := t.ExpireCredential(ex.Credential, "backend_rejected")
	switch {
	case err != nil:
		t.log.WarnContext(ctx, "session.expire.persist_error", "err", err, "request_id", ex.RequestID)
	case !demoted:
		t.log.DebugContext(ctx, "session.rejection.stale",
			"token_fp", token.Fingerprint(ex.Credential),
			"status", ex.Status,
			"request_id", ex.RequestID,
		)
	}
}
