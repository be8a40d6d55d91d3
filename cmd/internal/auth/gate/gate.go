package gate

import (
	"log/slog"
	"time"

	"studydeck/cmd/internal/auth/credstore"
)

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithMetrics sets the decision counter.
func WithMetrics(m Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithExpiryCheck makes Decide read the access credential's "exp" claim,
// when it is a JWT, and treat a credential expiring within skew of now as
// already expired. Non-JWT credentials fall back to the presence check.
func WithExpiryCheck(now func() time.Time, skew time.Duration) Option {
	return func(g *Gate) {
		if now == nil {
			now = time.Now
		}
		if skew < 0 {
			skew = 0
		}
		g.now, g.skew, g.checkExpiry = now, skew, true
	}
}

// Gate is the admission check consulted before every protected view.
type Gate struct {
	store   *credstore.Store
	tracker *Tracker

	checkExpiry bool
	now         func() time.Time
	skew        time.Duration

	log     *slog.Logger
	metrics Metrics
}

// New returns a Gate over store. tracker may be nil; it is needed to record
// expiry when WithExpiryCheck is set.
func New(store *credstore.Store, tracker *Tracker, opts ...Option) *Gate {
	g := &Gate{store: store, tracker: tracker, log: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decide returns Allow iff an access credential is present.
func (g *Gate) Decide() Decision {
	d := g.decide()
	if g.metrics != nil {
		g.metrics.GateDecision(d.String())
	}
	return d
}

func (g *Gate) decide() Decision {
	access, ok := g.store.Get(credstore.KindAccess)
	if !ok {
		return RedirectToLogin
	}
	if !g.checkExpiry {
		return Allow
	}

	expired, structured := accessExpired(access, g.now(), g.skew)
	if !structured || !expired {
		return Allow
	}

	if g.tracker != nil {
		if _, err := g.tracker.ExpireCredential(access, "token_expired"); err != nil {
			g.log.Warn("gate.expire.persist_error", "err", err)
		}
	} else if _, err := g.store.CompareAndClear(access); err != nil {
		g.log.Warn("gate.expire.persist_error", "err", err)
	}
	return RedirectToLogin
}
