package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"studydeck/cmd/identity"
	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/auth/gate"
	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/token"
)

var (
	// ErrStaleResponse is returned when a login or refresh completed after a
	// later logout, register or login. Its result was not applied.
	ErrStaleResponse = errors.New("flow: response superseded by a later session change")

	// ErrNoSession is returned by Refresh when no refresh credential is stored.
	ErrNoSession = errors.New("flow: no stored session")
)

// Config holds the backend endpoint paths.
type Config struct {
	LoginPath    string
	RegisterPath string
	RefreshPath  string
}

// DefaultConfig returns the simplejwt / DRF paths.
func DefaultConfig() Config {
	return Config{
		LoginPath:    "/api/token/",
		RegisterPath: "/api/user/register/",
		RefreshPath:  "/api/token/refresh/",
	}
}

// Metrics counts auth outcomes. *metrics.Recorder implements it.
type Metrics interface {
	AuthOperation(op, result string)
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets the flow logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMetrics sets the outcome counter.
func WithMetrics(m Metrics) Option {
	return func(f *Flow) { f.metrics = m }
}

// Flow orchestrates login, registration, logout and refresh.
type Flow struct {
	cfg     Config
	client  *transport.Client
	store   *credstore.Store
	tracker *gate.Tracker
	log     *slog.Logger
	metrics Metrics

	// mu serializes "check generation + store write" and "advance + clear".
	mu  sync.Mutex
	gen uint64
}

// New wires a Flow. Empty config paths fall back to DefaultConfig.
func New(cfg Config, client *transport.Client, store *credstore.Store, tracker *gate.Tracker, opts ...Option) *Flow {
	def := DefaultConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.RegisterPath == "" {
		cfg.RegisterPath = def.RegisterPath
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = def.RefreshPath
	}

	f := &Flow{
		cfg:     cfg,
		client:  client,
		store:   store,
		tracker: tracker,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the tracked session state.
func (f *Flow) State() gate.State { return f.tracker.State() }

type credentialsBody struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

func (f *Flow) advanceLocked() uint64 {
	f.gen++
	return f.gen
}

func (f *Flow) current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen
}

func (f *Flow) count(op string, err error) {
	if f.metrics == nil {
		return
	}
	f.metrics.AuthOperation(op, resultLabel(err))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStaleResponse):
		return "stale"
	}
	if k := transport.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}

// invalidInput maps a local identity validation error onto the same failure
// type the backend's validation errors use.
func invalidInput(path string, err error) *transport.Failure {
	f := &transport.Failure{
		Kind:    transport.KindValidation,
		Method:  http.MethodPost,
		Path:    path,
		Code:    "invalid_input",
		Message: err.Error(),
		Err:     err,
	}
	if field := identity.FieldOf(err); field != "" {
		var oe identity.OpError
		if errors.As(err, &oe) {
			f.Fields = map[string][]string{field: {oe.Msg}}
			f.Message = field + ": " + oe.Msg
		}
	}
	return f
}

// Login exchanges id for a credential pair and stores it.
// On any failure the store is left exactly as it was.
func (f *Flow) Login(ctx context.Context, id identity.Identity) (err error) {
	defer func() { f.count("login", err) }()

	id, err = id.Normalized()
	if err != nil {
		return invalidInput(f.cfg.LoginPath, err)
	}

	f.mu.Lock()
	gen := f.advanceLocked()
	f.mu.Unlock()

	resp, err := f.client.PostJSON(ctx, f.cfg.LoginPath,
		credentialsBody{Username: id.Username, Password: id.Password},
		transport.WithoutCredential(),
	)
	if err != nil {
		f.log.InfoContext(ctx, "auth.login.fail", "identity", id, "kind", transport.KindOf(err).String(), "err", err)
		return err
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		f.log.WarnContext(ctx, "auth.login.fail", "identity", id, "err", err)
		return err
	}
	if pair.Access == "" || pair.Refresh == "" {
		f.log.WarnContext(ctx, "auth.login.fail", "identity", id, "code", "malformed_session")
		return &transport.Failure{
			Kind:    transport.KindServer,
			Status:  resp.Status,
			Method:  http.MethodPost,
			Path:    f.cfg.LoginPath,
			Code:    "malformed_session",
			Message: "login response is missing the access or refresh credential",
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gen != gen {
		f.log.InfoContext(ctx, "auth.login.stale", "identity", id)
		return ErrStaleResponse
	}
	if err := f.store.Set(pair.Access, pair.Refresh); err != nil {
		return fmt.Errorf("flow: store credentials: %w", err)
	}
	f.tracker.MarkAuthenticated()

	f.log.InfoContext(ctx, "auth.login.success", "identity", id, "token_fp", token.Fingerprint(pair.Access))
	return nil
}

// Register creates an account. It clears any stored session first and does
// not log the new user in.
func (f *Flow) Register(ctx context.Context, id identity.Identity) (err error) {
	defer func() { f.count("register", err) }()

	f.mu.Lock()
	f.advanceLocked()
	clearErr := f.store.Clear()
	f.tracker.Reset()
	f.mu.Unlock()

	if clearErr != nil {
		f.log.WarnContext(ctx, "auth.register.clear_fail", "err", clearErr)
		return fmt.Errorf("flow: clear previous session: %w", clearErr)
	}

	id, err = id.Normalized()
	if err != nil {
		return invalidInput(f.cfg.RegisterPath, err)
	}

	if _, err := f.client.PostJSON(ctx, f.cfg.RegisterPath,
		credentialsBody{Username: id.Username, Password: id.Password},
		transport.WithoutCredential(),
	); err != nil {
		f.log.InfoContext(ctx, "auth.register.fail", "identity", id, "kind", transport.KindOf(err).String(), "err", err)
		return err
	}

	f.log.InfoContext(ctx, "auth.register.success", "identity", id)
	return nil
}

// Logout clears the store and marks the session logged out. It never touches
// the network. Memory is cleared even when the returned error is non-nil.
func (f *Flow) Logout() (err error) {
	defer func() { f.count("logout", err) }()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.advanceLocked()
	err = f.store.Clear()
	f.tracker.MarkLoggedOut()

	if err != nil {
		f.log.Warn("auth.logout.persist_error", "err", err)
		return fmt.Errorf("flow: clear session: %w", err)
	}
	f.log.Info("auth.logout")
	return nil
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

// Refresh trades the stored refresh credential for a new access credential.
// A rotated refresh credential is stored when the backend returns one. An
// auth failure from the refresh endpoint expires the session.
func (f *Flow) Refresh(ctx context.Context) (err error) {
	defer func() { f.count("refresh", err) }()

	refresh, ok := f.store.Get(credstore.KindRefresh)
	if !ok {
		return ErrNoSession
	}
	gen := f.current()

	resp, err := f.client.PostJSON(ctx, f.cfg.RefreshPath, refreshBody{Refresh: refresh}, transport.WithoutCredential())
	if err != nil {
		if transport.IsAuth(err) {
			f.mu.Lock()
			// A concurrent refresh may already have rotated the pair past the one sent.
			if cur, _ := f.store.Get(credstore.KindRefresh); f.gen == gen && cur == refresh {
				if xerr := f.tracker.Expire("refresh_rejected"); xerr != nil {
					f.log.WarnContext(ctx, "auth.refresh.persist_error", "err", xerr)
				}
			}
			f.mu.Unlock()
		}
		f.log.InfoContext(ctx, "auth.refresh.fail", "kind", transport.KindOf(err).String(), "err", err)
		return err
	}

	var pair tokenPair
	if err := resp.Decode(&pair); err != nil {
		return err
	}
	if pair.Access == "" {
		return &transport.Failure{
			Kind:    transport.KindServer,
			Status:  resp.Status,
			Method:  http.MethodPost,
			Path:    f.cfg.RefreshPath,
			Code:    "malformed_session",
			Message: "refresh response is missing the access credential",
		}
	}
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.gen != gen {
		f.log.InfoContext(ctx, "auth.refresh.stale")
		return ErrStaleResponse
	}
	if cur, _ := f.store.Get(credstore.KindRefresh); cur != refresh {
		return ErrStaleResponse
	}
	if err := f.store.Set(pair.Access, pair.Refresh); err != nil {
		return fmt.Errorf("flow: store credentials: %w", err)
	}
	f.tracker.MarkAuthenticated()

	f.log.InfoContext(ctx, "auth.refresh.success", "token_fp", token.Fingerprint(pair.Access))
	return nil
}
