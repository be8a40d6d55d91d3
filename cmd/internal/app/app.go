// Package app wires the studydeck local shell: config, logging, the credential
// store, the backend client, the session gate and the HTTP route table.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/auth/flow"
	"studydeck/cmd/internal/auth/gate"
	"studydeck/cmd/internal/metrics"
	"studydeck/cmd/internal/study"
	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/sealbox"
	"studydeck/cmd/security/token"
)

// App is the studydeck runtime. It owns the credential store and the HTTP server.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	recorder *metrics.Recorder

	store   *credstore.Store
	tracker *gate.Tracker
	gate    *gate.Gate
	client  *transport.Client
	flow    *flow.Flow
	topics  *study.Topics
	cards   *study.Flashcards

	dbPool  *pgxpool.Pool
	handler http.Handler
}

// Option customizes New. Tests use it to inject a backend.
type Option func(*options)

type options struct {
	backend    credstore.Backend
	httpClient *http.Client
	now        func() time.Time
}

// WithCredentialBackend bypasses STUDYDECK_CRED_BACKEND.
func WithCredentialBackend(b credstore.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithClock overrides the clock used by the gate expiry check.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New constructs a fully wired App from config and logger.
func New(ctx context.Context, cfg Config, log Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	a := &App{cfg: cfg, log: log}

	backend := o.backend
	if backend == nil {
		var err error
		backend, err = a.newCredentialBackend(ctx)
		if err != nil {
			a.closeDB()
			return nil, err
		}
	}

	store, err := credstore.Open(ctx, backend, credstore.WithLogger(log))
	if err != nil {
		_ = backend.Close()
		a.closeDB()
		return nil, err
	}
	a.store = store

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.recorder = metrics.New(a.registry)

	a.tracker = gate.NewTracker(store,
		gate.WithTrackerLogger(log),
		gate.WithTrackerMetrics(a.recorder),
	)

	gateOpts := []gate.Option{gate.WithLogger(log), gate.WithMetrics(a.recorder)}
	if cfg.GateExpiryCheck {
		gateOpts = append(gateOpts, gate.WithExpiryCheck(o.now, cfg.GateClockSkew))
	}
	a.gate = gate.New(store, a.tracker, gateOpts...)

	clientOpts := []transport.Option{
		transport.WithLogger(log),
		// Order matters: the tracker demotes the session before the exchange is counted.
		transport.WithObservers(a.tracker, a.recorder),
	}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, transport.WithHTTPClient(o.httpClient))
	}
	a.client, err = transport.New(transport.Config{
		BaseURL:          cfg.APIURL,
		Timeout:          cfg.HTTPTimeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	}, store, clientOpts...)
	if err != nil {
		_ = store.Close()
		a.closeDB()
		return nil, err
	}

	a.flow = flow.New(cfg.FlowConfig(), a.client, store, a.tracker,
		flow.WithLogger(log),
		flow.WithMetrics(a.recorder),
	)
	a.topics = study.NewTopics(a.client, cfg.MaxUploadBytes)
	a.cards = study.NewFlashcards(a.client)

	a.handler = a.routes()

	log.Info("app.ready",
		"api", a.client.BaseURL(),
		"cred_backend", store.Backend(),
		"state", a.tracker.State().String(),
		"gate_expiry_check", cfg.GateExpiryCheck,
	)
	return a, nil
}

// Handler returns the shell's HTTP handler, without request logging.
func (a *App) Handler() http.Handler { return a.handler }

// Flow exposes the auth flow to callers that drive it without HTTP.
func (a *App) Flow() *flow.Flow { return a.flow }

// newCredentialBackend builds the persistence selected by STUDYDECK_CRED_BACKEND,
// sealed when STUDYDECK_CRED_SEAL_KEY is set.
func (a *App) newCredentialBackend(ctx context.Context) (credstore.Backend, error) {
	cfg := a.cfg

	var backend credstore.Backend
	switch cfg.CredBackend {
	case BackendMemory:
		backend = credstore.NewMemoryBackend()

	case BackendBolt:
		path, err := expandHome(cfg.CredPath)
		if err != nil {
			return nil, err
		}
		b, err := credstore.OpenBolt(path, cfg.CredProfile)
		if err != nil {
			return nil, err
		}
		backend = b

	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		backend = credstore.NewRedisBackend(client, credstore.RedisOptions{
			Prefix:      cfg.RedisPrefix,
			Profile:     cfg.CredProfile,
			TTL:         cfg.RedisTTL,
			CloseClient: true,
		})

	case BackendPostgres:
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		pg := credstore.NewPostgresBackend(pool, cfg.CredProfile)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		backend = pg

	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.CredBackend)
	}

	secret, err := token.KeyFromEnv(token.SealKeyEnv, sealbox.MinSecretBytes)
	switch {
	case errors.Is(err, token.ErrKeyMissing):
		a.log.Info("credstore.unsealed", "backend", backend.Name())
		return backend, nil
	case err != nil:
		_ = backend.Close()
		return nil, err
	}

	sealed, err := credstore.Seal(backend, secret, cfg.CredProfile)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return sealed, nil
}

func (a *App) closeDB() {
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

// Close releases the credential store and the database pool.
func (a *App) Close() error {
	err := a.store.Close()
	a.closeDB()
	return err
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(a.handler, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 60*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "api", a.client.BaseURL())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		_ = a.Close()
		return err
	}

	if err := a.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
