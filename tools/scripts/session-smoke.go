// Package main provides a CI-friendly smoke test for the studydeck session lifecycle.
//
// It validates, against a live backend (or an in-process fake when -api is empty):
//   - register does not log in
//   - login stores a pair and the next request carries it
//   - the bearer also rides the WebSocket handshake
//   - refresh replaces the access credential
//   - logout clears the pair and later requests carry no credential
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"studydeck/cmd/identity"
	"studydeck/cmd/internal/auth/credstore"
	"studydeck/cmd/internal/auth/flow"
	"studydeck/cmd/internal/auth/gate"
	"studydeck/cmd/internal/devbackend"
	"studydeck/cmd/internal/study"
	"studydeck/cmd/internal/transport"
	"studydeck/cmd/security/token"
)

// lastExchange remembers the most recent exchange so each step can check what was sent.
type lastExchange struct {
	mu sync.Mutex
	ex transport.Exchange
}

func (l *lastExchange) ObserveExchange(_ context.Context, ex transport.Exchange) {
	l.mu.Lock()
	l.ex = ex
	l.mu.Unlock()
}

func (l *lastExchange) get() transport.Exchange {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ex
}

func main() {
	var (
		apiURL   = flag.String("api", "", "Backend base URL; empty starts an in-process fake")
		user     = flag.String("user", "", "Username to register (default: generated)")
		password = flag.String("password", "smoke-Passw0rd!", "Password for the smoke user")
		wsPath   = flag.String("ws", "/ws/ping", "Echo WebSocket path; empty skips the stream step")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if strings.TrimSpace(*apiURL) == "" {
		srv := httptest.NewServer(devbackend.New(devbackend.Options{Logger: log}))
		defer srv.Close()
		*apiURL = srv.URL
	}
	if *user == "" {
		*user = fmt.Sprintf("smoke-%d", time.Now().UnixNano())
	}

	store := credstore.NewMemory(credstore.WithLogger(log))
	tracker := gate.NewTracker(store, gate.WithTrackerLogger(log))
	last := &lastExchange{}

	client, err := transport.New(transport.Config{BaseURL: *apiURL, Timeout: *timeout}, store,
		transport.WithLogger(log),
		transport.WithObservers(tracker, last),
	)
	if err != nil {
		fatalf("client: %v", err)
	}
	auth := flow.New(flow.DefaultConfig(), client, store, tracker, flow.WithLogger(log))
	topics := study.NewTopics(client, 0)
	id := identity.New(*user, *password)
	root := context.Background()

	step(root, *timeout, "register", func(ctx context.Context) error {
		if err := auth.Register(ctx, id); err != nil {
			return err
		}
		if !store.Snapshot().Empty() {
			return errors.New("register stored credentials")
		}
		return nil
	})

	step(root, *timeout, "login", func(ctx context.Context) error {
		if err := auth.Login(ctx, id); err != nil {
			return err
		}
		if auth.State() != gate.StateAuthenticated {
			return fmt.Errorf("state=%s after login", auth.State())
		}
		return nil
	})

	step(root, *timeout, "list topics", func(ctx context.Context) error {
		if _, err := topics.List(ctx); err != nil {
			return err
		}
		access, _ := store.Get(credstore.KindAccess)
		if got := last.get().Credential; got != access {
			return fmt.Errorf("request carried %q, want stored access %q", token.Fingerprint(got), token.Fingerprint(access))
		}
		return nil
	})

	if *wsPath != "" {
		step(root, *timeout, "stream", func(ctx context.Context) error {
			conn, err := client.DialStream(ctx, *wsPath)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

			if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				return err
			}
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return err
			}
			if string(msg) != "ping" {
				return fmt.Errorf("echo mismatch: %q", msg)
			}
			return nil
		})
	}

	step(root, *timeout, "refresh", func(ctx context.Context) error {
		before, _ := store.Get(credstore.KindAccess)
		if err := auth.Refresh(ctx); err != nil {
			return err
		}
		after, _ := store.Get(credstore.KindAccess)
		if after == "" || after == before {
			return errors.New("refresh did not replace the access credential")
		}
		return nil
	})

	step(root, *timeout, "logout", func(context.Context) error {
		if err := auth.Logout(); err != nil {
			return err
		}
		if !store.Snapshot().Empty() || auth.State() != gate.StateUnauthenticated {
			return fmt.Errorf("store not cleared, state=%s", auth.State())
		}
		return nil
	})

	step(root, *timeout, "no credential after logout", func(ctx context.Context) error {
		_, err := topics.List(ctx)
		if !transport.IsAuth(err) {
			return fmt.Errorf("want auth failure, got %v", err)
		}
		if got := last.get().Credential; got != "" {
			return fmt.Errorf("request after logout carried credential %s", token.Fingerprint(got))
		}
		if auth.State() != gate.StateUnauthenticated {
			return fmt.Errorf("state=%s, an anonymous 401 must not demote", auth.State())
		}
		return nil
	})

	fmt.Printf("OK: api=%s user=%s\n", *apiURL, *user)
}

func step(parent context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		fatalf("%s: %v", name, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
