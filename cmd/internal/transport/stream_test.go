package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"studydeck/cmd/internal/auth/credstore"
)

func TestDialStream_AttachesBearer(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		typ, msg, err := c.Read(ctx)
		if err != nil {
			return
		}
		_ = c.Write(ctx, typ, msg)
	}))
	t.Cleanup(srv.Close)

	store := credstore.NewMemory()
	_ = store.Set("A1", "R1")
	c := newTestClient(t, srv.URL, store)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := c.DialStream(ctx, "/ws/ping")
	if err != nil {
		t.Fatalf("DialStream: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if got := <-gotAuth; got != "Bearer A1" {
		t.Fatalf("Authorization=%q", got)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, msg, err := conn.Read(ctx)
	if err != nil || string(msg) != "ping" {
		t.Fatalf("Read=%q,%v", msg, err)
	}
}

func TestDialStream_RejectedHandshakeIsFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Authentication credentials were not provided."}`))
	}))
	t.Cleanup(srv.Close)

	var observed Exchange
	c := newTestClient(t, srv.URL, credstore.NewMemory(), WithObservers(ObserverFunc(func(_ context.Context, ex Exchange) {
		observed = ex
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := c.DialStream(ctx, "/ws/ping")
	f, ok := AsFailure(err)
	if !ok || f.Kind != KindAuth || f.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v want auth failure", err)
	}
	if f.Message != "Authentication credentials were not provided." {
		t.Fatalf("message=%q", f.Message)
	}
	if observed.Failure == nil || observed.Status != http.StatusUnauthorized {
		t.Fatalf("observer saw %+v", observed)
	}
}
