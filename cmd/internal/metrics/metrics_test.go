package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"studydeck/cmd/internal/transport"
)

func TestObserveExchange_CountsByClass(t *testing.T) {
	t.Parallel()

	r := New(prometheus.NewRegistry())

	r.ObserveExchange(context.Background(), transport.Exchange{Method: "GET", Status: 200, Duration: 10 * time.Millisecond})
	r.ObserveExchange(context.Background(), transport.Exchange{Method: "GET", Status: 204})
	r.ObserveExchange(context.Background(), transport.Exchange{Method: "DELETE", Status: 401,
		Failure: &transport.Failure{Kind: transport.KindAuth, Status: 401}})
	r.ObserveExchange(context.Background(), transport.Exchange{Method: "GET",
		Failure: &transport.Failure{Kind: transport.KindTransport}})

	if got := testutil.ToFloat64(r.requests.WithLabelValues("GET", "2xx")); got != 2 {
		t.Fatalf("GET 2xx=%v want 2", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("DELETE", "4xx")); got != 1 {
		t.Fatalf("DELETE 4xx=%v want 1", got)
	}
	if got := testutil.ToFloat64(r.requests.WithLabelValues("GET", "transport")); got != 1 {
		t.Fatalf("GET transport=%v want 1", got)
	}
	if n := testutil.CollectAndCount(r.latency); n != 2 {
		t.Fatalf("latency series=%d want 2", n)
	}
}

func TestCounters(t *testing.T) {
	t.Parallel()

	r := New(nil)
	r.SessionTransition("authenticated", "expired")
	r.GateDecision("redirect_to_login")
	r.GateDecision("redirect_to_login")
	r.AuthOperation("login", "ok")

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("authenticated", "expired")); got != 1 {
		t.Fatalf("transitions=%v", got)
	}
	if got := testutil.ToFloat64(r.decisions.WithLabelValues("redirect_to_login")); got != 2 {
		t.Fatalf("decisions=%v", got)
	}
	if got := testutil.ToFloat64(r.authOps.WithLabelValues("login", "ok")); got != 1 {
		t.Fatalf("authOps=%v", got)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	r.ObserveExchange(context.Background(), transport.Exchange{})
	r.SessionTransition("a", "b")
	r.GateDecision("allow")
	r.AuthOperation("login", "ok")
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	r := New(reg)
	r.GateDecision("allow")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `studydeck_gate_decisions_total{decision="allow"} 1`) {
		t.Fatalf("metrics output missing gate counter:\n%s", body)
	}
}
