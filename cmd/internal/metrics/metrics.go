// Package metrics exposes studydeck's Prometheus instruments.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studydeck/cmd/internal/transport"
)

const namespace = "studydeck"

// Recorder holds the registered instruments.
type Recorder struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	authOps     *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
// A nil reg creates unregistered instruments.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Backend requests by method and outcome class.",
		}, []string{"method", "class"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Session gate admission decisions.",
		}, []string{"decision"}),
		authOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Login, register, logout and refresh outcomes.",
		}, []string{"op", "result"}),
	}
}

// Class buckets an exchange outcome for the requests counter.
func Class(ex transport.Exchange) string {
	if ex.Failure != nil && ex.Failure.Kind == transport.KindTransport {
		return "transport"
	}
	if ex.Status < 100 || ex.Status > 599 {
		return "other"
	}
	return strconv.Itoa(ex.Status/100) + "xx"
}

// ObserveExchange implements transport.Observer.
func (r *Recorder) ObserveExchange(_ context.Context, ex transport.Exchange) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(ex.Method, Class(ex)).Inc()
	r.latency.WithLabelValues(ex.Method).Observe(ex.Duration.Seconds())
}

// SessionTransition counts a session state change.
func (r *Recorder) SessionTransition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

// GateDecision counts one admission decision.
func (r *Recorder) GateDecision(decision string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(decision).Inc()
}

// AuthOperation counts one auth flow outcome. result is "ok" or a failure kind.
func (r *Recorder) AuthOperation(op, result string) {
	if r == nil {
		return
	}
	r.authOps.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
