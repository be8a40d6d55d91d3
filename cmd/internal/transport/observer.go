package transport

import (
	"context"
	"time"
)

// Exchange describes one completed request.
type Exchange struct {
	Method    string
	Path      string
	RequestID string
	// Credential is the bearer token the request carried, or "" when none was sent.
	// Observers must not log it.
	Credential string
	Status     int
	Duration   time.Duration
	// Failure is nil for 2xx responses.
	Failure *Failure
}

// Observer is notified after every exchange, in registration order,
// before Request returns.
type Observer interface {
	ObserveExchange(ctx context.Context, ex Exchange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ex Exchange)

func (f ObserverFunc) ObserveExchange(ctx context.Context, ex Exchange) { f(ctx, ex) }
