package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	inkerrors "inkwell/internal/errors"
	"inkwell/internal/logging"
)

// breakerTransport fails fast once the workflow API has been unhealthy
// for a while, so checkpoint decisions and status polls stop piling onto
// a backend that cannot answer them.
type breakerTransport struct {
	next    http.RoundTripper
	breaker *inkerrors.CircuitBreaker
}

// NewWithCircuitBreaker builds an HTTP client whose transport trips open
// after repeated failures. name labels the breaker in logs and errors.
func NewWithCircuitBreaker(timeout time.Duration, logger logging.Logger, name string) *http.Client {
	return NewWithCircuitBreakerConfig(timeout, logger, name, inkerrors.DefaultCircuitBreakerConfig())
}

// NewWithCircuitBreakerConfig is NewWithCircuitBreaker with explicit
// breaker thresholds.
func NewWithCircuitBreakerConfig(timeout time.Duration, logger logging.Logger, name string, config inkerrors.CircuitBreakerConfig) *http.Client {
	if name == "" {
		name = "http-client"
	}
	client := New(timeout, logger)
	client.Transport = &breakerTransport{
		next:    client.Transport,
		breaker: inkerrors.NewCircuitBreaker(name, config),
	}
	return client
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	switch {
	case errors.Is(err, context.Canceled):
		// the caller walked away; says nothing about backend health
		t.breaker.Mark(nil)
	case err != nil:
		t.breaker.Mark(err)
	case backendFailure(resp.StatusCode):
		t.breaker.Mark(fmt.Errorf("http status %d", resp.StatusCode))
	default:
		t.breaker.Mark(nil)
	}
	return resp, err
}

// backendFailure decides which statuses count against the breaker.
// Client errors (4xx) stay out: a rejected checkpoint id or bad token is
// the caller's problem, not backend unhealth. 429 counts because more
// traffic is exactly what an overloaded backend does not need.
func backendFailure(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
