// Package transport owns the websocket lifecycle for workflow sessions:
// dialing, keep-alive, bounded exponential-backoff reconnection and
// teardown. It hands inbound frames to its caller verbatim and performs
// no interpretation beyond answering protocol-level pings.
package transport

import (
	"errors"
	"strings"
	"time"
)

// ErrNotConnected is returned when a send is attempted without an open
// connection. Callers decide whether to queue, retry or surface it.
var ErrNotConnected = errors.New("no open connection for session")

// Config configures the session registry.
type Config struct {
	// URL is the stream endpoint base, e.g. ws://host/api/workflows.
	// The per-session endpoint is URL/<workflow-id>/stream.
	URL string
	// Token, when set, is carried as a query parameter on the dial URL.
	Token string

	DialTimeout       time.Duration
	KeepAliveInterval time.Duration

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectJitter      float64
}

func (c Config) withDefaults() Config {
	out := c
	out.URL = strings.TrimRight(strings.TrimSpace(out.URL), "/")
	if out.DialTimeout <= 0 {
		out.DialTimeout = 15 * time.Second
	}
	if out.KeepAliveInterval <= 0 {
		out.KeepAliveInterval = 30 * time.Second
	}
	if out.MaxReconnectAttempts <= 0 {
		out.MaxReconnectAttempts = 5
	}
	if out.ReconnectBaseDelay <= 0 {
		out.ReconnectBaseDelay = time.Second
	}
	if out.ReconnectMaxDelay <= 0 {
		out.ReconnectMaxDelay = 30 * time.Second
	}
	return out
}

// Events are the registry's upward-facing callbacks. All of them are
// optional and are invoked without registry locks held, so handlers may
// call back into the registry (including Send and Close).
type Events struct {
	// OnMessage delivers an inbound text frame verbatim. Frames from one
	// connection are delivered in the order the transport received them.
	OnMessage func(workflowID string, data []byte)
	// OnConnected fires after a successful dial, initial or reconnect.
	OnConnected func(workflowID string)
	// OnReconnecting fires when a reconnect attempt has been scheduled.
	OnReconnecting func(workflowID string, attempt int, delay time.Duration)
	// OnReconnectExhausted fires once the attempt bound is hit. No
	// further automatic dials happen until Reconnect or Open is called.
	OnReconnectExhausted func(workflowID string)
	// OnClosed fires after a caller-initiated close has torn the
	// session down.
	OnClosed func(workflowID string)
}
