package transport

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	inkerrors "inkwell/internal/errors"
	"inkwell/internal/jsonx"
	"inkwell/internal/logging"
	"inkwell/internal/protocol"
)

type sessionStatus int

const (
	statusConnecting sessionStatus = iota
	statusConnected
	statusDisconnected
)

// session tracks one workflow's connection. The generation counter is
// bumped whenever the session is closed or superseded; goroutines spawned
// for an earlier generation check it before touching state, which is what
// keeps callbacks from a replaced socket from mutating the current one.
type session struct {
	id  string
	gen uint64

	status   sessionStatus
	conn     *websocket.Conn
	attempts int
	closed   bool

	writeMu        sync.Mutex
	reconnectTimer *time.Timer
	stopKeepAlive  chan struct{}
}

// Registry maintains at most one live connection per workflow session.
// It is an explicit object rather than package state so its lifetime is
// owned by whoever constructs it.
type Registry struct {
	cfg    Config
	log    logging.Logger
	events Events
	dialer *websocket.Dialer

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry creates a session registry.
func NewRegistry(cfg Config, logger logging.Logger, events Events) *Registry {
	cfg = cfg.withDefaults()
	return &Registry{
		cfg:      cfg,
		log:      logging.OrNop(logger),
		events:   events,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		sessions: make(map[string]*session),
	}
}

func (r *Registry) sessionURL(workflowID string) string {
	endpoint := fmt.Sprintf("%s/%s/stream", r.cfg.URL, url.PathEscape(workflowID))
	if r.cfg.Token != "" {
		query := url.Values{"token": []string{r.cfg.Token}}
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

// Open establishes a connection for the workflow. It is a no-op when a
// connection is already open or opening, which guards against
// duplicate-connect races from rapid re-entry. A session left
// disconnected by an exhausted retry budget is dialed fresh with the
// counter reset.
func (r *Registry) Open(workflowID string) error {
	r.mu.Lock()
	s := r.sessions[workflowID]
	if s != nil && !s.closed && s.status != statusDisconnected {
		r.mu.Unlock()
		r.log.Debug("open %s: connection already %v, ignoring", workflowID, s.status)
		return nil
	}
	if s != nil {
		// superseded leftover; make sure its callbacks go quiet
		s.gen++
		s.closed = true
		r.stopTimersLocked(s)
	}
	s = &session{
		id:            workflowID,
		status:        statusConnecting,
		stopKeepAlive: make(chan struct{}),
	}
	r.sessions[workflowID] = s
	gen := s.gen
	r.mu.Unlock()

	return r.dial(s, gen)
}

// Reconnect resets the attempt counter and dials again. It is the manual
// retry affordance for a session whose automatic retries were exhausted.
func (r *Registry) Reconnect(workflowID string) error {
	r.mu.Lock()
	s := r.sessions[workflowID]
	if s == nil || s.closed {
		r.mu.Unlock()
		return r.Open(workflowID)
	}
	if s.status == statusConnected {
		r.mu.Unlock()
		return nil
	}
	// supersede any scheduled automatic redial: the generation bump makes
	// a pending timer callback or in-flight dial a no-op, so the manual
	// dial below is the only path to a new socket
	s.gen++
	r.stopTimersLocked(s)
	s.attempts = 0
	s.status = statusConnecting
	gen := s.gen
	r.mu.Unlock()

	return r.dial(s, gen)
}

// IsConnected reports whether the workflow has an open connection.
func (r *Registry) IsConnected(workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[workflowID]
	return s != nil && !s.closed && s.status == statusConnected
}

// Attempts reports the session's current reconnect-attempt counter.
func (r *Registry) Attempts(workflowID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sessions[workflowID]; s != nil {
		return s.attempts
	}
	return 0
}

// Send writes a text frame on the workflow's connection. It fails with
// ErrNotConnected when no connection is open; it never queues.
func (r *Registry) Send(workflowID string, data []byte) error {
	r.mu.Lock()
	s := r.sessions[workflowID]
	if s == nil || s.closed || s.status != statusConnected || s.conn == nil {
		r.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	r.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Close tears the session down: it cancels the reconnect and keep-alive
// timers before the socket goes away, then sends a normal close frame.
// Closing an unknown or already-closed session is a no-op.
func (r *Registry) Close(workflowID, reason string) error {
	r.mu.Lock()
	s := r.sessions[workflowID]
	if s == nil {
		r.mu.Unlock()
		return nil
	}
	delete(r.sessions, workflowID)
	s.closed = true
	s.gen++
	r.stopTimersLocked(s)
	conn := s.conn
	s.conn = nil
	s.status = statusDisconnected
	r.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, message, deadline)
		s.writeMu.Unlock()
		_ = conn.Close()
	}

	r.log.Info("closed session %s (%s)", workflowID, reason)
	if r.events.OnClosed != nil {
		r.events.OnClosed(workflowID)
	}
	return nil
}

// CloseAll closes every live session. Intended for shutdown paths.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_ = r.Close(id, reason)
	}
}

// stopTimersLocked cancels the session's timers. Callers hold r.mu.
func (r *Registry) stopTimersLocked(s *session) {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	if s.stopKeepAlive != nil {
		close(s.stopKeepAlive)
		s.stopKeepAlive = nil
	}
}

func (r *Registry) dial(s *session, gen uint64) error {
	endpoint := r.sessionURL(s.id)
	conn, resp, err := r.dialer.Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		r.log.Warn("dial %s failed: %v", s.id, err)
		r.scheduleReconnect(s, gen)
		return fmt.Errorf("dial %s: %w", s.id, err)
	}

	r.mu.Lock()
	if s.closed || s.gen != gen {
		r.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.status = statusConnected
	s.attempts = 0
	// one keep-alive loop per connection; a superseded loop exits on its
	// next tick when it sees the connection it was bound to is gone
	stop := make(chan struct{})
	s.stopKeepAlive = stop
	r.mu.Unlock()

	r.log.Info("connected session %s", s.id)

	go r.readLoop(s, conn, gen)
	go r.keepAlive(s, gen, conn, stop)

	if r.events.OnConnected != nil {
		r.events.OnConnected(s.id)
	}
	return nil
}

// readLoop pumps inbound frames. Frames from one connection are handed
// upward in delivery order; protocol pings are answered in place and not
// forwarded.
func (r *Registry) readLoop(s *session, conn *websocket.Conn, gen uint64) {
	var closeErr error
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeErr = err
			break
		}
		if isPingFrame(data) {
			if pong, err := protocol.EncodePong(); err == nil {
				s.writeMu.Lock()
				_ = conn.WriteMessage(websocket.TextMessage, pong)
				s.writeMu.Unlock()
			}
			continue
		}
		if r.events.OnMessage != nil {
			r.events.OnMessage(s.id, data)
		}
	}
	_ = conn.Close()

	r.mu.Lock()
	if s.closed || s.gen != gen || s.conn != conn {
		// caller-initiated close or superseded socket; the session's
		// current connection is someone else's to manage
		r.mu.Unlock()
		return
	}
	s.conn = nil
	s.status = statusDisconnected
	r.mu.Unlock()

	if websocket.IsCloseError(closeErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		// server tore the session down on purpose; fighting it with a
		// reconnect would reopen a workflow the backend considers done
		r.log.Info("session %s closed by server: %v", s.id, closeErr)
		return
	}

	r.log.Warn("session %s connection lost: %v", s.id, closeErr)
	r.scheduleReconnect(s, gen)
}

func (r *Registry) keepAlive(s *session, gen uint64, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(r.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			stale := s.closed || s.gen != gen || s.conn != conn
			r.mu.Unlock()
			if stale {
				return
			}
			ping, err := protocol.EncodePing()
			if err != nil {
				continue
			}
			if err := r.Send(s.id, ping); err != nil {
				// the read loop will notice the dead socket
				r.log.Debug("keep-alive for %s failed: %v", s.id, err)
			}
		}
	}
}

func (r *Registry) scheduleReconnect(s *session, gen uint64) {
	r.mu.Lock()
	if s.closed || s.gen != gen {
		r.mu.Unlock()
		return
	}
	if s.attempts >= r.cfg.MaxReconnectAttempts {
		s.status = statusDisconnected
		r.mu.Unlock()
		r.log.Error("session %s: reconnect attempts exhausted after %d tries", s.id, r.cfg.MaxReconnectAttempts)
		if r.events.OnReconnectExhausted != nil {
			r.events.OnReconnectExhausted(s.id)
		}
		return
	}

	attempt := s.attempts
	s.attempts++
	attempts := s.attempts
	s.status = statusConnecting
	delay := inkerrors.BackoffDelay(attempt, inkerrors.RetryConfig{
		BaseDelay:    r.cfg.ReconnectBaseDelay,
		MaxDelay:     r.cfg.ReconnectMaxDelay,
		JitterFactor: r.cfg.ReconnectJitter,
	})
	s.reconnectTimer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if s.closed || s.gen != gen {
			r.mu.Unlock()
			return
		}
		s.reconnectTimer = nil
		r.mu.Unlock()
		_ = r.dial(s, gen)
	})
	r.mu.Unlock()

	r.log.Info("session %s: reconnect attempt %d/%d in %v", s.id, attempts, r.cfg.MaxReconnectAttempts, delay)
	if r.events.OnReconnecting != nil {
		r.events.OnReconnecting(s.id, attempts, delay)
	}
}

func isPingFrame(data []byte) bool {
	var frame struct {
		Type string `json:"type"`
	}
	if err := jsonx.Unmarshal(data, &frame); err != nil {
		return false
	}
	return frame.Type == protocol.FramePing
}
