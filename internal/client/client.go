package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"inkwell/internal/logging"
	"inkwell/internal/observability"
	"inkwell/internal/state"
	"inkwell/internal/transport"
)

// resolvedMemorySize bounds how many resolved checkpoint ids we remember
// for distinguishing duplicate resolutions from unknown ones.
const resolvedMemorySize = 64

// Hooks are optional callbacks fired as the session state changes. They
// run on the stream's read goroutine, so a single workflow's hooks never
// fire concurrently; handlers must not block for long.
type Hooks struct {
	OnMessage          func(state.Message)
	OnCheckpoint       func(state.PendingCheckpoint)
	OnHumanInput       func(state.PendingHumanInput)
	OnStatusChange     func(state.WorkflowStatus)
	OnConnectionChange func(state.ConnectionStatus)
	OnComplete         func(finalContent string)
}

// Options configures a workflow client.
type Options struct {
	// WorkflowID identifies the workflow to attach to. Required.
	WorkflowID string

	// BaseURL is the HTTP origin of the workflow service, e.g.
	// http://host:8080. Used for checkpoint decisions, status and
	// history. Required unless StreamURL is set and no REST calls
	// are needed.
	BaseURL string

	// StreamURL is the websocket base ending in /api/workflows.
	// Derived from BaseURL when empty.
	StreamURL string

	// Token is sent as a bearer token on REST calls and a query
	// parameter on the stream URL.
	Token string

	RequestTimeout       time.Duration
	DialTimeout          time.Duration
	KeepAliveInterval    time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// BootstrapHistory loads prior messages over REST before the
	// stream opens, so a rejoining client sees the full transcript.
	BootstrapHistory bool

	Logger  logging.Logger
	Metrics *observability.MetricsCollector
	Hooks   Hooks
}

// Client attaches to one workflow: it owns the session store, the
// websocket registry and the REST collaborator, and translates stream
// events into store updates.
type Client struct {
	workflowID string
	store      *state.Store
	registry   *transport.Registry
	api        *API
	log        logging.Logger
	metrics    *observability.MetricsCollector
	hooks      Hooks

	bootstrapHistory bool

	// resolved remembers recently resolved checkpoint ids so a late
	// duplicate resolution can be told apart from one for a
	// checkpoint we never saw.
	resolved *lru.Cache[string, struct{}]

	completeOnce sync.Once
}

// New validates options and builds a client. The stream is not opened
// until Start.
func New(opts Options) (*Client, error) {
	opts.WorkflowID = strings.TrimSpace(opts.WorkflowID)
	if opts.WorkflowID == "" {
		return nil, errors.New("workflow id is required")
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	opts.StreamURL = strings.TrimSpace(opts.StreamURL)
	if opts.StreamURL == "" {
		if opts.BaseURL == "" {
			return nil, errors.New("base url or stream url is required")
		}
		opts.StreamURL = deriveStreamURL(opts.BaseURL)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	logger := logging.OrNop(opts.Logger)
	resolved, err := lru.New[string, struct{}](resolvedMemorySize)
	if err != nil {
		return nil, fmt.Errorf("init resolved checkpoint cache: %w", err)
	}

	c := &Client{
		workflowID:       opts.WorkflowID,
		store:            state.NewStore(opts.WorkflowID),
		log:              logger,
		metrics:          opts.Metrics,
		hooks:            opts.Hooks,
		bootstrapHistory: opts.BootstrapHistory,
		resolved:         resolved,
	}
	c.registry = transport.NewRegistry(transport.Config{
		URL:                  opts.StreamURL,
		Token:                opts.Token,
		DialTimeout:          opts.DialTimeout,
		KeepAliveInterval:    opts.KeepAliveInterval,
		MaxReconnectAttempts: opts.MaxReconnectAttempts,
		ReconnectBaseDelay:   opts.ReconnectBaseDelay,
		ReconnectMaxDelay:    opts.ReconnectMaxDelay,
	}, logger, transport.Events{
		OnMessage:            c.handleFrame,
		OnConnected:          c.handleConnected,
		OnReconnecting:       c.handleReconnecting,
		OnReconnectExhausted: c.handleExhausted,
		OnClosed:             c.handleClosed,
	})
	if opts.BaseURL != "" {
		c.api = NewAPI(opts.BaseURL, opts.Token, opts.RequestTimeout, logger, opts.Metrics)
	}
	return c, nil
}

func deriveStreamURL(baseURL string) string {
	stream := baseURL
	switch {
	case strings.HasPrefix(stream, "https://"):
		stream = "wss://" + strings.TrimPrefix(stream, "https://")
	case strings.HasPrefix(stream, "http://"):
		stream = "ws://" + strings.TrimPrefix(stream, "http://")
	}
	return stream + "/api/workflows"
}

// Start opens the stream for the client's workflow. When history
// bootstrap is enabled, prior messages load first so live events append
// after them. A dial failure is returned but reconnection keeps running
// in the background.
func (c *Client) Start(ctx context.Context) error {
	c.metrics.SessionStarted(ctx)
	if c.bootstrapHistory && c.api != nil {
		c.loadHistory(ctx)
	}
	c.setConnection(state.ConnConnecting)
	if err := c.registry.Open(c.workflowID); err != nil {
		return fmt.Errorf("open workflow stream: %w", err)
	}
	return nil
}

func (c *Client) loadHistory(ctx context.Context) {
	messages, err := c.api.History(ctx, c.workflowID)
	if err != nil {
		c.log.Warn("history bootstrap failed, continuing without it: %v", err)
		return
	}
	for _, msg := range messages {
		c.appendMessage(msg)
	}
	c.log.Debug("bootstrapped %d history messages for %s", len(messages), c.workflowID)
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() {
	_ = c.registry.Close(c.workflowID, "client closed")
	c.metrics.SessionEnded(context.Background())
}

// Reconnect forces a fresh dial and resets the reconnection budget. Use
// it to resume after the automatic attempts are exhausted.
func (c *Client) Reconnect() error {
	c.store.Apply(state.ReconnectAttemptsSet{Attempts: 0})
	c.setConnection(state.ConnConnecting)
	return c.registry.Reconnect(c.workflowID)
}

// Store exposes the session store for reads and subscriptions.
func (c *Client) Store() *state.Store { return c.store }

// Snapshot returns a copy of the current session state.
func (c *Client) Snapshot() state.Snapshot { return c.store.Snapshot() }

func (c *Client) handleConnected(string) {
	c.store.Apply(state.ReconnectAttemptsSet{Attempts: 0})
	c.setConnection(state.ConnConnected)
}

func (c *Client) handleReconnecting(_ string, attempt int, delay time.Duration) {
	c.metrics.RecordReconnect(context.Background())
	c.store.Apply(state.ReconnectAttemptsSet{Attempts: attempt})
	c.setConnection(state.ConnConnecting)
	c.appendSystem(fmt.Sprintf("connection lost, retrying in %s (attempt %d)", delay.Round(time.Millisecond), attempt))
}

func (c *Client) handleExhausted(string) {
	c.setConnection(state.ConnDisconnected)
	c.appendSystem("connection lost and automatic retries are exhausted; reconnect to resume")
}

func (c *Client) handleClosed(string) {
	c.setConnection(state.ConnDisconnected)
}

func (c *Client) setConnection(status state.ConnectionStatus) {
	if c.store.Connection() == status {
		return
	}
	c.store.Apply(state.ConnectionSet{Status: status})
	if c.hooks.OnConnectionChange != nil {
		c.hooks.OnConnectionChange(status)
	}
}

func (c *Client) setWorkflow(status state.WorkflowStatus) {
	if c.store.Workflow() == status {
		return
	}
	c.store.Apply(state.WorkflowSet{Status: status})
	if c.hooks.OnStatusChange != nil {
		c.hooks.OnStatusChange(status)
	}
}

// appendMessage fills in identity and timing defaults, applies the
// append and fires the message hook. Empty content is dropped here so
// hooks never see messages the store would reject.
func (c *Client) appendMessage(msg state.Message) {
	if strings.TrimSpace(msg.Content) == "" {
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.WorkflowID == "" {
		msg.WorkflowID = c.workflowID
	}
	c.store.Apply(state.MessageAppend{Message: msg})
	c.metrics.RecordMessage(context.Background(), string(msg.Kind))
	if c.hooks.OnMessage != nil {
		c.hooks.OnMessage(msg)
	}
}

func (c *Client) appendSystem(content string) {
	c.appendMessage(state.Message{Kind: state.KindSystem, Sender: "system", Content: content})
}
