package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	inkerrors "inkwell/internal/errors"
	"inkwell/internal/httpclient"
	"inkwell/internal/jsonx"
	"inkwell/internal/logging"
	"inkwell/internal/observability"
	"inkwell/internal/protocol"
	"inkwell/internal/state"
)

const maxResponseBytes = 1 << 20

// API is the REST collaborator: checkpoint decisions must be durable, so
// they travel request/response instead of over the socket, and it also
// serves status snapshots and message history for session bootstrap.
type API struct {
	baseURL string
	token   string
	http    *http.Client
	log     logging.Logger
	metrics *observability.MetricsCollector

	// retry covers the idempotent reads only. Checkpoint decisions are
	// never retried blindly: a failed decision leaves the checkpoint
	// pending, so the retry belongs to whoever made the call.
	retry inkerrors.RetryConfig
}

// NewAPI creates the REST collaborator client. baseURL is the HTTP
// origin, e.g. http://host:8080.
func NewAPI(baseURL, token string, timeout time.Duration, logger logging.Logger, metrics *observability.MetricsCollector) *API {
	logger = logging.OrNop(logger)
	return &API{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    httpclient.NewWithCircuitBreaker(timeout, logger, "workflow-api"),
		log:     logger,
		metrics: metrics,
		retry: inkerrors.RetryConfig{
			MaxAttempts:  2,
			BaseDelay:    200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			JitterFactor: 0.25,
		},
	}
}

// WorkflowSnapshot is the REST view of a workflow's current state.
type WorkflowSnapshot struct {
	WorkflowID   string   `json:"workflow_id"`
	Status       string   `json:"status"`
	CurrentStage string   `json:"current_stage"`
	ActiveAgents []string `json:"active_agents"`
}

// ApproveCheckpoint approves a pending checkpoint.
func (a *API) ApproveCheckpoint(ctx context.Context, workflowID, checkpointID, feedback string) error {
	route := fmt.Sprintf("/api/workflows/%s/checkpoints/%s/approve",
		url.PathEscape(workflowID), url.PathEscape(checkpointID))
	return a.do(ctx, http.MethodPost, route, map[string]string{"feedback": feedback}, nil)
}

// RejectCheckpoint rejects a pending checkpoint.
func (a *API) RejectCheckpoint(ctx context.Context, workflowID, checkpointID, feedback string) error {
	route := fmt.Sprintf("/api/workflows/%s/checkpoints/%s/reject",
		url.PathEscape(workflowID), url.PathEscape(checkpointID))
	return a.do(ctx, http.MethodPost, route, map[string]string{"feedback": feedback}, nil)
}

// Status fetches the workflow status snapshot, retrying transient
// failures.
func (a *API) Status(ctx context.Context, workflowID string) (WorkflowSnapshot, error) {
	var snapshot WorkflowSnapshot
	route := fmt.Sprintf("/api/workflows/%s/status", url.PathEscape(workflowID))
	err := inkerrors.RetryWithLog(ctx, a.retry, func(ctx context.Context) error {
		return a.do(ctx, http.MethodGet, route, nil, &snapshot)
	}, a.log)
	return snapshot, err
}

// History fetches prior session messages for bootstrap. Message shapes
// vary across backend versions, so each entry goes through the same
// tolerant extraction the live stream uses.
func (a *API) History(ctx context.Context, workflowID string) ([]state.Message, error) {
	var payload struct {
		Messages []map[string]any `json:"messages"`
	}
	route := fmt.Sprintf("/api/workflows/%s/messages", url.PathEscape(workflowID))
	err := inkerrors.RetryWithLog(ctx, a.retry, func(ctx context.Context) error {
		return a.do(ctx, http.MethodGet, route, nil, &payload)
	}, a.log)
	if err != nil {
		return nil, err
	}

	messages := make([]state.Message, 0, len(payload.Messages))
	for _, fields := range payload.Messages {
		env := &protocol.Envelope{Fields: fields}
		content := env.Content()
		if content == "" {
			continue
		}
		messages = append(messages, state.Message{
			ID:         env.FirstString("id", "message_id"),
			Kind:       historyKind(env.FirstString("kind", "type", "role")),
			Sender:     env.FirstString("sender", "agent_id", "agent_name"),
			Content:    content,
			AgentType:  env.FirstString("agent_type"),
			Stage:      env.FirstString("stage"),
			WorkflowID: workflowID,
		})
	}
	return messages, nil
}

func historyKind(kind string) state.MessageKind {
	switch strings.ToLower(kind) {
	case "user":
		return state.KindUser
	case "system":
		return state.KindSystem
	case "", "agent", "assistant":
		return state.KindAgent
	default:
		return state.KindSystem
	}
}

func (a *API) do(ctx context.Context, method, route string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := jsonx.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+route, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	start := time.Now()
	resp, err := a.http.Do(req)
	a.metrics.RecordAPICall(ctx, route, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := httpclient.ReadBody(resp.Body, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := apiErrorMessage(data)
		a.log.Debug("%s %s failed: %d %s", method, route, resp.StatusCode, message)
		return inkerrors.FromHTTPStatus(resp.StatusCode, message)
	}

	if out != nil && len(data) > 0 {
		if err := jsonx.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func apiErrorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := jsonx.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
