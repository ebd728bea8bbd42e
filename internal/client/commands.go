package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"inkwell/internal/protocol"
	"inkwell/internal/state"
	"inkwell/internal/transport"
)

// ErrNotConnected reports a send attempted without an open stream.
// Nothing is queued; the caller retries once reconnected.
var ErrNotConnected = transport.ErrNotConnected

var (
	// ErrNoPendingCheckpoint reports a checkpoint decision with nothing to decide.
	ErrNoPendingCheckpoint = errors.New("no checkpoint is pending")
	// ErrNoPendingHumanInput reports an answer with no open question.
	ErrNoPendingHumanInput = errors.New("no human input request is pending")
	// ErrNoAPI reports a REST operation on a client built without a base URL.
	ErrNoAPI = errors.New("client has no REST endpoint configured")
)

// SendUserMessage sends a chat message over the stream and echoes it into
// the transcript. The echo happens only after the send succeeds, so the
// transcript never shows messages the backend did not receive.
func (c *Client) SendUserMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("message content is empty")
	}
	frame, err := protocol.EncodeUserMessage(content, c.workflowID)
	if err != nil {
		return fmt.Errorf("encode user message: %w", err)
	}
	if err := c.registry.Send(c.workflowID, frame); err != nil {
		return err
	}
	c.appendMessage(state.Message{
		Kind:    state.KindUser,
		Sender:  "user",
		Content: content,
	})
	return nil
}

// RespondToHumanInput answers the pending human-input request over the
// stream. The pending request clears optimistically and is restored when
// the send fails, so the caller can answer again after reconnecting.
func (c *Client) RespondToHumanInput(response string) error {
	req, ok := c.store.HumanInput()
	if !ok {
		return ErrNoPendingHumanInput
	}
	frame, err := protocol.EncodeHumanResponse(req.RequestID, response, c.workflowID)
	if err != nil {
		return fmt.Errorf("encode human response: %w", err)
	}

	c.setWorkflow(state.WorkflowRunning)
	c.store.Apply(state.HumanInputResolve{RequestID: req.RequestID})
	if err := c.registry.Send(c.workflowID, frame); err != nil {
		c.setWorkflow(state.WorkflowPaused)
		c.store.Apply(state.HumanInputOpen{Request: req})
		return err
	}
	c.appendMessage(state.Message{
		Kind:    state.KindUser,
		Sender:  "user",
		Content: response,
	})
	return nil
}

// ApproveCheckpoint approves the pending checkpoint. The decision goes
// over REST so it is durable, and the pending state clears only after the
// backend acknowledges it; on failure the checkpoint stays pending for
// another attempt.
func (c *Client) ApproveCheckpoint(ctx context.Context, feedback string) error {
	return c.resolveCheckpoint(ctx, true, feedback)
}

// RejectCheckpoint rejects the pending checkpoint with feedback. Same
// durability rules as ApproveCheckpoint.
func (c *Client) RejectCheckpoint(ctx context.Context, feedback string) error {
	return c.resolveCheckpoint(ctx, false, feedback)
}

func (c *Client) resolveCheckpoint(ctx context.Context, approved bool, feedback string) error {
	cp, ok := c.store.Checkpoint()
	if !ok {
		return ErrNoPendingCheckpoint
	}
	if c.api == nil {
		return ErrNoAPI
	}

	var err error
	if approved {
		err = c.api.ApproveCheckpoint(ctx, c.workflowID, cp.ID, feedback)
	} else {
		err = c.api.RejectCheckpoint(ctx, c.workflowID, cp.ID, feedback)
	}
	c.metrics.RecordCheckpointDecision(ctx, approved)
	if err != nil {
		c.appendSystem(fmt.Sprintf("checkpoint decision for %s failed: %v", cp.ID, err))
		return err
	}

	c.resolved.Add(cp.ID, struct{}{})
	c.setWorkflow(state.WorkflowRunning)
	c.store.Apply(state.CheckpointResolve{CheckpointID: cp.ID})
	if approved {
		c.appendSystem("checkpoint " + cp.ID + " approved")
	} else {
		c.appendSystem("checkpoint " + cp.ID + " rejected")
	}
	return nil
}

// RequestStatus asks the backend for a status snapshot. It prefers the
// stream; when no connection is open it falls back to REST and folds the
// response into the store directly.
func (c *Client) RequestStatus(ctx context.Context) error {
	if c.registry.IsConnected(c.workflowID) {
		frame, err := protocol.EncodeGetStatus()
		if err != nil {
			return fmt.Errorf("encode status request: %w", err)
		}
		return c.registry.Send(c.workflowID, frame)
	}
	if c.api == nil {
		return ErrNotConnected
	}

	snapshot, err := c.api.Status(ctx, c.workflowID)
	if err != nil {
		return err
	}
	if status, ok := parseWorkflowStatus(snapshot.Status); ok {
		c.setWorkflow(status)
	}
	c.store.Apply(state.StageSet{Stage: snapshot.CurrentStage})
	for _, agent := range snapshot.ActiveAgents {
		c.store.Apply(state.AgentSeen{AgentID: agent})
	}
	return nil
}
