package client

import (
	"context"
	"strings"

	"inkwell/internal/protocol"
	"inkwell/internal/state"
)

// handleFrame is the stream entry point: parse, then dispatch. Malformed
// frames are logged and dropped so one bad payload never wedges the
// session.
func (c *Client) handleFrame(_ string, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		c.log.Warn("dropping unreadable frame: %v", err)
		return
	}
	c.metrics.RecordEvent(context.Background(), env.Type)
	c.dispatch(env)
}

func (c *Client) dispatch(env *protocol.Envelope) {
	switch {
	case env.Type == protocol.EventConnectionEstablished:
		c.handleConnectionEstablished(env)
	case env.Type == protocol.EventWorkflowStatus,
		env.Type == protocol.EventWorkflowStageUpdate,
		env.Type == protocol.EventWorkflowUpdate:
		c.handleWorkflowUpdate(env)
	case protocol.IsAgentMessage(env.Type):
		c.handleAgentMessage(env)
	case env.Type == protocol.EventHumanInputRequired:
		c.handleHumanInputRequired(env)
	case protocol.IsCheckpointRequired(env.Type):
		c.handleCheckpointRequired(env)
	case env.Type == protocol.EventCheckpointResolved:
		c.handleCheckpointResolved(env)
	case env.Type == protocol.EventWorkflowCompleted:
		c.handleWorkflowCompleted(env)
	case env.Type == protocol.EventWorkflowError:
		c.handleWorkflowError(env)
	case env.Type == protocol.EventHeartbeat:
		c.handleHeartbeat()
	case env.Type == protocol.EventPong:
		// keep-alive answer, nothing to record
	default:
		c.handleUnknown(env)
	}
}

func (c *Client) handleConnectionEstablished(env *protocol.Envelope) {
	c.store.Apply(state.ReconnectAttemptsSet{Attempts: 0})
	c.setConnection(state.ConnConnected)
	note := env.FirstString("message", "data.message")
	if note == "" {
		note = "connected to workflow " + c.workflowID
	}
	c.appendSystem(note)
}

func (c *Client) handleWorkflowUpdate(env *protocol.Envelope) {
	if status, ok := parseWorkflowStatus(env.FirstString("status", "data.status")); ok {
		c.setWorkflow(status)
	}
	if stage := env.FirstString("stage", "data.stage", "current_stage", "data.current_stage"); stage != "" {
		c.store.Apply(state.StageSet{Stage: stage})
	}
	for _, agent := range env.FirstStringSlice("active_agents", "data.active_agents") {
		c.store.Apply(state.AgentSeen{AgentID: agent})
	}
	if note := env.FirstString("message", "data.message"); note != "" {
		c.appendSystem(note)
	}
}

func parseWorkflowStatus(raw string) (state.WorkflowStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "in_progress", "started":
		return state.WorkflowRunning, true
	case "paused", "waiting":
		return state.WorkflowPaused, true
	case "completed", "finished", "done":
		return state.WorkflowCompleted, true
	case "error", "failed":
		return state.WorkflowError, true
	default:
		return "", false
	}
}

func (c *Client) handleAgentMessage(env *protocol.Envelope) {
	content := env.Content()
	if content == "" {
		c.log.Debug("agent event %q carried no content, dropping", env.Type)
		return
	}
	agent := env.AgentID()
	if agent != "" {
		c.store.Apply(state.AgentSeen{AgentID: agent})
	}
	sender := agent
	if sender == "" {
		sender = "agent"
	}
	c.appendMessage(state.Message{
		ID:        env.FirstString("message_id", "data.message_id", "id"),
		Kind:      state.KindAgent,
		Sender:    sender,
		Content:   content,
		AgentType: env.FirstString("agent_type", "data.agent_type"),
		Stage:     env.FirstString("stage", "data.stage"),
	})
}

func (c *Client) handleHumanInputRequired(env *protocol.Envelope) {
	requestID := env.FirstString("request_id", "data.request_id", "id", "data.id")
	if requestID == "" {
		c.log.Warn("human input request without an identifier, dropping")
		return
	}
	if pending, ok := c.store.HumanInput(); ok {
		c.log.Debug("human input %s arrived while %s is pending, ignoring", requestID, pending.RequestID)
		return
	}

	req := state.PendingHumanInput{
		RequestID:    requestID,
		Question:     env.FirstString("question", "data.question", "prompt", "data.prompt"),
		QuestionType: parseQuestionType(env.FirstString("question_type", "data.question_type", "input_type", "data.input_type")),
		Options:      env.FirstStringSlice("options", "data.options"),
	}
	if timeout, ok := env.FirstInt("timeout_seconds", "data.timeout_seconds", "timeout"); ok {
		req.TimeoutSeconds = timeout
	}
	c.setWorkflow(state.WorkflowPaused)
	c.store.Apply(state.HumanInputOpen{Request: req})

	question := req.Question
	if question == "" {
		question = "input requested"
	}
	c.appendMessage(state.Message{
		Kind:    state.KindHumanInputNotice,
		Sender:  "system",
		Content: "input needed: " + question,
	})
	if c.hooks.OnHumanInput != nil {
		c.hooks.OnHumanInput(req)
	}
}

func parseQuestionType(raw string) state.QuestionType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes_no", "yesno", "boolean":
		return state.QuestionYesNo
	case "multiple_choice", "choice", "select":
		return state.QuestionMultipleChoice
	case "approval", "approve":
		return state.QuestionApproval
	default:
		return state.QuestionText
	}
}

func (c *Client) handleCheckpointRequired(env *protocol.Envelope) {
	id := env.FirstString("checkpoint_id", "data.checkpoint_id", "id", "data.id")
	if id == "" {
		c.log.Warn("checkpoint event without an identifier, dropping")
		return
	}
	if pending, ok := c.store.Checkpoint(); ok {
		c.log.Debug("checkpoint %s arrived while %s is pending, ignoring", id, pending.ID)
		return
	}

	cp := state.PendingCheckpoint{
		ID:             id,
		Title:          env.FirstString("title", "data.title"),
		Description:    env.FirstString("description", "data.description"),
		ContentPreview: env.FirstString("content_preview", "data.content_preview", "preview"),
		FullContent:    env.FirstString("full_content", "data.full_content", "data.content", "content"),
		CheckpointType: env.FirstString("checkpoint_type", "data.checkpoint_type"),
		Priority:       env.FirstString("priority", "data.priority"),
	}
	if timeout, ok := env.FirstInt("timeout_seconds", "data.timeout_seconds", "timeout"); ok {
		cp.TimeoutSeconds = timeout
	}
	c.setWorkflow(state.WorkflowPaused)
	c.store.Apply(state.CheckpointOpen{Checkpoint: cp})

	title := cp.Title
	if title == "" {
		title = cp.ID
	}
	c.appendMessage(state.Message{
		Kind:    state.KindCheckpointNotice,
		Sender:  "system",
		Content: "approval needed: " + title,
	})
	if c.hooks.OnCheckpoint != nil {
		c.hooks.OnCheckpoint(cp)
	}
}

func (c *Client) handleCheckpointResolved(env *protocol.Envelope) {
	id := env.FirstString("checkpoint_id", "data.checkpoint_id", "id", "data.id")
	if id == "" {
		c.log.Warn("checkpoint resolution without an identifier, dropping")
		return
	}
	pending, ok := c.store.Checkpoint()
	if !ok || pending.ID != id {
		if c.resolved.Contains(id) {
			c.log.Debug("duplicate resolution for checkpoint %s, ignoring", id)
		} else {
			c.log.Debug("resolution for unknown checkpoint %s, ignoring", id)
		}
		return
	}
	c.resolved.Add(id, struct{}{})
	c.setWorkflow(state.WorkflowRunning)
	c.store.Apply(state.CheckpointResolve{CheckpointID: id})
	c.appendSystem("checkpoint " + id + " resolved, workflow resumed")
}

func (c *Client) handleWorkflowCompleted(env *protocol.Envelope) {
	final := env.FirstString("data.final_content", "final_content", "data.content", "content", "data.result", "result")
	if final != "" {
		c.store.Apply(state.FinalContentSet{Content: final})
	}
	c.setWorkflow(state.WorkflowCompleted)
	c.appendSystem("workflow completed")
	c.completeOnce.Do(func() {
		if c.hooks.OnComplete != nil {
			c.hooks.OnComplete(final)
		}
	})
}

func (c *Client) handleWorkflowError(env *protocol.Envelope) {
	c.setWorkflow(state.WorkflowError)
	reason := env.FirstString("error", "data.error", "message", "data.message")
	if reason == "" {
		reason = "workflow reported an error"
	} else {
		reason = "workflow error: " + reason
	}
	c.appendSystem(reason)
}

// handleHeartbeat answers an application-level heartbeat. A send failure
// here just means the connection is already going down and the transport
// will notice on its own.
func (c *Client) handleHeartbeat() {
	pong, err := protocol.EncodePong()
	if err != nil {
		return
	}
	if err := c.registry.Send(c.workflowID, pong); err != nil {
		c.log.Debug("heartbeat reply failed: %v", err)
	}
}

// handleUnknown keeps the transcript useful when the backend grows new
// event types: anything carrying readable content surfaces as a system
// entry, everything else is logged and dropped.
func (c *Client) handleUnknown(env *protocol.Envelope) {
	if content := env.Content(); content != "" {
		c.appendSystem(content)
		return
	}
	c.log.Debug("unhandled event type %q without content, dropping", env.Type)
}
