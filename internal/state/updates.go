package state

import "strings"

// MessageAppend appends a message to the transcript. Messages with no
// content are dropped; the transcript is append-only and nothing else
// touches store.messages.
type MessageAppend struct {
	Message Message
}

func (u MessageAppend) apply(store *Store) {
	if strings.TrimSpace(u.Message.Content) == "" {
		return
	}
	store.messages = append(store.messages, u.Message)
}

// ConnectionSet updates the transport link status.
type ConnectionSet struct {
	Status ConnectionStatus
}

func (u ConnectionSet) apply(store *Store) {
	store.connection = u.Status
}

// WorkflowSet updates the backend workflow status.
type WorkflowSet struct {
	Status WorkflowStatus
}

func (u WorkflowSet) apply(store *Store) {
	store.workflow = u.Status
}

// StageSet updates the current stage label. An empty stage is ignored so
// events without one never blank the display.
type StageSet struct {
	Stage string
}

func (u StageSet) apply(store *Store) {
	if strings.TrimSpace(u.Stage) == "" {
		return
	}
	store.stage = u.Stage
}

// AgentSeen records an agent identifier in the active set.
type AgentSeen struct {
	AgentID string
}

func (u AgentSeen) apply(store *Store) {
	id := strings.TrimSpace(u.AgentID)
	if id == "" {
		return
	}
	store.agents[id] = struct{}{}
}

// CheckpointOpen installs a pending checkpoint and pauses the workflow.
// It is a no-op when one is already pending or when the checkpoint has no
// identifier, so duplicate or out-of-order checkpoint events cannot flap
// the prompt.
type CheckpointOpen struct {
	Checkpoint PendingCheckpoint
}

func (u CheckpointOpen) apply(store *Store) {
	if store.checkpoint != nil {
		return
	}
	if strings.TrimSpace(u.Checkpoint.ID) == "" {
		return
	}
	cp := u.Checkpoint
	store.checkpoint = &cp
	store.workflow = WorkflowPaused
}

// CheckpointResolve clears the pending checkpoint and resumes the
// workflow, but only when the identifier matches the pending one.
// Resolutions for checkpoints the client discarded or never saw leave
// state untouched; re-applying a matching resolve is a no-op.
type CheckpointResolve struct {
	CheckpointID string
}

func (u CheckpointResolve) apply(store *Store) {
	if store.checkpoint == nil || store.checkpoint.ID != u.CheckpointID {
		return
	}
	store.checkpoint = nil
	store.workflow = WorkflowRunning
}

// HumanInputOpen installs a pending human-input request and pauses the
// workflow. Same idempotency policy as checkpoints: a request arriving
// while one is pending is ignored.
type HumanInputOpen struct {
	Request PendingHumanInput
}

func (u HumanInputOpen) apply(store *Store) {
	if store.humanInput != nil {
		return
	}
	if strings.TrimSpace(u.Request.RequestID) == "" {
		return
	}
	req := u.Request
	req.Options = append([]string(nil), u.Request.Options...)
	store.humanInput = &req
	store.workflow = WorkflowPaused
}

// HumanInputResolve clears the pending request when the identifier
// matches, resuming the workflow.
type HumanInputResolve struct {
	RequestID string
}

func (u HumanInputResolve) apply(store *Store) {
	if store.humanInput == nil || store.humanInput.RequestID != u.RequestID {
		return
	}
	store.humanInput = nil
	store.workflow = WorkflowRunning
}

// ReconnectAttemptsSet records the connection manager's attempt counter
// so the UI can show retry progress.
type ReconnectAttemptsSet struct {
	Attempts int
}

func (u ReconnectAttemptsSet) apply(store *Store) {
	if u.Attempts < 0 {
		return
	}
	store.reconnectAttempts = u.Attempts
}

// FinalContentSet captures the workflow's final output on completion.
type FinalContentSet struct {
	Content string
}

func (u FinalContentSet) apply(store *Store) {
	if strings.TrimSpace(u.Content) == "" {
		return
	}
	store.finalContent = u.Content
}

// Reset clears all session state, reinitialising backing collections.
// The workflow identifier survives a reset.
type Reset struct{}

func (Reset) apply(store *Store) {
	store.connection = ConnDisconnected
	store.workflow = WorkflowRunning
	store.stage = ""
	store.agents = make(map[string]struct{})
	store.messages = nil
	store.checkpoint = nil
	store.humanInput = nil
	store.reconnectAttempts = 0
	store.finalContent = ""
}
