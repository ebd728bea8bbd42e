// Package state holds the canonical session state for one workflow
// connection. All mutation flows through Store.Apply so asynchronous
// callbacks always read current state instead of captured copies.
package state

import (
	"sort"
	"sync"
	"time"
)

// ConnectionStatus describes the transport link to the backend.
type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
)

// WorkflowStatus describes the backend workflow's lifecycle phase.
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowError     WorkflowStatus = "error"
)

// MessageKind classifies entries in the session transcript.
type MessageKind string

const (
	KindAgent            MessageKind = "agent"
	KindUser             MessageKind = "user"
	KindSystem           MessageKind = "system"
	KindCheckpointNotice MessageKind = "checkpoint_notice"
	KindHumanInputNotice MessageKind = "human_input_notice"
)

// QuestionType enumerates the answer shapes a human-input request accepts.
type QuestionType string

const (
	QuestionText           QuestionType = "text"
	QuestionYesNo          QuestionType = "yes_no"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionApproval       QuestionType = "approval"
)

// Message is one immutable entry in the append-only session transcript.
type Message struct {
	ID         string
	Kind       MessageKind
	Sender     string
	Content    string
	Timestamp  time.Time
	AgentType  string
	Stage      string
	WorkflowID string
}

// PendingCheckpoint is an approval gate raised by the backend. At most
// one may be pending per session.
type PendingCheckpoint struct {
	ID             string
	Title          string
	Description    string
	ContentPreview string
	FullContent    string
	CheckpointType string
	Priority       string
	TimeoutSeconds int
}

// PendingHumanInput is a backend question awaiting a human answer. At
// most one may be pending per session.
type PendingHumanInput struct {
	RequestID      string
	Question       string
	QuestionType   QuestionType
	Options        []string
	TimeoutSeconds int
}

// Store maintains the mutable session state for one workflow.
type Store struct {
	mu sync.RWMutex

	workflowID        string
	connection        ConnectionStatus
	workflow          WorkflowStatus
	stage             string
	agents            map[string]struct{}
	messages          []Message
	checkpoint        *PendingCheckpoint
	humanInput        *PendingHumanInput
	reconnectAttempts int
	finalContent      string
}

// NewStore creates an empty Store for the given workflow.
func NewStore(workflowID string) *Store {
	return &Store{
		workflowID: workflowID,
		connection: ConnDisconnected,
		workflow:   WorkflowRunning,
		agents:     make(map[string]struct{}),
	}
}

// Update represents a mutation applied to the Store.
type Update interface {
	apply(store *Store)
}

// Apply mutates the store using the provided update. Each update runs
// under one lock acquisition, so a transition is all-or-nothing.
func (s *Store) Apply(update Update) {
	if update == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	update.apply(s)
}

// Snapshot is a copy of the current store state for safe observation.
type Snapshot struct {
	WorkflowID        string
	Connection        ConnectionStatus
	Workflow          WorkflowStatus
	Stage             string
	ActiveAgents      []string
	Messages          []Message
	Checkpoint        *PendingCheckpoint
	HumanInput        *PendingHumanInput
	ReconnectAttempts int
	FinalContent      string
}

// Snapshot copies the current state in a deterministic order to avoid
// exposing internal mutable references.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := Snapshot{
		WorkflowID:        s.workflowID,
		Connection:        s.connection,
		Workflow:          s.workflow,
		Stage:             s.stage,
		ActiveAgents:      make([]string, 0, len(s.agents)),
		Messages:          make([]Message, len(s.messages)),
		Checkpoint:        cloneCheckpoint(s.checkpoint),
		HumanInput:        cloneHumanInput(s.humanInput),
		ReconnectAttempts: s.reconnectAttempts,
		FinalContent:      s.finalContent,
	}

	copy(snapshot.Messages, s.messages)

	for agent := range s.agents {
		snapshot.ActiveAgents = append(snapshot.ActiveAgents, agent)
	}
	sort.Strings(snapshot.ActiveAgents)

	return snapshot
}

// WorkflowID returns the identifier the store was created for.
func (s *Store) WorkflowID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflowID
}

// Connection returns the current connection status.
func (s *Store) Connection() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connection
}

// Workflow returns the current workflow status.
func (s *Store) Workflow() WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workflow
}

// Checkpoint returns a copy of the pending checkpoint, if any.
func (s *Store) Checkpoint() (PendingCheckpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return PendingCheckpoint{}, false
	}
	return *s.checkpoint, true
}

// HumanInput returns a copy of the pending human-input request, if any.
func (s *Store) HumanInput() (PendingHumanInput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.humanInput == nil {
		return PendingHumanInput{}, false
	}
	out := *s.humanInput
	out.Options = append([]string(nil), s.humanInput.Options...)
	return out, true
}

// MessageCount reports the transcript length.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func cloneCheckpoint(cp *PendingCheckpoint) *PendingCheckpoint {
	if cp == nil {
		return nil
	}
	clone := *cp
	return &clone
}

func cloneHumanInput(req *PendingHumanInput) *PendingHumanInput {
	if req == nil {
		return nil
	}
	clone := *req
	clone.Options = append([]string(nil), req.Options...)
	return &clone
}
