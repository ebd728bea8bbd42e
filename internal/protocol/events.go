// Package protocol defines the wire vocabulary exchanged with the
// workflow backend: inbound event envelopes with their tolerant field
// extraction rules, and the outbound command frames.
package protocol

// Inbound event types pushed by the workflow backend. The vocabulary is
// server-controlled; unknown types must be handled leniently.
const (
	EventConnectionEstablished = "connection_established"

	EventWorkflowStatus      = "workflow_status"
	EventWorkflowStageUpdate = "workflow_stage_update"
	EventWorkflowUpdate      = "workflow_update"

	EventAgentMessage       = "agent_message"
	EventAgentCommunication = "agent_communication"
	EventAgentOutput        = "agent_output"

	EventHumanInputRequired = "human_input_required"

	EventCheckpointRequired = "checkpoint_required"
	EventApprovalRequired   = "approval_required" // legacy alias for checkpoint_required
	EventCheckpointResolved = "checkpoint_resolved"

	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowError     = "workflow_error"

	EventHeartbeat = "heartbeat"
	EventPing      = "ping"
	EventPong      = "pong"
)

// IsCheckpointRequired reports whether the type is checkpoint_required or
// one of its aliases.
func IsCheckpointRequired(eventType string) bool {
	return eventType == EventCheckpointRequired || eventType == EventApprovalRequired
}

// IsAgentMessage reports whether the type carries agent-authored content.
func IsAgentMessage(eventType string) bool {
	switch eventType {
	case EventAgentMessage, EventAgentCommunication, EventAgentOutput:
		return true
	}
	return false
}
