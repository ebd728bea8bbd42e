package protocol

import "inkwell/internal/jsonx"

// Outbound frame types.
const (
	FrameUserMessage   = "user_message"
	FrameHumanResponse = "human_response"
	FramePing          = "ping"
	FramePong          = "pong"
	FrameGetStatus     = "get_status"
)

// UserMessageFrame carries free-text user input to the workflow.
type UserMessageFrame struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	WorkflowID string `json:"workflowId"`
}

// HumanResponseFrame answers a pending human-input request.
type HumanResponseFrame struct {
	Type       string `json:"type"`
	RequestID  string `json:"request_id"`
	Response   string `json:"response"`
	WorkflowID string `json:"workflow_id"`
}

// ControlFrame covers the payload-free protocol frames (ping, pong,
// get_status).
type ControlFrame struct {
	Type string `json:"type"`
}

// EncodeUserMessage serializes a user_message frame.
func EncodeUserMessage(content, workflowID string) ([]byte, error) {
	return jsonx.Marshal(UserMessageFrame{
		Type:       FrameUserMessage,
		Content:    content,
		WorkflowID: workflowID,
	})
}

// EncodeHumanResponse serializes a human_response frame.
func EncodeHumanResponse(requestID, response, workflowID string) ([]byte, error) {
	return jsonx.Marshal(HumanResponseFrame{
		Type:       FrameHumanResponse,
		RequestID:  requestID,
		Response:   response,
		WorkflowID: workflowID,
	})
}

// EncodePing serializes a ping frame.
func EncodePing() ([]byte, error) {
	return jsonx.Marshal(ControlFrame{Type: FramePing})
}

// EncodePong serializes a pong frame.
func EncodePong() ([]byte, error) {
	return jsonx.Marshal(ControlFrame{Type: FramePong})
}

// EncodeGetStatus serializes a get_status frame.
func EncodeGetStatus() ([]byte, error) {
	return jsonx.Marshal(ControlFrame{Type: FrameGetStatus})
}
