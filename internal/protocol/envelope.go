package protocol

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"inkwell/internal/jsonx"
)

// Envelope is a decoded inbound frame. Producers disagree on payload
// shape, so the body is kept as a generic object and read through the
// ordered fallback accessors in extract.go.
type Envelope struct {
	Type   string
	Fields map[string]any
}

// ParseEnvelope decodes an inbound text frame. Frames that fail strict
// JSON decoding get one repair pass before being rejected; a frame
// without a usable type discriminator is not an error, the caller treats
// it as an unknown event.
func ParseEnvelope(data []byte) (*Envelope, error) {
	fields := make(map[string]any)
	if err := jsonx.Unmarshal(data, &fields); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("parse frame: %w", err)
		}
		fields = make(map[string]any)
		if err := jsonx.Unmarshal([]byte(repaired), &fields); err != nil {
			return nil, fmt.Errorf("parse repaired frame: %w", err)
		}
	}

	env := &Envelope{Fields: fields}
	if t, ok := fields["type"].(string); ok {
		env.Type = strings.ToLower(strings.TrimSpace(t))
	}
	return env, nil
}

// WorkflowID resolves the workflow identifier across the shapes producers use.
func (e *Envelope) WorkflowID() string {
	return e.FirstString("workflow_id", "data.workflow_id", "session_id", "data.session_id")
}
