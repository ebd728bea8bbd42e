package protocol

import (
	"strconv"
	"strings"
)

// lookupPath walks a dotted path ("data.message_content") through nested
// JSON objects. Only object nesting is supported; arrays are terminal.
func lookupPath(fields map[string]any, path string) (any, bool) {
	current := any(fields)
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// FirstString returns the first non-empty string found at the given
// paths, tried in order. This is the tolerant extraction primitive: the
// payload shape is not stable across producers, so callers enumerate the
// shapes they have seen and take the first hit.
func (e *Envelope) FirstString(paths ...string) string {
	for _, path := range paths {
		value, ok := lookupPath(e.Fields, path)
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// FirstInt returns the first numeric value found at the given paths.
// JSON numbers decode as float64; numeric strings are accepted too.
func (e *Envelope) FirstInt(paths ...string) (int, bool) {
	for _, path := range paths {
		value, ok := lookupPath(e.Fields, path)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// FirstBool returns the first boolean found at the given paths.
func (e *Envelope) FirstBool(paths ...string) (bool, bool) {
	for _, path := range paths {
		value, ok := lookupPath(e.Fields, path)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// FirstStringSlice returns the first list of strings found at the given
// paths. Mixed-type lists keep only their string elements.
func (e *Envelope) FirstStringSlice(paths ...string) []string {
	for _, path := range paths {
		value, ok := lookupPath(e.Fields, path)
		if !ok {
			continue
		}
		list, ok := value.([]any)
		if !ok {
			continue
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// Content resolves agent/system message text across the shapes producers
// emit, in the order they were observed in the wild.
func (e *Envelope) Content() string {
	return e.FirstString(
		"data.message_content",
		"message_content",
		"data.content",
		"content",
		"data.message",
		"message",
		"data.text",
		"text",
	)
}

// AgentID resolves the sending agent's identifier.
func (e *Envelope) AgentID() string {
	return e.FirstString(
		"data.agent_id",
		"agent_id",
		"data.agent_name",
		"agent_name",
		"data.sender",
		"sender",
		"agent",
	)
}
