package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/jsonx"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"Agent_Message","data":{"message_content":"draft ready"}}`))
	require.NoError(t, err)
	require.Equal(t, "agent_message", env.Type)
	require.Equal(t, "draft ready", env.Content())
}

func TestParseEnvelopeRepairsTrailingComma(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"workflow_status","status":"running",}`))
	require.NoError(t, err)
	require.Equal(t, "workflow_status", env.Type)
	require.Equal(t, "running", env.FirstString("status"))
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope([]byte{0x00, 0x01})
	require.Error(t, err)
}

func TestParseEnvelopeMissingType(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"content":"orphan"}`))
	require.NoError(t, err)
	require.Empty(t, env.Type)
	require.Equal(t, "orphan", env.Content())
}

func TestContentFallbackOrder(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"nested message_content", `{"data":{"message_content":"a"}}`, "a"},
		{"flat message_content", `{"message_content":"b"}`, "b"},
		{"nested content", `{"data":{"content":"c"}}`, "c"},
		{"flat content", `{"content":"d"}`, "d"},
		{"flat message", `{"message":"e"}`, "e"},
		{"nested beats flat", `{"data":{"message_content":"nested"},"content":"flat"}`, "nested"},
		{"empty string skipped", `{"data":{"message_content":"  "},"content":"real"}`, "real"},
		{"non-string skipped", `{"data":{"message_content":42},"content":"real"}`, "real"},
		{"nothing", `{"data":{}}`, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.json))
			require.NoError(t, err)
			assert.Equal(t, tc.want, env.Content())
		})
	}
}

func TestFirstIntAndBool(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"data":{"timeout_seconds":120,"approved":"true"},"count":"7"}`))
	require.NoError(t, err)

	n, ok := env.FirstInt("data.timeout_seconds")
	require.True(t, ok)
	require.Equal(t, 120, n)

	n, ok = env.FirstInt("missing", "count")
	require.True(t, ok)
	require.Equal(t, 7, n)

	b, ok := env.FirstBool("data.approved")
	require.True(t, ok)
	require.True(t, b)

	_, ok = env.FirstBool("data.missing")
	require.False(t, ok)
}

func TestFirstStringSlice(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"data":{"options":["Outline","Full draft",3]}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"Outline", "Full draft"}, env.FirstStringSlice("options", "data.options"))
	require.Nil(t, env.FirstStringSlice("data.missing"))
}

func TestWorkflowID(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"workflow_update","data":{"workflow_id":"wf-9"}}`))
	require.NoError(t, err)
	require.Equal(t, "wf-9", env.WorkflowID())
}

func TestOutboundFrames(t *testing.T) {
	data, err := EncodeUserMessage("hello", "wf-1")
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, jsonx.Unmarshal(data, &frame))
	assert.Equal(t, "user_message", frame["type"])
	assert.Equal(t, "hello", frame["content"])
	assert.Equal(t, "wf-1", frame["workflowId"])

	data, err = EncodeHumanResponse("req-1", "yes", "wf-1")
	require.NoError(t, err)
	frame = map[string]any{}
	require.NoError(t, jsonx.Unmarshal(data, &frame))
	assert.Equal(t, "human_response", frame["type"])
	assert.Equal(t, "req-1", frame["request_id"])
	assert.Equal(t, "yes", frame["response"])
	assert.Equal(t, "wf-1", frame["workflow_id"])

	data, err = EncodePong()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}
