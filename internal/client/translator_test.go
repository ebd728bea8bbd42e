package client

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/state"
)

// newDetachedClient builds a client whose stream is never opened, so
// frames can be fed straight into the interpreter and every send fails
// with ErrNotConnected.
func newDetachedClient(t *testing.T, hooks Hooks) *Client {
	t.Helper()
	c, err := New(Options{
		WorkflowID: "wf-1",
		StreamURL:  "ws://127.0.0.1:1/api/workflows",
		Hooks:      hooks,
	})
	require.NoError(t, err)
	return c
}

func feed(c *Client, format string, args ...any) {
	c.handleFrame("wf-1", []byte(fmt.Sprintf(format, args...)))
}

func TestConnectionEstablished(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	feed(c, `{"type":"connection_established","message":"welcome aboard"}`)

	snap := c.Snapshot()
	assert.Equal(t, state.ConnConnected, snap.Connection)
	assert.Zero(t, snap.ReconnectAttempts)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, state.KindSystem, snap.Messages[0].Kind)
	assert.Equal(t, "welcome aboard", snap.Messages[0].Content)
}

func TestWorkflowStatusUpdates(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	feed(c, `{"type":"workflow_status","status":"paused","stage":"drafting"}`)
	snap := c.Snapshot()
	assert.Equal(t, state.WorkflowPaused, snap.Workflow)
	assert.Equal(t, "drafting", snap.Stage)

	// nested fields and agent roster
	feed(c, `{"type":"workflow_stage_update","data":{"status":"running","current_stage":"review","active_agents":["writer","editor"]}}`)
	snap = c.Snapshot()
	assert.Equal(t, state.WorkflowRunning, snap.Workflow)
	assert.Equal(t, "review", snap.Stage)
	assert.Equal(t, []string{"editor", "writer"}, snap.ActiveAgents)

	// an unrecognized status leaves the current one alone
	feed(c, `{"type":"workflow_status","status":"mystery"}`)
	assert.Equal(t, state.WorkflowRunning, c.Store().Workflow())
}

func TestAgentMessageFieldFallback(t *testing.T) {
	cases := []struct {
		name  string
		frame string
		want  string
	}{
		{"top-level content", `{"type":"agent_message","agent_id":"writer","content":"alpha"}`, "alpha"},
		{"nested message_content", `{"type":"agent_message","data":{"agent_id":"writer","message_content":"beta"}}`, "beta"},
		{"top-level message_content", `{"type":"agent_communication","message_content":"gamma"}`, "gamma"},
		{"nested content", `{"type":"agent_output","data":{"content":"delta"}}`, "delta"},
		{"nested message", `{"type":"agent_message","data":{"message":"epsilon"}}`, "epsilon"},
		{"text field", `{"type":"agent_message","text":"zeta"}`, "zeta"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newDetachedClient(t, Hooks{})
			feed(c, "%s", tc.frame)

			snap := c.Snapshot()
			require.Len(t, snap.Messages, 1)
			assert.Equal(t, tc.want, snap.Messages[0].Content)
			assert.Equal(t, state.KindAgent, snap.Messages[0].Kind)
		})
	}
}

func TestAgentMessageWithoutContentDropped(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"agent_message","agent_id":"writer"}`)
	assert.Zero(t, c.Store().MessageCount())
}

func TestAgentRosterTracksSenders(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"agent_message","agent_id":"writer","content":"one"}`)
	feed(c, `{"type":"agent_message","data":{"agent_id":"editor","content":"two"}}`)
	feed(c, `{"type":"agent_message","agent_id":"writer","content":"three"}`)

	snap := c.Snapshot()
	assert.Equal(t, []string{"editor", "writer"}, snap.ActiveAgents)
	assert.Equal(t, "writer", snap.Messages[0].Sender)
	assert.Equal(t, "editor", snap.Messages[1].Sender)
}

func TestMessageOrderPreserved(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	for i := 0; i < 5; i++ {
		feed(c, `{"type":"agent_message","agent_id":"writer","content":"message %d"}`, i)
	}

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 5)
	for i, msg := range snap.Messages {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Content)
		assert.NotEmpty(t, msg.ID)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	var checkpointHooks atomic.Int32
	c := newDetachedClient(t, Hooks{
		OnCheckpoint: func(state.PendingCheckpoint) { checkpointHooks.Add(1) },
	})

	feed(c, `{"type":"checkpoint_required","data":{"checkpoint_id":"cp-1","title":"Review draft","full_content":"the draft"}}`)

	cp, ok := c.Store().Checkpoint()
	require.True(t, ok)
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, "Review draft", cp.Title)
	assert.Equal(t, "the draft", cp.FullContent)
	assert.Equal(t, state.WorkflowPaused, c.Store().Workflow())
	assert.Equal(t, int32(1), checkpointHooks.Load())

	// a second checkpoint while one is pending is ignored
	feed(c, `{"type":"checkpoint_required","checkpoint_id":"cp-2","title":"Another"}`)
	cp, ok = c.Store().Checkpoint()
	require.True(t, ok)
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, int32(1), checkpointHooks.Load())

	// a resolution for a different checkpoint leaves the pending one alone
	feed(c, `{"type":"checkpoint_resolved","checkpoint_id":"cp-other"}`)
	_, ok = c.Store().Checkpoint()
	assert.True(t, ok)
	assert.Equal(t, state.WorkflowPaused, c.Store().Workflow())

	// the matching resolution clears it and resumes
	feed(c, `{"type":"checkpoint_resolved","checkpoint_id":"cp-1"}`)
	_, ok = c.Store().Checkpoint()
	assert.False(t, ok)
	assert.Equal(t, state.WorkflowRunning, c.Store().Workflow())

	// replaying the resolution is harmless
	feed(c, `{"type":"checkpoint_resolved","checkpoint_id":"cp-1"}`)
	assert.Equal(t, state.WorkflowRunning, c.Store().Workflow())
}

func TestCheckpointAliasAccepted(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"approval_required","id":"cp-9","title":"Gate"}`)

	cp, ok := c.Store().Checkpoint()
	require.True(t, ok)
	assert.Equal(t, "cp-9", cp.ID)
}

func TestCheckpointWithoutIDDropped(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"checkpoint_required","title":"anonymous"}`)

	_, ok := c.Store().Checkpoint()
	assert.False(t, ok)
	assert.Equal(t, state.WorkflowRunning, c.Store().Workflow())
}

func TestHumanInputLifecycle(t *testing.T) {
	var inputHooks atomic.Int32
	c := newDetachedClient(t, Hooks{
		OnHumanInput: func(state.PendingHumanInput) { inputHooks.Add(1) },
	})

	feed(c, `{"type":"human_input_required","request_id":"req-1","question":"Which tone?","question_type":"multiple_choice","options":["formal","casual"]}`)

	req, ok := c.Store().HumanInput()
	require.True(t, ok)
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, state.QuestionMultipleChoice, req.QuestionType)
	assert.Equal(t, []string{"formal", "casual"}, req.Options)
	assert.Equal(t, state.WorkflowPaused, c.Store().Workflow())
	assert.Equal(t, int32(1), inputHooks.Load())

	// duplicates while pending are ignored
	feed(c, `{"type":"human_input_required","request_id":"req-2","question":"Other?"}`)
	req, _ = c.Store().HumanInput()
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, int32(1), inputHooks.Load())
}

func TestRespondToHumanInputRestoresOnSendFailure(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"human_input_required","request_id":"req-1","question":"Proceed?"}`)

	err := c.RespondToHumanInput("yes")
	require.ErrorIs(t, err, ErrNotConnected)

	req, ok := c.Store().HumanInput()
	require.True(t, ok, "request should be restored after a failed send")
	assert.Equal(t, "req-1", req.RequestID)
	assert.Equal(t, state.WorkflowPaused, c.Store().Workflow())
}

func TestRespondToHumanInputWithoutPending(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	assert.ErrorIs(t, c.RespondToHumanInput("yes"), ErrNoPendingHumanInput)
}

func TestWorkflowCompletedFiresOnce(t *testing.T) {
	var finals []string
	c := newDetachedClient(t, Hooks{
		OnComplete: func(content string) { finals = append(finals, content) },
	})

	feed(c, `{"type":"workflow_completed","data":{"final_content":"Hello"}}`)
	feed(c, `{"type":"workflow_completed","data":{"final_content":"Hello"}}`)

	require.Len(t, finals, 1)
	assert.Equal(t, "Hello", finals[0])
	snap := c.Snapshot()
	assert.Equal(t, state.WorkflowCompleted, snap.Workflow)
	assert.Equal(t, "Hello", snap.FinalContent)
}

func TestWorkflowError(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"workflow_error","error":"generator crashed"}`)

	snap := c.Snapshot()
	assert.Equal(t, state.WorkflowError, snap.Workflow)
	require.Len(t, snap.Messages, 1)
	assert.Contains(t, snap.Messages[0].Content, "generator crashed")
}

func TestUnknownEventSurfacesContent(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	feed(c, `{"type":"future_event","message":"something new"}`)
	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "something new", snap.Messages[0].Content)

	// no extractable content: dropped silently
	feed(c, `{"type":"future_event","payload":42}`)
	assert.Equal(t, 1, c.Store().MessageCount())
}

func TestMalformedFramesDropped(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	c.handleFrame("wf-1", []byte("definitely-not-json"))
	c.handleFrame("wf-1", []byte(`{"no_type_here":true}`))

	assert.Zero(t, c.Store().MessageCount())
	assert.Equal(t, state.ConnDisconnected, c.Store().Connection())
}

func TestRepairableFrameStillHandled(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	// trailing comma: strict parse fails, repair recovers it
	feed(c, `{"type":"agent_message","agent_id":"writer","content":"fixed",}`)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "fixed", snap.Messages[0].Content)
}

func TestHeartbeatProducesNoTranscriptEntry(t *testing.T) {
	c := newDetachedClient(t, Hooks{})
	feed(c, `{"type":"heartbeat"}`)
	feed(c, `{"type":"pong"}`)
	assert.Zero(t, c.Store().MessageCount())
}

func TestSendUserMessageRequiresConnection(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	err := c.SendUserMessage("hello")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, c.Store().MessageCount(), "failed sends must not be echoed")

	require.Error(t, c.SendUserMessage("   "))
}

func TestCheckpointDecisionRequiresPendingAndAPI(t *testing.T) {
	c := newDetachedClient(t, Hooks{})

	assert.ErrorIs(t, c.ApproveCheckpoint(context.Background(), ""), ErrNoPendingCheckpoint)

	feed(c, `{"type":"checkpoint_required","checkpoint_id":"cp-1"}`)
	assert.ErrorIs(t, c.RejectCheckpoint(context.Background(), "no"), ErrNoAPI)

	// the failed decision leaves the checkpoint pending
	_, ok := c.Store().Checkpoint()
	assert.True(t, ok)
}
