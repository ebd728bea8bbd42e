package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/internal/jsonx"
	"inkwell/internal/state"
	"inkwell/internal/wstest"
)

func newLiveClient(t *testing.T, srv *wstest.Server, opts Options) *Client {
	t.Helper()
	if opts.WorkflowID == "" {
		opts.WorkflowID = "wf-live"
	}
	opts.BaseURL = srv.URL()
	opts.MaxReconnectAttempts = 3
	opts.ReconnectBaseDelay = 10 * time.Millisecond
	opts.ReconnectMaxDelay = 50 * time.Millisecond
	opts.KeepAliveInterval = time.Minute

	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond, msg)
}

func TestClientStreamLifecycle(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	require.NoError(t, srv.Push("wf-live", map[string]any{
		"type": "agent_message", "agent_id": "writer", "content": "draft ready",
	}))
	waitFor(t, func() bool { return c.Store().MessageCount() == 1 }, "pushed event should land in the transcript")

	require.NoError(t, c.SendUserMessage("looks good"))

	select {
	case frame := <-srv.Inbound():
		var decoded map[string]any
		require.NoError(t, jsonx.Unmarshal(frame.Data, &decoded))
		assert.Equal(t, "user_message", decoded["type"])
		assert.Equal(t, "looks good", decoded["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the user message")
	}

	// the send also echoes locally, after the agent message
	waitFor(t, func() bool { return c.Store().MessageCount() == 2 }, "user echo should append")
	snap := c.Snapshot()
	assert.Equal(t, state.KindUser, snap.Messages[1].Kind)

	c.Close()
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnDisconnected }, "close should disconnect")
	c.Close() // second close is a no-op
}

func TestCheckpointDecisionOverREST(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	require.NoError(t, srv.Push("wf-live", map[string]any{
		"type": "checkpoint_required", "checkpoint_id": "cp-1", "title": "Review outline",
	}))
	waitFor(t, func() bool { _, ok := c.Store().Checkpoint(); return ok }, "checkpoint should become pending")

	require.NoError(t, c.ApproveCheckpoint(context.Background(), "ship it"))

	select {
	case decision := <-srv.Decisions():
		assert.Equal(t, "cp-1", decision.CheckpointID)
		assert.True(t, decision.Approved)
		assert.Equal(t, "ship it", decision.Feedback)
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the decision")
	}

	_, ok := c.Store().Checkpoint()
	assert.False(t, ok, "acknowledged decision should clear the checkpoint")
	assert.Equal(t, state.WorkflowRunning, c.Store().Workflow())
}

func TestCheckpointDecisionFailureKeepsPending(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	require.NoError(t, srv.Push("wf-live", map[string]any{
		"type": "checkpoint_required", "checkpoint_id": "cp-1",
	}))
	waitFor(t, func() bool { _, ok := c.Store().Checkpoint(); return ok }, "checkpoint should become pending")

	srv.FailREST(true)
	require.Error(t, c.RejectCheckpoint(context.Background(), "redo"))

	cp, ok := c.Store().Checkpoint()
	require.True(t, ok, "failed decision must leave the checkpoint pending")
	assert.Equal(t, "cp-1", cp.ID)
	assert.Equal(t, state.WorkflowPaused, c.Store().Workflow())

	srv.FailREST(false)
	require.NoError(t, c.RejectCheckpoint(context.Background(), "redo"))
	_, ok = c.Store().Checkpoint()
	assert.False(t, ok)
}

func TestHistoryBootstrap(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	srv.SetHistory("wf-live", []map[string]any{
		{"id": "m1", "type": "agent", "agent_id": "writer", "content": "earlier draft"},
		{"id": "m2", "type": "user", "message_content": "please shorten"},
	})

	c := newLiveClient(t, srv, Options{BootstrapHistory: true})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	snap := c.Snapshot()
	require.GreaterOrEqual(t, len(snap.Messages), 2)
	assert.Equal(t, "earlier draft", snap.Messages[0].Content)
	assert.Equal(t, state.KindAgent, snap.Messages[0].Kind)
	assert.Equal(t, "please shorten", snap.Messages[1].Content)
	assert.Equal(t, state.KindUser, snap.Messages[1].Kind)
}

func TestReconnectAfterDrop(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	srv.DropConnections("wf-live")

	waitFor(t, func() bool {
		return srv.ConnectionCount("wf-live") == 1 && c.Store().Connection() == state.ConnConnected
	}, "client should reconnect after an abnormal drop")

	found := false
	for _, msg := range c.Snapshot().Messages {
		if msg.Kind == state.KindSystem {
			found = true
			break
		}
	}
	assert.True(t, found, "the retry should be visible in the transcript")
}

func TestExhaustionThenManualReconnect(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	srv.RefuseUpgrades(true)
	srv.DropConnections("wf-live")

	waitFor(t, func() bool { return c.Store().Connection() == state.ConnDisconnected }, "retries should exhaust")

	exhaustedNote := false
	for _, msg := range c.Snapshot().Messages {
		if msg.Kind == state.KindSystem && msg.Content == "connection lost and automatic retries are exhausted; reconnect to resume" {
			exhaustedNote = true
		}
	}
	assert.True(t, exhaustedNote, "exhaustion should leave a terminal transcript entry")

	srv.RefuseUpgrades(false)
	require.NoError(t, c.Reconnect())
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "manual reconnect should succeed")
	assert.Zero(t, c.Snapshot().ReconnectAttempts)
}

func TestStatusFallbackOverREST(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	srv.SetStatus("wf-live", map[string]any{
		"workflow_id":   "wf-live",
		"status":        "paused",
		"current_stage": "review",
		"active_agents": []string{"writer", "editor"},
	})

	// never started: no stream, so the status request takes the REST path
	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.RequestStatus(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, state.WorkflowPaused, snap.Workflow)
	assert.Equal(t, "review", snap.Stage)
	assert.Equal(t, []string{"editor", "writer"}, snap.ActiveAgents)
}

func TestStatusOverStream(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()

	c := newLiveClient(t, srv, Options{})
	require.NoError(t, c.Start(context.Background()))
	waitFor(t, func() bool { return c.Store().Connection() == state.ConnConnected }, "client should connect")

	require.NoError(t, c.RequestStatus(context.Background()))

	select {
	case frame := <-srv.Inbound():
		var decoded map[string]any
		require.NoError(t, jsonx.Unmarshal(frame.Data, &decoded))
		assert.Equal(t, "get_status", decoded["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the status request")
	}
}
