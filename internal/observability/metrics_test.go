package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inkwell/internal/logging"
)

func TestDisabledCollectorIsNoop(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: false}, logging.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	collector.RecordEvent(ctx, "agent_message")
	collector.RecordMessage(ctx, "agent")
	collector.RecordReconnect(ctx)
	collector.RecordCheckpointDecision(ctx, true)
	collector.SessionStarted(ctx)
	collector.SessionEnded(ctx)
	collector.RecordAPICall(ctx, "status", time.Millisecond, nil)
	require.NoError(t, collector.Shutdown(ctx))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *MetricsCollector
	ctx := context.Background()
	collector.RecordEvent(ctx, "agent_message")
	collector.RecordReconnect(ctx)
	require.NoError(t, collector.Shutdown(ctx))
}

func TestEnabledCollectorRecords(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: true}, logging.Nop())
	require.NoError(t, err)
	defer func() { _ = collector.Shutdown(context.Background()) }()

	ctx := context.Background()
	collector.RecordEvent(ctx, "")
	collector.RecordEvent(ctx, "checkpoint_required")
	collector.RecordCheckpointDecision(ctx, false)
	collector.SessionStarted(ctx)
	collector.RecordAPICall(ctx, "approve", 20*time.Millisecond, nil)
	collector.SessionEnded(ctx)
}
