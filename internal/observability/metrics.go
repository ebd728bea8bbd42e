// Package observability exposes session metrics through an OpenTelemetry
// meter backed by a Prometheus exporter.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"

	"go.opentelemetry.io/otel/exporters/prometheus"

	"inkwell/internal/logging"
)

// MetricsCollector manages the workflow client's metrics. A collector
// built with metrics disabled is a safe no-op.
type MetricsCollector struct {
	meter  metric.Meter
	logger logging.Logger

	eventsReceived      metric.Int64Counter
	messagesAppended    metric.Int64Counter
	reconnects          metric.Int64Counter
	checkpointDecisions metric.Int64Counter
	sessionsActive      metric.Int64UpDownCounter
	apiDuration         metric.Float64Histogram

	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(config MetricsConfig, logger logging.Logger) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{logger: logging.OrNop(logger)}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", "inkwell"),
		)),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("inkwell")

	eventsReceived, err := meter.Int64Counter(
		"inkwell.events.received.total",
		metric.WithDescription("Total inbound workflow events by type"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	messagesAppended, err := meter.Int64Counter(
		"inkwell.messages.appended.total",
		metric.WithDescription("Total messages appended to session transcripts"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	reconnects, err := meter.Int64Counter(
		"inkwell.reconnects.total",
		metric.WithDescription("Total reconnect attempts scheduled"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconnects counter: %w", err)
	}

	checkpointDecisions, err := meter.Int64Counter(
		"inkwell.checkpoints.decisions.total",
		metric.WithDescription("Checkpoint approvals and rejections sent"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint decisions counter: %w", err)
	}

	sessionsActive, err := meter.Int64UpDownCounter(
		"inkwell.sessions.active",
		metric.WithDescription("Number of active workflow sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions_active gauge: %w", err)
	}

	apiDuration, err := meter.Float64Histogram(
		"inkwell.api.duration",
		metric.WithDescription("REST collaborator call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api_duration histogram: %w", err)
	}

	collector := &MetricsCollector{
		meter:               meter,
		logger:              logging.OrNop(logger),
		eventsReceived:      eventsReceived,
		messagesAppended:    messagesAppended,
		reconnects:          reconnects,
		checkpointDecisions: checkpointDecisions,
		sessionsActive:      sessionsActive,
		apiDuration:         apiDuration,
	}

	if config.ListenAddr != "" {
		collector.startPrometheusServer(config.ListenAddr)
	}

	return collector, nil
}

func (m *MetricsCollector) startPrometheusServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		m.logger.Info("Prometheus metrics server listening on %s", addr)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Prometheus server error: %v", err)
		}
	}()
}

// Shutdown gracefully shuts down the metrics collector.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.prometheusServer == nil {
		return nil
	}
	return m.prometheusServer.Shutdown(ctx)
}

// RecordEvent records one inbound event.
func (m *MetricsCollector) RecordEvent(ctx context.Context, eventType string) {
	if m == nil || m.eventsReceived == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.eventsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

// RecordMessage records one transcript append.
func (m *MetricsCollector) RecordMessage(ctx context.Context, kind string) {
	if m == nil || m.messagesAppended == nil {
		return
	}
	m.messagesAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("message.kind", kind)))
}

// RecordReconnect records a scheduled reconnect attempt.
func (m *MetricsCollector) RecordReconnect(ctx context.Context) {
	if m == nil || m.reconnects == nil {
		return
	}
	m.reconnects.Add(ctx, 1)
}

// RecordCheckpointDecision records an approval or rejection.
func (m *MetricsCollector) RecordCheckpointDecision(ctx context.Context, approved bool) {
	if m == nil || m.checkpointDecisions == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.checkpointDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// SessionStarted increments the active-session gauge.
func (m *MetricsCollector) SessionStarted(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, 1)
}

// SessionEnded decrements the active-session gauge.
func (m *MetricsCollector) SessionEnded(ctx context.Context) {
	if m == nil || m.sessionsActive == nil {
		return
	}
	m.sessionsActive.Add(ctx, -1)
}

// RecordAPICall records a REST collaborator round-trip.
func (m *MetricsCollector) RecordAPICall(ctx context.Context, route string, elapsed time.Duration, err error) {
	if m == nil || m.apiDuration == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.apiDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", status),
	))
}
