// This file defines the module's counters and histograms. Grounded on the
// teacher's Metrics/NewMetrics (internal/observability/metrics.go), ported
// from prometheus/client_golang to go.opentelemetry.io/otel/metric: this
// module already standardizes on OpenTelemetry for tracing (tracing.go), so
// metrics use the sibling otel/metric API instead of adding a second
// instrumentation dependency for the same ambient concern. Labels carried
// over one-for-one from the teacher's CounterVec/HistogramVec label sets,
// trimmed to the concepts this module has (llm/tool/turn/wire, not
// channel/webhook/message-queue).
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every instrument this module records against. A zero-value
// Metrics (NewMetrics never returning one) is never constructed; callers
// always go through NewMetrics so instrument creation errors surface once
// at startup rather than being silently swallowed per call site.
type Metrics struct {
	LLMRequestDuration metric.Float64Histogram
	LLMRequestCounter   metric.Int64Counter
	LLMTokensUsed       metric.Int64Counter

	ToolExecutionDuration metric.Float64Histogram
	ToolExecutionCounter  metric.Int64Counter

	TurnDuration metric.Float64Histogram
	TurnCounter  metric.Int64Counter

	WireRequestDuration metric.Float64Histogram
	WireRequestCounter  metric.Int64Counter

	ErrorCounter    metric.Int64Counter
	ActiveSessions  metric.Int64UpDownCounter
}

// NewMetrics registers every instrument against the global otel MeterProvider
// (a no-op recorder unless a real one is installed globally; cmd/soul
// installs none, matching this module's "ambient stack present even when
// unconfigured" logging/tracing convention).
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/agentcore/soul")

	llmDuration, err := meter.Float64Histogram("soul.llm.request.duration",
		metric.WithDescription("Duration of LLM provider requests in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	llmCounter, err := meter.Int64Counter("soul.llm.requests",
		metric.WithDescription("Total LLM provider requests, labeled provider/model/status"))
	if err != nil {
		return nil, err
	}
	llmTokens, err := meter.Int64Counter("soul.llm.tokens",
		metric.WithDescription("Tokens consumed, labeled provider/model/kind"))
	if err != nil {
		return nil, err
	}
	toolDuration, err := meter.Float64Histogram("soul.tool.execution.duration",
		metric.WithDescription("Duration of tool executions in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	toolCounter, err := meter.Int64Counter("soul.tool.executions",
		metric.WithDescription("Total tool executions, labeled tool_name/status"))
	if err != nil {
		return nil, err
	}
	turnDuration, err := meter.Float64Histogram("soul.turn.duration",
		metric.WithDescription("Duration of a full turn in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	turnCounter, err := meter.Int64Counter("soul.turn.count",
		metric.WithDescription("Total turns run, labeled outcome"))
	if err != nil {
		return nil, err
	}
	wireDuration, err := meter.Float64Histogram("soul.wire.request.duration",
		metric.WithDescription("Duration of JSON-RPC requests in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	wireCounter, err := meter.Int64Counter("soul.wire.requests",
		metric.WithDescription("Total JSON-RPC requests, labeled method/status"))
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter("soul.errors",
		metric.WithDescription("Total errors, labeled component/error_type"))
	if err != nil {
		return nil, err
	}
	activeSessions, err := meter.Int64UpDownCounter("soul.sessions.active",
		metric.WithDescription("Current number of open sessions"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		LLMRequestDuration:    llmDuration,
		LLMRequestCounter:     llmCounter,
		LLMTokensUsed:         llmTokens,
		ToolExecutionDuration: toolDuration,
		ToolExecutionCounter:  toolCounter,
		TurnDuration:          turnDuration,
		TurnCounter:           turnCounter,
		WireRequestDuration:   wireDuration,
		WireRequestCounter:    wireCounter,
		ErrorCounter:          errCounter,
		ActiveSessions:        activeSessions,
	}, nil
}

// RecordLLMRequest records one completed LLM provider round-trip.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, model, status string, seconds float64) {
	attrs := metric.WithAttributes(stringAttrs("provider", provider, "model", model, "status", status)...)
	m.LLMRequestDuration.Record(ctx, seconds, attrs)
	m.LLMRequestCounter.Add(ctx, 1, attrs)
}

// RecordLLMTokens records token usage for one completed request.
func (m *Metrics) RecordLLMTokens(ctx context.Context, provider, model, kind string, count int64) {
	m.LLMTokensUsed.Add(ctx, count, metric.WithAttributes(stringAttrs("provider", provider, "model", model, "kind", kind)...))
}

// RecordToolExecution records one completed tool dispatch.
func (m *Metrics) RecordToolExecution(ctx context.Context, toolName, status string, seconds float64) {
	attrs := metric.WithAttributes(stringAttrs("tool_name", toolName, "status", status)...)
	m.ToolExecutionDuration.Record(ctx, seconds, attrs)
	m.ToolExecutionCounter.Add(ctx, 1, attrs)
}

// RecordTurn records one completed turn driver run.
func (m *Metrics) RecordTurn(ctx context.Context, outcome string, seconds float64) {
	attrs := metric.WithAttributes(stringAttrs("outcome", outcome)...)
	m.TurnDuration.Record(ctx, seconds, attrs)
	m.TurnCounter.Add(ctx, 1, attrs)
}

// RecordWireRequest records one completed JSON-RPC request.
func (m *Metrics) RecordWireRequest(ctx context.Context, method, status string, seconds float64) {
	attrs := metric.WithAttributes(stringAttrs("method", method, "status", status)...)
	m.WireRequestDuration.Record(ctx, seconds, attrs)
	m.WireRequestCounter.Add(ctx, 1, attrs)
}

// RecordError increments the error counter for component/errType.
func (m *Metrics) RecordError(ctx context.Context, component, errType string) {
	m.ErrorCounter.Add(ctx, 1, metric.WithAttributes(stringAttrs("component", component, "error_type", errType)...))
}

// SessionOpened/SessionClosed adjust the active-session gauge.
func (m *Metrics) SessionOpened(ctx context.Context) { m.ActiveSessions.Add(ctx, 1) }
func (m *Metrics) SessionClosed(ctx context.Context) { m.ActiveSessions.Add(ctx, -1) }

func stringAttrs(keyvals ...string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		attrs = append(attrs, attribute.String(keyvals[i], keyvals[i+1]))
	}
	return attrs
}
