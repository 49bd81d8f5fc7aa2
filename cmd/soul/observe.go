package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentcore/soul/internal/observability"
	"github.com/agentcore/soul/internal/wire"
)

// busObserver turns wire envelopes into spans and metrics. Grounded on the
// teacher's gateway.TracingPlugin (internal/gateway/tracing_plugin.go), which
// does the same translation from agent events to spans keyed by run/tool-call
// id; this folds metric recording in alongside span lifecycle since both are
// keyed by the same ids, and is fed from this module's wire.Bus instead of a
// plugin callback.
type busObserver struct {
	tracer  *observability.Tracer
	metrics *observability.Metrics
	logger  *slog.Logger

	mu          sync.Mutex
	toolSpans   map[string]toolSpan
	turnSpan    trace.Span
	turnStart   time.Time
	compactSpan trace.Span
}

type toolSpan struct {
	name  string
	span  trace.Span
	start time.Time
}

func newBusObserver(tracer *observability.Tracer, metrics *observability.Metrics, logger *slog.Logger) *busObserver {
	return &busObserver{
		tracer:    tracer,
		metrics:   metrics,
		logger:    logger,
		toolSpans: make(map[string]toolSpan),
	}
}

// run drains sub until the bus closes it. A dropped envelope here only
// undercounts a metric; it never loses a protocol message, since the wire
// server holds its own independent subscription (spec §4.3, §5).
func (o *busObserver) run(ctx context.Context, sub *wire.Subscription) {
	for env := range sub.C() {
		o.observe(ctx, env)
	}
}

func (o *busObserver) observe(ctx context.Context, env wire.Envelope) {
	switch env.Type {
	case wire.EventTurnBegin:
		var p wire.TurnBeginPayload
		if !o.decode(env, &p) {
			return
		}
		_, span := o.tracer.TraceTurn(ctx, p.TurnID)
		o.mu.Lock()
		o.turnSpan, o.turnStart = span, time.Now()
		o.mu.Unlock()

	case wire.EventStepInterrupted:
		var p wire.StepInterruptedPayload
		if !o.decode(env, &p) {
			return
		}
		o.endTurn(ctx, p.Reason)

	case wire.EventToolCall:
		var p wire.ToolCallPayload
		if !o.decode(env, &p) {
			return
		}
		_, span := o.tracer.TraceTool(ctx, p.Name)
		o.mu.Lock()
		o.toolSpans[p.ID] = toolSpan{name: p.Name, span: span, start: time.Now()}
		o.mu.Unlock()

	case wire.EventToolResult:
		var p wire.ToolResultPayload
		if !o.decode(env, &p) {
			return
		}
		o.endTool(ctx, p)

	case wire.EventCompactionBegin:
		_, span := o.tracer.Start(ctx, "compaction.run")
		o.mu.Lock()
		o.compactSpan = span
		o.mu.Unlock()

	case wire.EventCompactionEnd:
		var p wire.CompactionEndPayload
		if !o.decode(env, &p) {
			return
		}
		o.mu.Lock()
		span := o.compactSpan
		o.compactSpan = nil
		o.mu.Unlock()
		if span != nil {
			o.tracer.SetAttributes(span, "dropped_messages", p.DroppedMessages)
			span.End()
		}
	}
}

// decode unmarshals env's payload into v, logging and reporting failure
// instead of panicking: a malformed envelope should cost this observer one
// data point, never take down the run it is only watching.
func (o *busObserver) decode(env wire.Envelope, v any) bool {
	if err := json.Unmarshal(env.Payload, v); err != nil {
		o.logger.Warn("soul: observability decode envelope", "type", env.Type, "error", err)
		return false
	}
	return true
}

func (o *busObserver) endTool(ctx context.Context, p wire.ToolResultPayload) {
	o.mu.Lock()
	ts, ok := o.toolSpans[p.ID]
	delete(o.toolSpans, p.ID)
	o.mu.Unlock()

	status := "ok"
	switch {
	case p.Denied:
		status = "denied"
	case p.IsError:
		status = "error"
	}

	if ok {
		o.metrics.RecordToolExecution(ctx, ts.name, status, time.Since(ts.start).Seconds())
		if p.IsError {
			o.tracer.RecordError(ts.span, errors.New(p.Message))
		}
		ts.span.End()
	}
	if p.IsError {
		o.metrics.RecordError(ctx, "tool", "execution_failed")
	}
}

func (o *busObserver) endTurn(ctx context.Context, reason string) {
	o.mu.Lock()
	span := o.turnSpan
	start := o.turnStart
	o.turnSpan = nil
	o.mu.Unlock()
	if span == nil {
		return
	}
	outcome := "completed"
	if reason != "" {
		outcome = reason
	}
	o.metrics.RecordTurn(ctx, outcome, time.Since(start).Seconds())
	span.End()
}
