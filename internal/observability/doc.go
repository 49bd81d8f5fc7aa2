// Package observability provides the ambient logging, tracing and metrics
// stack every other package in this module is built against: a redacting
// slog.Handler for structured logs, an OpenTelemetry Tracer for spans, and
// an OpenTelemetry Meter for counters/histograms.
//
// Grounded on the teacher's internal/observability package (logging.go,
// tracing.go, metrics.go, events.go), generalized in three ways:
//
//   - logging.go ports the teacher's custom Logger wrapper type into a
//     slog.Handler middleware instead, since this module threads a plain
//     *slog.Logger through every constructor (compaction.New, session.Open,
//     llm.New, ...) rather than a bespoke logging type.
//   - metrics.go replaces the teacher's prometheus/client_golang metrics
//     with go.opentelemetry.io/otel/metric counters/histograms, so metrics
//     and tracing share one SDK family instead of introducing a second
//     dependency for the same ambient concern.
//   - events.go's context-correlation keys are kept (run/session/tool-call
//     IDs); its webhook/message-queue/channel-specific diagnostic event
//     types are dropped, since this module has no webhook ingestion or
//     per-channel message queues.
package observability
