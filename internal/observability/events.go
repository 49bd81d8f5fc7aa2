// This file implements context correlation IDs threaded through logging and
// tracing: a turn's run ID and a tool call's ID, so a log line or span can be
// traced back to the turn/step that produced it.
package observability

import "context"

// ContextKey is the type for context keys used by logging and tracing.
type ContextKey string

const (
	// SessionIDKey is the context key for the active session ID.
	SessionIDKey ContextKey = "session_id"

	// RunIDKey is the context key for a turn's run ID (spec §4.9's "Soul"
	// turn driver assigns one per turn).
	RunIDKey ContextKey = "run_id"

	// ToolCallIDKey is the context key for a tool call ID (spec §4.5's
	// toolset dispatch assigns one per invocation).
	ToolCallIDKey ContextKey = "tool_call_id"
)

// WithSessionID returns a context carrying sessionID for later extraction by
// the logging handler and tracer.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// SessionID retrieves the session ID previously attached by WithSessionID.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithRunID returns a context carrying runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// RunID retrieves the run ID previously attached by WithRunID.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(RunIDKey).(string)
	return id
}

// WithToolCallID returns a context carrying toolCallID.
func WithToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

// ToolCallID retrieves the tool call ID previously attached by
// WithToolCallID.
func ToolCallID(ctx context.Context) string {
	id, _ := ctx.Value(ToolCallIDKey).(string)
	return id
}
