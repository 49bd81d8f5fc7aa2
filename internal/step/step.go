// Package step implements the step driver described in spec §4.8: one LLM
// round-trip — stream, merge, flush onto the wire, dispatch tool calls,
// persist the result.
//
// Grounded on the teacher's AgenticLoop (internal/agent/loop.go) for the
// overall stream/merge/execute-tools/retry shape, and its LLMProvider
// (internal/agent/provider_types.go) for the Provider/CompletionRequest/
// streamed-chunk split — adapted so the provider speaks pkg/message's
// StreamEvent algebra directly instead of a provider-specific delta type,
// letting this package merge and flush through the same code the wire bus
// uses (internal/wire.EventAndPayloadForStreamEvent). Retry classification
// (transient vs. non-retryable) is grounded on the teacher's
// ToolErrorType.IsRetryable (internal/agent/errors.go), adapted from tool
// errors to provider-stream errors.
package step

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/internal/toolset"
	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// ErrContextLengthExceeded is returned (wrapped) by a Provider when the
// request no longer fits the model's context window. It is never retried:
// the turn driver ends the turn as interrupted with reason
// "context_length_exceeded", and compaction runs ahead of a later step only
// when compaction.Manager.ShouldCompact reports the threshold crossed.
var ErrContextLengthExceeded = errors.New("step: context length exceeded")

// ToolSpec declares one callable tool to a Provider.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// BuildToolSpecs lists every tool in registry as a ToolSpec, sorted by name
// so the completion request a Provider sees is stable across steps.
func BuildToolSpecs(registry *toolset.Registry) []ToolSpec {
	names := registry.Names()
	sort.Strings(names)
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		tool, ok := registry.Get(name)
		if !ok {
			continue
		}
		specs = append(specs, ToolSpec{Name: tool.Name(), Description: tool.Description(), Schema: tool.Schema()})
	}
	return specs
}

// CompletionRequest is a step's inputs to a Provider (spec §4.8: "snapshot
// of messages, toolset, cancellation token, reserved token budget").
type CompletionRequest struct {
	Model     string
	Messages  []message.Message
	Tools     []ToolSpec
	MaxTokens int
}

// Chunk is one unit of a streamed completion. Exactly one of Event, Err, or
// Done is meaningful per value; a final chunk carries Done plus any usage
// the provider reported alongside it.
type Chunk struct {
	Event *message.StreamEvent
	Err   error

	Done         bool
	InputTokens  int
	OutputTokens int
}

// Provider opens one streaming chat completion. Implemented by internal/llm
// for each backend; Stream itself failing (e.g. an HTTP error opening the
// request) and a Chunk.Err arriving mid-stream are both valid failure
// shapes and are classified identically by Driver.
type Provider interface {
	Stream(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}

// Config controls step-level retry behavior.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	MaxTokens    int
}

// DefaultConfig returns the documented step-driver defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBackoff: time.Second, MaxTokens: 4096}
}

// DMailToolName is the built-in tool name that triggers a checkpoint rewind
// (spec §4.7). The step driver recognizes it by name so it can stop normal
// step completion and hand control back to the turn driver instead of
// persisting this step's output.
const DMailToolName = "send_dmail"

// Result is returned at step end (spec §4.8).
type Result struct {
	HasToolCalls bool

	// DMailTriggered reports that a send_dmail call succeeded during this
	// step: the context store has already been rewound and no other part of
	// this step was persisted (spec §4.7). The turn driver resumes normal
	// looping from the rewound history; it must not treat this as
	// StepInterrupted.
	DMailTriggered bool
}

// Driver runs one step at a time against a single session's store and bus.
type Driver struct {
	cfg        Config
	provider   Provider
	store      *contextstore.Store
	bus        *wire.Bus
	dispatcher *toolset.Dispatcher
	model      string
}

// New builds a Driver. A zero-value cfg falls back to DefaultConfig.
func New(cfg Config, provider Provider, store *contextstore.Store, bus *wire.Bus, dispatcher *toolset.Dispatcher, model string) *Driver {
	defaults := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	return &Driver{cfg: cfg, provider: provider, store: store, bus: bus, dispatcher: dispatcher, model: model}
}

// Run executes one step: open a streaming completion over the store's
// current snapshot, merge and flush its parts onto the wire, finalize and
// persist the assistant message, then dispatch any tool calls it carries
// and persist their results (spec §4.8).
func (d *Driver) Run(ctx context.Context, tools []ToolSpec) (Result, error) {
	history, err := d.store.Snapshot()
	if err != nil {
		return Result{}, fmt.Errorf("step: snapshot: %w", err)
	}

	req := CompletionRequest{Model: d.model, Messages: history, Tools: tools, MaxTokens: d.cfg.MaxTokens}

	assistantMsg, usage, err := d.streamWithRetry(ctx, req)
	if err != nil {
		return Result{}, err
	}

	for _, call := range assistantMsg.ToolCalls {
		if call.Function.Name != DMailToolName {
			continue
		}
		value := d.dispatcher.Dispatch(ctx, call)
		if !value.IsError {
			return Result{DMailTriggered: true}, nil
		}
		// The rewind failed (e.g. unknown checkpoint): fall through and
		// persist this step normally, including a second, final dispatch of
		// the same call below, which fails identically and becomes an
		// ordinary tool-error result.
		break
	}

	if err := d.store.Append(contextstore.MessageEntry(assistantMsg)); err != nil {
		return Result{}, fmt.Errorf("step: append assistant message: %w", err)
	}
	if usage > 0 {
		if err := d.store.RecordUsage(usage); err != nil {
			return Result{}, fmt.Errorf("step: record usage: %w", err)
		}
	}

	if len(assistantMsg.ToolCalls) == 0 {
		return Result{HasToolCalls: false}, nil
	}

	for _, r := range d.dispatcher.DispatchAll(ctx, assistantMsg.ToolCalls) {
		toolMsg := message.Message{
			Role:       message.RoleTool,
			ToolCallID: r.ID,
			Content:    []message.Part{message.TextPart(toolOutputText(r.Value))},
		}
		if err := d.store.Append(contextstore.MessageEntry(toolMsg)); err != nil {
			return Result{}, fmt.Errorf("step: append tool result: %w", err)
		}

		display, _ := json.Marshal(r.Value.Display)
		if err := d.bus.Emit(wire.EventToolResult, wire.ToolResultPayload{
			ID:      r.ID,
			IsError: r.Value.IsError,
			Output:  r.Value.Output,
			Message: r.Value.Message,
			Display: display,
			Denied:  r.Denied,
		}); err != nil {
			return Result{}, fmt.Errorf("step: emit tool result: %w", err)
		}
	}

	return Result{HasToolCalls: true}, nil
}

// toolOutputText picks the text a tool-result message should carry: the
// error message when the call failed, otherwise the tool's output.
func toolOutputText(v message.ToolReturnValue) string {
	if v.IsError {
		if v.Message != "" {
			return v.Message
		}
		return "tool call failed"
	}
	return v.Output
}

// streamWithRetry runs streamOnce, retrying transient failures with
// exponential backoff up to cfg.MaxRetries (spec §4.8). Cancellation and
// context-length-exceeded short-circuit without retrying.
func (d *Driver) streamWithRetry(ctx context.Context, req CompletionRequest) (message.Message, int, error) {
	var lastErr error
	backoff := d.cfg.RetryBackoff
	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return message.Message{}, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		msg, usage, err := d.streamOnce(ctx, req)
		if err == nil {
			return msg, usage, nil
		}
		if !isRetryable(err) {
			return message.Message{}, 0, err
		}
		lastErr = err
	}
	return message.Message{}, 0, fmt.Errorf("step: stream after %d attempts: %w", d.cfg.MaxRetries, lastErr)
}

// isRetryable classifies a stream failure (spec §4.8: "Non-retryable:
// schema-validation failures against a known tool ... cancellation,
// context-length-exceeded"). Schema-validation failures never surface here
// at all — they are tool-dispatch errors, handled entirely within
// Dispatcher and returned as an ordinary ToolReturnValue, never a step
// error.
func isRetryable(err error) bool {
	if errors.Is(err, ErrContextLengthExceeded) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// streamOnce opens one streaming completion, merges its parts through
// pkg/message's algebra exactly as the wire bus does, flushing each merged
// fragment onto the bus as its boundary is crossed, and finalizes the
// merged parts into one assistant Message once the stream ends.
func (d *Driver) streamOnce(ctx context.Context, req CompletionRequest) (message.Message, int, error) {
	chunks, err := d.provider.Stream(ctx, req)
	if err != nil {
		return message.Message{}, 0, err
	}

	var buf message.MergeBuffer
	var parts []message.Part
	var toolCallOrder []int
	toolCalls := make(map[int]message.StreamEvent)
	usage := 0

	flush := func(ev message.StreamEvent) {
		if ev.Kind == message.StreamToolCall {
			if _, seen := toolCalls[ev.Index]; !seen {
				toolCallOrder = append(toolCallOrder, ev.Index)
			}
			toolCalls[ev.Index] = ev
		} else {
			parts = append(parts, ev.ToPart())
		}
		if t, payload := wire.EventAndPayloadForStreamEvent(ev); t != "" {
			_ = d.bus.EmitMergeable(t, payload)
		}
	}

	for chunk := range chunks {
		if chunk.Err != nil {
			return message.Message{}, 0, chunk.Err
		}
		if chunk.Event != nil {
			if flushed, ok := buf.Push(*chunk.Event); ok {
				flush(flushed)
			}
		}
		if chunk.InputTokens > 0 || chunk.OutputTokens > 0 {
			usage = chunk.InputTokens + chunk.OutputTokens
		}
		if chunk.Done {
			break
		}
	}
	if flushed, ok := buf.Flush(); ok {
		flush(flushed)
	}

	toolCallList := make([]message.ToolCall, 0, len(toolCallOrder))
	for _, idx := range toolCallOrder {
		toolCallList = append(toolCallList, toolCalls[idx].ToToolCall())
	}

	return message.Message{Role: message.RoleAssistant, Content: parts, ToolCalls: toolCallList}, usage, nil
}
