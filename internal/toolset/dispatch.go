package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentcore/soul/internal/approval"
	"github.com/agentcore/soul/pkg/message"
)

// ApprovalGate is the subset of *approval.Coordinator dispatch needs, kept
// as an interface so tests can substitute a fake.
type ApprovalGate interface {
	Request(ctx context.Context, action, description, sender, toolCallID string) (approval.Decision, string, error)
}

// Dispatcher runs tool calls against a Registry, gating approval-required
// calls through gate (spec §4.5 dispatch steps 1-6).
type Dispatcher struct {
	registry *Registry
	gate     ApprovalGate
	sender   string // identity used as the approval fingerprint's "sender"
}

// NewDispatcher builds a Dispatcher. gate may be nil if no tool in the
// registry requires approval.
func NewDispatcher(registry *Registry, gate ApprovalGate, sender string) *Dispatcher {
	return &Dispatcher{registry: registry, gate: gate, sender: sender}
}

// Result pairs a tool call's id with its return value, for callers that
// need to correlate back into a wire ToolResult envelope. Denied marks the
// "output-denied" state named in spec §4.5 step 3, distinct from a plain
// tool error.
type Result struct {
	ID     string
	Value  message.ToolReturnValue
	Denied bool
}

// Dispatch runs one tool call through the full pipeline (parse, validate,
// approval, invoke, panic recovery).
func (d *Dispatcher) Dispatch(ctx context.Context, call message.ToolCall) message.ToolReturnValue {
	value, _ := d.dispatch(ctx, call)
	return value
}

func (d *Dispatcher) dispatch(ctx context.Context, call message.ToolCall) (message.ToolReturnValue, bool) {
	tool, ok := d.registry.Get(call.Function.Name)
	if !ok {
		return message.ErrorResult(fmt.Sprintf("tool not found: %s", call.Function.Name)), false
	}

	var args any
	argsJSON := call.Function.Arguments
	if argsJSON == "" {
		argsJSON = "{}"
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return message.ErrorResult("Invalid JSON arguments"), false
	}

	if schema, ok := d.registry.schemaFor(call.Function.Name); ok {
		if err := schema.Validate(args); err != nil {
			return message.ErrorResult(err.Error()), false
		}
	}

	if tool.RequiresApproval() && d.gate != nil {
		decision, reason, err := d.gate.Request(ctx, tool.Name(), tool.Description(), d.sender, call.ID)
		if err != nil {
			return message.ErrorResult(fmt.Sprintf("approval error: %v", err)), false
		}
		if decision == approval.Reject || decision == approval.RejectedWithReason {
			msg := "tool call denied"
			if reason != "" {
				msg = fmt.Sprintf("tool call denied: %s", reason)
			}
			return message.ToolReturnValue{IsError: true, Message: msg}, true
		}
	}

	return d.invoke(ctx, tool, []byte(argsJSON)), false
}

// invoke calls the tool body with panic recovery, so a faulting tool never
// kills the step (spec §4.5 step 5).
func (d *Dispatcher) invoke(ctx context.Context, tool Tool, args json.RawMessage) (result message.ToolReturnValue) {
	defer func() {
		if r := recover(); r != nil {
			result = message.ErrorResult(fmt.Sprintf("Tool runtime error: %v", r))
		}
	}()
	return tool.Call(ctx, args)
}

// DispatchAll runs every call concurrently and returns results indexed by
// original declaration order (spec §4.5: "Parallel tool calls ... results
// are appended to context in the original call order").
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []message.ToolCall) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c message.ToolCall) {
			defer wg.Done()
			value, denied := d.dispatch(ctx, c)
			results[idx] = Result{ID: c.ID, Value: value, Denied: denied}
		}(i, call)
	}
	wg.Wait()
	return results
}
