package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agentcore/soul/internal/wire"
	"github.com/agentcore/soul/pkg/message"
)

// ToolCallResultPayload is the client's reply to an outbound ToolCallRequest
// (spec §4.10: "client must reply with ToolCallResult{is_error, output,
// display?, extras?}"). It is not one of the wire bus's pinned envelope
// types (spec §4.3's stability-pinned sum is the *event* side only): the
// request/reply correlation for externally-registered tools lives entirely
// at the JSON-RPC layer, tracked by ToolCallRequestPayload.ID.
type ToolCallResultPayload struct {
	ID      string                 `json:"id"`
	IsError bool                   `json:"is_error"`
	Output  string                 `json:"output"`
	Display []message.DisplayBlock `json:"display,omitempty"`
}

// ExternalToolCoordinator brokers a request/response rendezvous between an
// externally-registered tool's Call and the client's eventual
// ToolCallResult reply, mirroring internal/approval.Coordinator's rendezvous
// shape but keyed by tool-call id instead of an approval fingerprint.
type ExternalToolCoordinator struct {
	bus *wire.Bus

	mu      sync.Mutex
	pending map[string]chan ToolCallResultPayload
}

// NewExternalToolCoordinator creates a coordinator bound to bus, used to
// emit outbound ToolCallRequest envelopes.
func NewExternalToolCoordinator(bus *wire.Bus) *ExternalToolCoordinator {
	return &ExternalToolCoordinator{bus: bus, pending: make(map[string]chan ToolCallResultPayload)}
}

// Request emits a ToolCallRequest and blocks until Resolve delivers a
// matching reply or ctx is cancelled.
func (c *ExternalToolCoordinator) Request(ctx context.Context, name string, args json.RawMessage) (ToolCallResultPayload, error) {
	id := uuid.NewString()
	ch := make(chan ToolCallResultPayload, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.bus.Emit(wire.RequestToolCallRequest, wire.ToolCallRequestPayload{ID: id, Name: name, Args: args}); err != nil {
		return ToolCallResultPayload{}, fmt.Errorf("rpcserver: emit tool call request: %w", err)
	}

	select {
	case <-ctx.Done():
		return ToolCallResultPayload{}, ctx.Err()
	case result := <-ch:
		return result, nil
	}
}

// Resolve delivers a client's ToolCallResult reply to the matching pending
// Request. Resolving an unknown or already-resolved id is a no-op.
func (c *ExternalToolCoordinator) Resolve(result ToolCallResultPayload) {
	c.mu.Lock()
	ch, ok := c.pending[result.ID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- result:
	default:
	}
}

// ExternalTool adapts an externally-registered tool (spec §4.10's
// `initialize` params) into a toolset.Tool: calling it emits a
// ToolCallRequest and waits for the client's ToolCallResult.
type ExternalTool struct {
	NameValue        string
	DescriptionValue string
	SchemaValue      json.RawMessage
	Coordinator      *ExternalToolCoordinator
}

func (t ExternalTool) Name() string            { return t.NameValue }
func (t ExternalTool) Description() string     { return t.DescriptionValue }
func (t ExternalTool) Schema() json.RawMessage { return t.SchemaValue }
func (t ExternalTool) RequiresApproval() bool  { return false }

func (t ExternalTool) Call(ctx context.Context, args json.RawMessage) message.ToolReturnValue {
	result, err := t.Coordinator.Request(ctx, t.NameValue, args)
	if err != nil {
		return message.ErrorResult(fmt.Sprintf("external tool %q: %v", t.NameValue, err))
	}
	return message.ToolReturnValue{IsError: result.IsError, Output: result.Output, Display: result.Display}
}
