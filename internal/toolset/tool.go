// Package toolset implements the polymorphic tool dispatch described in
// spec §4.5: a name → tool registry, Draft 2020-12 JSON Schema validation
// (grounded on the teacher's internal/gateway/ws_schema.go, which already
// compiles schemas with github.com/santhosh-tekuri/jsonschema/v5), and
// parallel dispatch that appends results in declaration order.
package toolset

import (
	"context"
	"encoding/json"

	"github.com/agentcore/soul/pkg/message"
)

// Tool is the polymorphic handle every built-in and externally-registered
// tool implements (spec §4.5).
type Tool interface {
	Name() string
	Description() string
	// Schema returns the argument JSON Schema (Draft 2020-12).
	Schema() json.RawMessage
	// RequiresApproval reports whether dispatch must rendezvous through the
	// approval coordinator before calling Call.
	RequiresApproval() bool
	// Call executes the tool. ctx is cancellation-aware: a tool that wants
	// to cooperate with cancellation should select on ctx.Done().
	Call(ctx context.Context, args json.RawMessage) message.ToolReturnValue
}

// BaseTool is an embeddable helper for simple tools with a static
// description/schema; Approval sets what RequiresApproval reports.
type BaseTool struct {
	NameValue        string
	DescriptionValue string
	SchemaValue      json.RawMessage
	Approval         bool
}

func (b BaseTool) Name() string             { return b.NameValue }
func (b BaseTool) Description() string      { return b.DescriptionValue }
func (b BaseTool) Schema() json.RawMessage  { return b.SchemaValue }
func (b BaseTool) RequiresApproval() bool   { return b.Approval }

// FuncTool adapts a plain function into a Tool, for tests and small
// built-ins that don't need a dedicated type.
type FuncTool struct {
	BaseTool
	Fn func(ctx context.Context, args json.RawMessage) message.ToolReturnValue
}

func (f FuncTool) Call(ctx context.Context, args json.RawMessage) message.ToolReturnValue {
	return f.Fn(ctx, args)
}
