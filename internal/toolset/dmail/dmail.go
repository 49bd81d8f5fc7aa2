// Package dmail implements the send_dmail built-in tool (spec §4.7):
// rewind the conversation to an earlier checkpoint and inject a follow-up
// user message, without treating the rewind as a failed or interrupted
// step. Grounded on internal/contextstore's RevertTo family and the
// teacher's tool-as-struct shape (internal/agent/tool_registry.go).
package dmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentcore/soul/internal/contextstore"
	"github.com/agentcore/soul/pkg/message"
)

const schema = `{
	"type": "object",
	"properties": {
		"checkpoint_id": {"type": "integer", "description": "the checkpoint id to rewind to"},
		"message": {"type": "string", "description": "follow-up user message to inject after rewinding"}
	},
	"required": ["checkpoint_id", "message"]
}`

type args struct {
	CheckpointID int    `json:"checkpoint_id"`
	Message      string `json:"message"`
}

// reverter is the one contextstore.Store method send_dmail needs.
// internal/session.Session also satisfies it, wrapping the store call with
// the wire log's matching rotation so context.<n>.jsonl and wire.<n>.jsonl
// stay paired.
type reverter interface {
	RevertToWithMessage(id int, userMessage string) error
}

// Tool rewinds store to an earlier checkpoint on each call.
type Tool struct {
	store reverter
}

// New builds the send_dmail tool bound to store.
func New(store reverter) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string           { return "send_dmail" }
func (t *Tool) Description() string {
	return "Rewind the conversation to an earlier checkpoint and continue from there with a new message, discarding everything in between."
}
func (t *Tool) Schema() json.RawMessage { return json.RawMessage(schema) }
func (t *Tool) RequiresApproval() bool  { return false }

// Call performs the rewind. A successful call is a normal control-flow
// branch, not a failure: the step driver must not emit StepInterrupted for
// it (spec §4.7).
func (t *Tool) Call(ctx context.Context, raw json.RawMessage) message.ToolReturnValue {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return message.ErrorResult("invalid send_dmail arguments")
	}

	if err := t.store.RevertToWithMessage(a.CheckpointID, a.Message); err != nil {
		var notFound *contextstore.CheckpointNotFound
		if errors.As(err, &notFound) {
			return message.ErrorResult(fmt.Sprintf("no such checkpoint: %d", notFound.ID))
		}
		return message.ErrorResult(fmt.Sprintf("send_dmail failed: %v", err))
	}

	return message.ToolReturnValue{
		Output: fmt.Sprintf("rewound to checkpoint %d", a.CheckpointID),
	}
}
