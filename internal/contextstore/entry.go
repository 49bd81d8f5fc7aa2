// Package contextstore implements the append-only, rotatable JSONL
// conversation history described in spec §4.2: append, snapshot, checkpoint,
// revert-to-checkpoint, clear, and usage recording. The on-disk line format
// and crash-safety discipline (write, newline, fsync) are grounded on the
// teacher's trace JSONL recorder (internal/agent/trace.go).
package contextstore

import (
	"encoding/json"
	"fmt"

	"github.com/agentcore/soul/pkg/message"
)

// EntryRole distinguishes the underscore-prefixed marker lines from ordinary
// messages, per spec §3: "A JSONL line is one of: a serialized Message;
// {role:"_checkpoint", id:int}; {role:"_usage", token_count:int}."
const (
	roleCheckpoint = "_checkpoint"
	roleUsage      = "_usage"
)

// Entry is one line of context.jsonl.
type Entry struct {
	Message    *message.Message
	Checkpoint *CheckpointMarker
	Usage      *UsageMarker
}

// CheckpointMarker is a `{role:"_checkpoint", id:int}` line.
type CheckpointMarker struct {
	ID int `json:"id"`
}

// UsageMarker is a `{role:"_usage", token_count:int}` line.
type UsageMarker struct {
	TokenCount int `json:"token_count"`
}

// MessageEntry wraps a message.Message as an Entry.
func MessageEntry(m message.Message) Entry { return Entry{Message: &m} }

// CheckpointEntry wraps a checkpoint id as an Entry.
func CheckpointEntry(id int) Entry { return Entry{Checkpoint: &CheckpointMarker{ID: id}} }

// UsageEntry wraps a token count as an Entry.
func UsageEntry(tokenCount int) Entry { return Entry{Usage: &UsageMarker{TokenCount: tokenCount}} }

// IsUnderscore reports whether this entry is a marker line rather than a
// conversation message (spec §4.2 snapshot: "read all non-underscore
// entries").
func (e Entry) IsUnderscore() bool { return e.Checkpoint != nil || e.Usage != nil }

func (e Entry) MarshalJSON() ([]byte, error) {
	switch {
	case e.Checkpoint != nil:
		return json.Marshal(struct {
			Role string `json:"role"`
			ID   int    `json:"id"`
		}{Role: roleCheckpoint, ID: e.Checkpoint.ID})
	case e.Usage != nil:
		return json.Marshal(struct {
			Role       string `json:"role"`
			TokenCount int    `json:"token_count"`
		}{Role: roleUsage, TokenCount: e.Usage.TokenCount})
	case e.Message != nil:
		return json.Marshal(*e.Message)
	default:
		return nil, fmt.Errorf("contextstore: empty entry")
	}
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var probe struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Role {
	case roleCheckpoint:
		var marker CheckpointMarker
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		e.Checkpoint = &marker
		return nil
	case roleUsage:
		var marker UsageMarker
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		e.Usage = &marker
		return nil
	default:
		var m message.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.Message = &m
		return nil
	}
}
