// Package message implements the canonical conversation message type shared by
// the context store, the wire bus, and the step driver: a tagged record with an
// ordered sequence of content parts, plus the streaming merge algebra used to
// reassemble those parts from an LLM's token-by-token output.
package message

import (
	"encoding/json"
	"fmt"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the canonical conversation record. Content is semantically an
// ordered sequence of content parts; see MarshalJSON/UnmarshalJSON for the
// bare-string collapse rule.
type Message struct {
	Role       Role       `json:"role"`
	Content    []Part     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Partial    bool       `json:"partial,omitempty"`
}

// ToolCall is one function-call the model emitted.
type ToolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Function ToolCallFunc `json:"function"`
	Extras   any          `json:"extras,omitempty"`
}

// ToolCallFunc is the function payload of a ToolCall. Arguments stay an
// unparsed JSON string: the algebra never parses them (spec §4.1).
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolCallPart is a streaming fragment carrying incremental argument text for
// an in-flight tool call, identified by index within the assistant message.
type ToolCallPart struct {
	Index    int
	ID       string
	Name     string
	Delta    string // incremental arguments text
}

// NewToolCall builds a "function"-typed ToolCall with the given id, name and
// arguments.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{Type: "function", ID: id, Function: ToolCallFunc{Name: name, Arguments: arguments}}
}

// textMessage / helpers -----------------------------------------------------

// Text returns a Message with a single text content part.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: []Part{{Type: PartText, Text: text}}}
}

// PlainText concatenates all text-like parts (text and think) for callers
// that only care about the textual payload, e.g. compaction budget estimates.
func (m Message) PlainText() string {
	out := ""
	for _, p := range m.Content {
		switch p.Type {
		case PartText:
			out += p.Text
		case PartThink:
			out += p.Think
		}
	}
	return out
}

// MessageParseError is returned by Unmarshal on malformed JSON input.
type MessageParseError struct {
	Cause error
}

func (e *MessageParseError) Error() string { return fmt.Sprintf("message: parse error: %v", e.Cause) }
func (e *MessageParseError) Unwrap() error { return e.Cause }

// wireMessage is the on-the-wire shape; Content is `json.RawMessage` so we can
// tell a bare string apart from an array before committing to a type.
type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Partial    bool            `json:"partial,omitempty"`
}

// MarshalJSON collapses Content to a bare string precisely when it is a
// single text part with no other fields set (spec §4.1).
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
		Partial:    m.Partial,
	}
	switch {
	case len(m.Content) == 0:
		// omit entirely; absent content deserializes to an empty sequence.
	case len(m.Content) == 1 && m.Content[0].isBareText():
		raw, err := json.Marshal(m.Content[0].Text)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	default:
		raw, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts both the bare-string and array shapes. A null or
// absent content deserializes to an empty sequence.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return &MessageParseError{Cause: err}
	}
	m.Role = w.Role
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.Name = w.Name
	m.Partial = w.Partial

	if len(w.Content) == 0 || string(w.Content) == "null" {
		m.Content = nil
		return nil
	}

	var asString string
	if err := json.Unmarshal(w.Content, &asString); err == nil {
		m.Content = []Part{{Type: PartText, Text: asString}}
		return nil
	}

	var parts []Part
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return &MessageParseError{Cause: err}
	}
	m.Content = parts
	return nil
}

// Serialize and Deserialize are the named operations from spec §4.1.
func Serialize(m Message) ([]byte, error) { return json.Marshal(m) }

func Deserialize(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if _, ok := err.(*MessageParseError); ok {
			return Message{}, err
		}
		return Message{}, &MessageParseError{Cause: err}
	}
	return m, nil
}
