package message

import "encoding/json"

// DisplayBlockType discriminates a ToolReturnValue display block.
type DisplayBlockType string

const (
	DisplayDiff  DisplayBlockType = "diff"
	DisplayTodo  DisplayBlockType = "todo"
	DisplayShell DisplayBlockType = "shell"
)

// DisplayBlock is a tagged, forward-compatible display block. An unrecognized
// Type is preserved verbatim via Raw (spec §3: "unknown type tags are
// preserved verbatim under an unknown variant carrying the original tag and
// data").
type DisplayBlock struct {
	Type DisplayBlockType `json:"type"`
	Data map[string]any   `json:"-"`
	Raw  json.RawMessage  `json:"-"`
}

func (b DisplayBlock) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if b.Raw != nil {
		if err := json.Unmarshal(b.Raw, &m); err != nil {
			return nil, err
		}
	}
	for k, v := range b.Data {
		m[k] = v
	}
	m["type"] = b.Type
	return json.Marshal(m)
}

func (b *DisplayBlock) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type DisplayBlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return &MessageParseError{Cause: err}
	}
	b.Type = probe.Type
	b.Raw = append(json.RawMessage(nil), data...)
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		delete(m, "type")
		b.Data = m
	}
	return nil
}

// ToolReturnValue is the result of dispatching one tool call (spec §3/§4.5).
type ToolReturnValue struct {
	IsError bool            `json:"is_error"`
	Output  string          `json:"output"`
	Message string          `json:"message,omitempty"`
	Display []DisplayBlock  `json:"display,omitempty"`
	Extras  map[string]any  `json:"extras,omitempty"`
}

// ErrorResult builds an error ToolReturnValue carrying msg, the shape
// every validation/denial/panic path in the toolset returns.
func ErrorResult(msg string) ToolReturnValue {
	return ToolReturnValue{IsError: true, Message: msg}
}
