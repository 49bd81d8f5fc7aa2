package message

// StreamKind discriminates a StreamEvent, the unit the merge algebra and the
// wire's merge buffer operate on.
type StreamKind string

const (
	StreamText     StreamKind = "text"
	StreamThink    StreamKind = "think"
	StreamToolCall StreamKind = "tool_call"
	StreamOther    StreamKind = "other"
)

// StreamEvent is one streamed fragment: either a content part fragment
// (text/think) or a tool-call/tool-call-part fragment. Index identifies the
// tool call slot within the assistant message for tool-call fragments.
type StreamEvent struct {
	Kind StreamKind

	Text string

	Think     string
	Encrypted bool

	Index    int
	ID       string
	Name     string
	Args     string

	// Other carries any non-mergeable event kind verbatim (e.g. a media
	// content part), so the merge buffer can still flush it in order.
	Other *Part
}

// TextEvent / ThinkEvent / ToolCallEvent / ToolCallPartEvent are
// constructors mirroring the variants an LLM provider streams.
func TextEvent(text string) StreamEvent { return StreamEvent{Kind: StreamText, Text: text} }

func ThinkEvent(think string, encrypted bool) StreamEvent {
	return StreamEvent{Kind: StreamThink, Think: think, Encrypted: encrypted}
}

func ToolCallEvent(index int, id, name, args string) StreamEvent {
	return StreamEvent{Kind: StreamToolCall, Index: index, ID: id, Name: name, Args: args}
}

func ToolCallPartEvent(index int, argsDelta string) StreamEvent {
	return StreamEvent{Kind: StreamToolCall, Index: index, Args: argsDelta}
}

func OtherEvent(p Part) StreamEvent { return StreamEvent{Kind: StreamOther, Other: &p} }

// Merge implements the merge algebra from spec §4.1: given two adjacent
// streamed parts, returns the merged event and true if they were mergeable,
// otherwise the zero value and false (caller must flush a then buffer b).
//
// Associativity (spec §8): merge(merge(a,b),c) == merge(a, merge(b,c)) for
// any a,b,c for which all intermediate merges are defined. This holds here
// because each case does plain string concatenation, which is associative,
// and the eligibility predicate (kind/index/encrypted equality) is carried
// through unchanged by a merge result.
func Merge(a, b StreamEvent) (StreamEvent, bool) {
	if a.Kind != b.Kind {
		return StreamEvent{}, false
	}
	switch a.Kind {
	case StreamText:
		return StreamEvent{Kind: StreamText, Text: a.Text + b.Text}, true
	case StreamThink:
		if a.Encrypted || b.Encrypted {
			return StreamEvent{}, false
		}
		return StreamEvent{Kind: StreamThink, Think: a.Think + b.Think}, true
	case StreamToolCall:
		if a.Index != b.Index {
			return StreamEvent{}, false
		}
		name := a.Name
		if name == "" {
			name = b.Name
		}
		id := a.ID
		if id == "" {
			id = b.ID
		}
		return StreamEvent{Kind: StreamToolCall, Index: a.Index, ID: id, Name: name, Args: a.Args + b.Args}, true
	default:
		return StreamEvent{}, false
	}
}

// ToPart converts a terminal text/think StreamEvent into a content Part.
// Tool-call events are not convertible; callers finalize those into
// ToolCall separately via ToToolCall().
func (e StreamEvent) ToPart() Part {
	switch e.Kind {
	case StreamText:
		return TextPart(e.Text)
	case StreamThink:
		return ThinkPart(e.Think, e.Encrypted)
	case StreamOther:
		if e.Other != nil {
			return *e.Other
		}
	}
	return Part{}
}

// ToToolCall converts a terminal tool-call StreamEvent into a ToolCall.
func (e StreamEvent) ToToolCall() ToolCall {
	return NewToolCall(e.ID, e.Name, e.Args)
}

// MergeBuffer is the producer-side merge state machine described in spec
// §9 ("Streaming merge buffer on the wire"): it holds at most one pending
// event and flushes it whenever a non-mergeable event arrives or Flush is
// called explicitly. Keeping this on the producer side guarantees every
// subscriber and the recorder observe identical merged output.
type MergeBuffer struct {
	pending *StreamEvent
}

// Push feeds one streamed fragment in and returns any event that must be
// flushed as a result (zero or one), plus whether something was flushed.
func (b *MergeBuffer) Push(e StreamEvent) (StreamEvent, bool) {
	if b.pending == nil {
		cp := e
		b.pending = &cp
		return StreamEvent{}, false
	}
	if merged, ok := Merge(*b.pending, e); ok {
		b.pending = &merged
		return StreamEvent{}, false
	}
	flushed := *b.pending
	cp := e
	b.pending = &cp
	return flushed, true
}

// Flush drains any pending event unconditionally (e.g. at stream end).
func (b *MergeBuffer) Flush() (StreamEvent, bool) {
	if b.pending == nil {
		return StreamEvent{}, false
	}
	flushed := *b.pending
	b.pending = nil
	return flushed, true
}
