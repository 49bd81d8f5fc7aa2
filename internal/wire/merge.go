package wire

import (
	"encoding/json"

	"github.com/agentcore/soul/pkg/message"
)

// mergeState is the producer-side merge buffer (spec §9): it holds at most
// one pending mergeable envelope, keyed by its decoded StreamEvent form, and
// flushes it whenever a non-mergeable envelope arrives, a mergeable envelope
// of a different kind/index arrives, a ToolCall envelope (the start of a
// new call) arrives, or Flush is called explicitly.
type mergeState struct {
	pending     *Envelope
	pendingKind message.StreamEvent
	hasPending  bool
}

// toStreamEvent decodes an envelope of a mergeable type into the algebra's
// StreamEvent representation.
func toStreamEvent(env Envelope) (message.StreamEvent, bool) {
	switch env.Type {
	case EventContentPart:
		var p ContentPartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return message.StreamEvent{}, false
		}
		var part message.Part
		if err := json.Unmarshal(p.Part, &part); err != nil {
			return message.StreamEvent{}, false
		}
		switch part.Type {
		case message.PartText:
			return message.TextEvent(part.Text), true
		case message.PartThink:
			return message.ThinkEvent(part.Think, part.Encrypted), true
		default:
			return message.OtherEvent(part), true
		}
	case EventToolCall:
		var p ToolCallPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return message.StreamEvent{}, false
		}
		return message.ToolCallEvent(0, p.ID, p.Name, p.Arguments), true
	case EventToolCallPart:
		var p ToolCallPartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return message.StreamEvent{}, false
		}
		return message.StreamEvent{Kind: message.StreamToolCall, Index: p.Index, ID: p.ID, Args: p.Arguments}, true
	default:
		return message.StreamEvent{}, false
	}
}

// EventAndPayloadForStreamEvent exposes fromStreamEvent for producers (the
// step driver) that need to push a raw provider StreamEvent onto the bus via
// EmitMergeable without hand-rolling the envelope shape themselves.
func EventAndPayloadForStreamEvent(e message.StreamEvent) (EventType, any) {
	return fromStreamEvent(e)
}

// fromStreamEvent re-encodes a merged StreamEvent back into its canonical
// envelope type. A merged tool-call fragment always re-emits as ToolCall
// (never ToolCallPart), since it now carries the accumulated arguments.
func fromStreamEvent(e message.StreamEvent) (EventType, any) {
	switch e.Kind {
	case message.StreamText:
		raw, _ := json.Marshal(message.TextPart(e.Text))
		return EventContentPart, ContentPartPayload{Part: raw}
	case message.StreamThink:
		raw, _ := json.Marshal(message.ThinkPart(e.Think, e.Encrypted))
		return EventContentPart, ContentPartPayload{Part: raw}
	case message.StreamToolCall:
		return EventToolCall, ToolCallPayload{ID: e.ID, Name: e.Name, Arguments: e.Args}
	case message.StreamOther:
		raw, _ := json.Marshal(e.ToPart())
		return EventContentPart, ContentPartPayload{Part: raw}
	default:
		return "", nil
	}
}

func envelopeFromStreamEvent(e message.StreamEvent) Envelope {
	t, payload := fromStreamEvent(e)
	env, _ := NewEnvelope(t, payload)
	return env
}

// push feeds one mergeable envelope in and returns any envelopes that must
// be published immediately as a result (0, 1, or 2: a flushed predecessor
// and/or the incoming envelope itself when it cannot be buffered).
func (m *mergeState) push(env Envelope) []Envelope {
	incoming, ok := toStreamEvent(env)
	if !ok {
		// Not decodable as a mergeable fragment: flush pending, then emit
		// the incoming envelope as-is (non-mergeable boundary).
		var out []Envelope
		if flushed, has := m.flushIfPending(); has {
			out = append(out, flushed)
		}
		return append(out, env)
	}

	if !m.hasPending {
		m.pending = &env
		m.pendingKind = incoming
		m.hasPending = true
		return nil
	}

	// A ToolCall envelope carries no index (it always decodes as index 0),
	// so it always opens a new call rather than merging into the pending one.
	if env.Type != EventToolCall {
		if merged, ok := message.Merge(m.pendingKind, incoming); ok {
			mergedEnv := envelopeFromStreamEvent(merged)
			m.pending = &mergedEnv
			m.pendingKind = merged
			return nil
		}
	}

	flushed := *m.pending
	m.pending = &env
	m.pendingKind = incoming
	return []Envelope{flushed}
}

func (m *mergeState) flushIfPending() (Envelope, bool) {
	if !m.hasPending {
		return Envelope{}, false
	}
	flushed := *m.pending
	m.pending = nil
	m.hasPending = false
	return flushed, true
}
