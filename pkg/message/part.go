package message

import "encoding/json"

// PartType discriminates a content part's variant. It is stored verbatim in
// the `type` field of the serialized JSON, per spec §3.
type PartType string

const (
	PartText     PartType = "text"
	PartThink    PartType = "think"
	PartImageURL PartType = "image_url"
	PartAudioURL PartType = "audio_url"
	PartVideoURL PartType = "video_url"
)

// MediaRef is the payload of image_url/audio_url/video_url parts.
type MediaRef struct {
	URL string `json:"url"`
	ID  string `json:"id,omitempty"`
}

// Part is a tagged sum of content-part variants. Unknown variants round-trip
// through Unknown so that deserialize never drops forward-incompatible
// data (spec §4.1: "unknown content-part type ⇒ deserialize as an opaque
// part preserving its fields").
type Part struct {
	Type PartType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// think
	Think     string `json:"think,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`

	// image_url / audio_url / video_url
	ImageURL *MediaRef `json:"image_url,omitempty"`
	AudioURL *MediaRef `json:"audio_url,omitempty"`
	VideoURL *MediaRef `json:"video_url,omitempty"`

	// Unknown carries the raw fields of a part whose Type this build does
	// not recognize, so round-tripping never loses data.
	Unknown json.RawMessage `json:"-"`
}

// isBareText reports whether p is eligible for the singleton-bare-string
// collapse: a text part with no other field populated.
func (p Part) isBareText() bool {
	return p.Type == PartText && p.Think == "" && !p.Encrypted &&
		p.ImageURL == nil && p.AudioURL == nil && p.VideoURL == nil && p.Unknown == nil
}

// MarshalJSON re-emits Unknown verbatim for parts this build doesn't model,
// merging in the discriminator, so forward-compatible fields survive a
// read-modify-write round trip untouched.
func (p Part) MarshalJSON() ([]byte, error) {
	if p.Unknown != nil {
		var m map[string]any
		if err := json.Unmarshal(p.Unknown, &m); err != nil {
			return nil, err
		}
		m["type"] = p.Type
		return json.Marshal(m)
	}
	type alias Part
	return json.Marshal(alias(p))
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type PartType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return &MessageParseError{Cause: err}
	}
	switch probe.Type {
	case PartText, PartThink, PartImageURL, PartAudioURL, PartVideoURL:
		type alias Part
		var a alias
		if err := json.Unmarshal(data, &a); err != nil {
			return &MessageParseError{Cause: err}
		}
		*p = Part(a)
		return nil
	default:
		p.Type = probe.Type
		p.Unknown = append(json.RawMessage(nil), data...)
		return nil
	}
}

// TextPart is a convenience constructor.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// ThinkPart is a convenience constructor.
func ThinkPart(think string, encrypted bool) Part {
	return Part{Type: PartThink, Think: think, Encrypted: encrypted}
}
