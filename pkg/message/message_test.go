package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleTextPartCollapsesToBareString(t *testing.T) {
	m := Text(RoleUser, "hi")
	raw, err := Serialize(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"user","content":"hi"}`, string(raw))

	back, err := Deserialize(raw)
	require.NoError(t, err)
	require.Len(t, back.Content, 1)
	require.Equal(t, "hi", back.Content[0].Text)
}

func TestMultiPartSerializesAsArray(t *testing.T) {
	m := Message{Role: RoleAssistant, Content: []Part{TextPart("a"), TextPart("b")}}
	raw, err := Serialize(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}]}`, string(raw))
}

func TestNullContentDeserializesEmpty(t *testing.T) {
	m, err := Deserialize([]byte(`{"role":"user","content":null}`))
	require.NoError(t, err)
	require.Empty(t, m.Content)

	m2, err := Deserialize([]byte(`{"role":"user"}`))
	require.NoError(t, err)
	require.Empty(t, m2.Content)
}

func TestMalformedJSONReturnsParseError(t *testing.T) {
	_, err := Deserialize([]byte(`{not json`))
	require.Error(t, err)
	var perr *MessageParseError
	require.ErrorAs(t, err, &perr)
}

func TestUnknownContentPartRoundTrips(t *testing.T) {
	raw := []byte(`{"role":"user","content":[{"type":"future_part","foo":"bar"}]}`)
	m, err := Deserialize(raw)
	require.NoError(t, err)
	require.Len(t, m.Content, 1)
	require.Equal(t, PartType("future_part"), m.Content[0].Type)

	out, err := Serialize(m)
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(out))
}

func TestToolCallArgumentsStayOpaque(t *testing.T) {
	tc := NewToolCall("t1", "shell", `{"cmd":"ls"}`)
	m := Message{Role: RoleAssistant, ToolCalls: []ToolCall{tc}}
	raw, err := Serialize(m)
	require.NoError(t, err)

	back, err := Deserialize(raw)
	require.NoError(t, err)
	require.Equal(t, `{"cmd":"ls"}`, back.ToolCalls[0].Function.Arguments)
}
