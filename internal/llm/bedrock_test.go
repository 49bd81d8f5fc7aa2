package llm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

func TestBedrockConvertMessagesToolRoundTrip(t *testing.T) {
	p := &BedrockProvider{defaultModel: "anthropic.claude-3-sonnet-20240229-v1:0"}
	history := []message.Message{
		message.Text(message.RoleUser, "what's the weather"),
		{
			Role: message.RoleAssistant,
			ToolCalls: []message.ToolCall{
				{ID: "call_1", Function: message.ToolCallFunc{Name: "get_weather", Arguments: `{"city":"nyc"}`}},
			},
		},
		{Role: message.RoleTool, ToolCallID: "call_1", Content: []message.Part{{Type: message.PartText, Text: "72F sunny"}}},
	}
	msgs, err := p.convertMessages(history)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestBedrockConvertMessagesInvalidToolArgumentsErrors(t *testing.T) {
	p := &BedrockProvider{}
	history := []message.Message{{
		Role: message.RoleAssistant,
		ToolCalls: []message.ToolCall{
			{ID: "call_1", Function: message.ToolCallFunc{Name: "broken", Arguments: "not json"}},
		},
	}}
	_, err := p.convertMessages(history)
	require.Error(t, err)
}

func TestToBedrockToolsFallsBackOnInvalidSchema(t *testing.T) {
	cfg := toBedrockTools([]step.ToolSpec{{Name: "broken", Schema: []byte("not json")}})
	require.Len(t, cfg.Tools, 1)
}

func TestBedrockIsRetryableErrorStringMatch(t *testing.T) {
	p := &BedrockProvider{}
	require.True(t, p.isRetryableError(errString("ThrottlingException: rate exceeded")))
	require.True(t, p.isRetryableError(errString("request timeout")))
	require.False(t, p.isRetryableError(errString("validation exception: bad input")))
}
