package llm

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

func newTestOpenAIProvider(t *testing.T) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{Name: "openrouter", APIKey: "sk-test", BaseURL: "https://openrouter.ai/api/v1"})
	require.NoError(t, err)
	return p
}

func TestNewOpenAIProviderRequiresKeyOrBaseURL(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	require.Error(t, err)
}

func TestNewOpenAIProviderAllowsBaseURLOnlyForLocalBackends(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost:11434/v1"})
	require.NoError(t, err)
}

func TestOpenAIConvertMessagesRoundTrip(t *testing.T) {
	p := newTestOpenAIProvider(t)
	history := []message.Message{
		message.Text(message.RoleUser, "hi"),
		{
			Role: message.RoleAssistant,
			ToolCalls: []message.ToolCall{
				{ID: "call_1", Function: message.ToolCallFunc{Name: "lookup", Arguments: `{"q":"x"}`}},
			},
		},
		{Role: message.RoleTool, ToolCallID: "call_1", Content: []message.Part{{Type: message.PartText, Text: "result"}}},
	}
	msgs, err := p.convertMessages(history, "be terse")
	require.NoError(t, err)
	require.Len(t, msgs, 4) // system + 3
	require.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	require.Equal(t, openai.ChatMessageRoleTool, msgs[3].Role)
	require.Equal(t, "call_1", msgs[3].ToolCallID)
}

func TestOpenAIConvertToolsFallsBackOnInvalidSchema(t *testing.T) {
	p := newTestOpenAIProvider(t)
	tools := p.convertTools([]step.ToolSpec{{Name: "broken", Schema: json.RawMessage(`not json`)}})
	require.Len(t, tools, 1)
	require.Equal(t, openai.ToolTypeFunction, tools[0].Type)
}

func TestOpenAIIsRetryableErrorStringMatch(t *testing.T) {
	p := newTestOpenAIProvider(t)
	require.True(t, p.isRetryableError(errString("429 rate limit exceeded")))
	require.True(t, p.isRetryableError(errString("503 Service Unavailable")))
	require.False(t, p.isRetryableError(errString("400 bad request")))
}

type errString string

func (e errString) Error() string { return string(e) }
