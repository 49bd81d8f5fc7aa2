package llm

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentcore/soul/internal/config"
	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

func TestFamilyDispatch(t *testing.T) {
	require.Equal(t, "anthropic", family("anthropic"))
	require.Equal(t, "google", family("google"))
	require.Equal(t, "gemini", family("gemini"))
	require.Equal(t, "bedrock", family("bedrock"))
	require.Equal(t, "openai-compatible", family("openai"))
	require.Equal(t, "openai-compatible", family("openrouter-free"))
	require.Equal(t, "openai-compatible", family("azure-prod"))
	require.Equal(t, "openai-compatible", family("ollama"))
}

func TestNewErrorsWhenNoProviderConstructs(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "anthropic",
		Providers: map[string]config.LLMProviderConfig{
			"anthropic": {}, // missing API key
			"google":    {}, // missing API key
		},
	}
	_, err := New(context.Background(), cfg, slog.Default())
	require.Error(t, err)
}

func TestNewFallsBackDefaultToAnyBuiltProvider(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "anthropic", // not configured at all
		Providers: map[string]config.LLMProviderConfig{
			"openai": {APIKey: "sk-test"},
		},
	}
	reg, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, reg.Default())
	_, ok := reg.Provider("openai")
	require.True(t, ok)
}

func TestNewSkipsBedrockWhenDisabled(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "bedrock",
		Providers: map[string]config.LLMProviderConfig{
			"bedrock": {DefaultModel: "anthropic.claude-3-sonnet-20240229-v1:0"},
			"openai":  {APIKey: "sk-test"},
		},
		Bedrock: config.BedrockConfig{Enabled: false},
	}
	reg, err := New(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	_, ok := reg.Provider("bedrock")
	require.False(t, ok)
	_, ok = reg.Provider("openai")
	require.True(t, ok)
}

func registryWithEntries(entries map[string]entry, chain []string, defaultName string) *Registry {
	return &Registry{entries: entries, chain: chain, defaultName: defaultName, logger: slog.Default()}
}

func TestChainAdvancesOnFailoverWorthyOpenError(t *testing.T) {
	primary := &scriptedProvider{openErr: &ProviderError{Reason: FailoverAuth, Provider: "primary"}}
	secondary := &scriptedProvider{chunks: []step.Chunk{{Done: true}}}

	reg := registryWithEntries(map[string]entry{
		"primary":   {provider: primary, name: "primary"},
		"secondary": {provider: secondary, name: "secondary"},
	}, []string{"primary", "secondary"}, "primary")

	ch, err := reg.Chain().Stream(context.Background(), step.CompletionRequest{})
	require.NoError(t, err)
	var gotDone bool
	for c := range ch {
		if c.Done {
			gotDone = true
		}
	}
	require.True(t, gotDone)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 1, secondary.calls)
}

func TestChainDoesNotAdvanceOnNonFailoverError(t *testing.T) {
	primary := &scriptedProvider{openErr: &ProviderError{Reason: FailoverInvalidRequest, Provider: "primary"}}
	secondary := &scriptedProvider{chunks: []step.Chunk{{Done: true}}}

	reg := registryWithEntries(map[string]entry{
		"primary":   {provider: primary, name: "primary"},
		"secondary": {provider: secondary, name: "secondary"},
	}, []string{"primary", "secondary"}, "primary")

	_, err := reg.Chain().Stream(context.Background(), step.CompletionRequest{})
	require.Error(t, err)
	require.Equal(t, 1, primary.calls)
	require.Equal(t, 0, secondary.calls)
}

func TestChainSummarizerDrainsFirstWorkingProvider(t *testing.T) {
	primary := &scriptedProvider{openErr: &ProviderError{Reason: FailoverAuth, Provider: "primary"}}
	secondary := &scriptedProvider{chunks: []step.Chunk{
		{Event: ptrEvent(message.TextEvent("summary"))},
		{Done: true},
	}}

	reg := registryWithEntries(map[string]entry{
		"primary":   {provider: primary, name: "primary"},
		"secondary": {provider: secondary, name: "secondary"},
	}, []string{"primary", "secondary"}, "primary")

	out, err := reg.ChainSummarizer().Summarize(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "summary", out)
}
