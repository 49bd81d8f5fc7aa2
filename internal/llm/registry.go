package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentcore/soul/internal/compaction"
	"github.com/agentcore/soul/internal/config"
	"github.com/agentcore/soul/internal/step"
	"github.com/agentcore/soul/pkg/message"
)

// entry is one configured provider: the same concrete value satisfies both
// step.Provider and compaction.Summarizer, so the registry only needs to
// keep one handle per name.
type entry struct {
	provider   step.Provider
	summarizer compaction.Summarizer
	name       string
}

// Registry builds and names every configured provider (spec §4.8's "model
// provider" concept generalized to multiple backends), and exposes a
// fallback-chain step.Provider over them. Grounded on the teacher's
// provider-selection wiring (internal/agent/providers), generalized past a
// single active provider to config.LLMConfig's provider map.
type Registry struct {
	entries     map[string]entry
	defaultName string
	chain       []string
	logger      *slog.Logger
}

// New builds a Registry from cfg, constructing one backend per entry under
// cfg.Providers (keyed by provider family: "anthropic", "openai",
// "openrouter", "azure", "ollama", "copilot_proxy", "google"/"gemini",
// "bedrock"). A provider whose construction fails (e.g. missing API key) is
// skipped with a logged warning rather than failing the whole registry,
// since a fallback chain's point is to tolerate a partially configured set.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{entries: map[string]entry{}, defaultName: cfg.DefaultProvider, chain: cfg.FallbackChain, logger: logger}

	for name, pc := range cfg.Providers {
		e, err := buildEntry(ctx, name, pc, cfg.Bedrock)
		if err != nil {
			logger.Warn("llm: skipping provider", "provider", name, "error", err)
			continue
		}
		r.entries[name] = e
	}

	if len(r.entries) == 0 {
		return nil, errors.New("llm: no provider could be constructed from configuration")
	}
	if _, ok := r.entries[r.defaultName]; !ok {
		for name := range r.entries {
			r.defaultName = name
			break
		}
	}
	return r, nil
}

func buildEntry(ctx context.Context, name string, pc config.LLMProviderConfig, bedrock config.BedrockConfig) (entry, error) {
	switch family(name) {
	case "anthropic":
		p, err := NewAnthropicProvider(AnthropicConfig{APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel})
		if err != nil {
			return entry{}, err
		}
		return entry{provider: p, summarizer: p, name: name}, nil

	case "google", "gemini":
		p, err := NewGoogleProvider(ctx, GoogleConfig{APIKey: pc.APIKey, DefaultModel: pc.DefaultModel})
		if err != nil {
			return entry{}, err
		}
		return entry{provider: p, summarizer: p, name: name}, nil

	case "bedrock":
		if !bedrock.Enabled {
			return entry{}, fmt.Errorf("bedrock provider configured but llm.bedrock.enabled is false")
		}
		p, err := NewBedrockProvider(ctx, BedrockProviderConfig{
			Region:       bedrock.Region,
			DefaultModel: pc.DefaultModel,
		})
		if err != nil {
			return entry{}, err
		}
		return entry{provider: p, summarizer: p, name: name}, nil

	default:
		// openai, openrouter, azure, ollama, copilot_proxy and any other
		// OpenAI-chat-completions-compatible backend: distinguished only by
		// BaseURL/APIVersion, all served by OpenAIProvider.
		p, err := NewOpenAIProvider(OpenAIConfig{Name: name, APIKey: pc.APIKey, BaseURL: pc.BaseURL, DefaultModel: pc.DefaultModel})
		if err != nil {
			return entry{}, err
		}
		return entry{provider: p, summarizer: p, name: name}, nil
	}
}

// family maps a configured provider name to the backend family that
// implements it, so "openrouter-free" or "azure-prod" style operator naming
// still resolves to the right constructor.
func family(name string) string {
	switch name {
	case "anthropic", "google", "gemini", "bedrock":
		return name
	default:
		return "openai-compatible"
	}
}

// Provider returns the named provider.
func (r *Registry) Provider(name string) (step.Provider, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Default returns the configured default provider (falls back to whichever
// provider built successfully if the configured default failed to build).
func (r *Registry) Default() step.Provider {
	return r.entries[r.defaultName].provider
}

// DefaultSummarizer returns a compaction.Summarizer backed by the same
// provider Default returns, for wiring into compaction.New.
func (r *Registry) DefaultSummarizer() compaction.Summarizer {
	return r.entries[r.defaultName].summarizer
}

// Chain returns a step.Provider that tries the configured fallback chain in
// order, advancing to the next entry only when the opening Stream call
// itself fails with a failover-worthy ProviderError (spec: a stream that
// opens successfully is not retargeted mid-flight, since doing so would
// require re-issuing already-streamed content to the consumer).
func (r *Registry) Chain() step.Provider {
	names := r.chain
	if len(names) == 0 {
		names = []string{r.defaultName}
	}
	return &chainProvider{registry: r, names: names}
}

type chainProvider struct {
	registry *Registry
	names    []string
}

func (c *chainProvider) Stream(ctx context.Context, req step.CompletionRequest) (<-chan step.Chunk, error) {
	var lastErr error
	for _, name := range c.names {
		p, ok := c.registry.Provider(name)
		if !ok {
			continue
		}
		ch, err := p.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		var pe *ProviderError
		if errors.As(err, &pe) && !pe.Reason.ShouldFailover() {
			return nil, err
		}
		c.registry.logger.Warn("llm: provider failed, trying next in fallback chain", "provider", name, "error", err)
	}
	if lastErr == nil {
		lastErr = errors.New("llm: fallback chain exhausted with no configured providers")
	}
	return nil, lastErr
}

var _ compaction.Summarizer = (*passthroughSummarizer)(nil)

// passthroughSummarizer adapts any step.Provider (e.g. the fallback chain
// itself) into a compaction.Summarizer via drainText, for callers that want
// compaction to use the same failover behavior as normal turns.
type passthroughSummarizer struct{ provider step.Provider }

func (s *passthroughSummarizer) Summarize(ctx context.Context, messages []message.Message) (string, error) {
	return drainText(ctx, s.provider, "", messages)
}

// ChainSummarizer wraps Chain() as a compaction.Summarizer.
func (r *Registry) ChainSummarizer() compaction.Summarizer {
	return &passthroughSummarizer{provider: r.Chain()}
}
