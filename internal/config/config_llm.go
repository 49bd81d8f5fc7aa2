package config

// LLMConfig selects and configures model providers. Grounded on the
// teacher's config_llm.go provider-map shape, trimmed to the fields the
// toolset/step providers need.
type LLMConfig struct {
	DefaultProvider string                       `toml:"default_provider"`
	Providers       map[string]LLMProviderConfig `toml:"providers"`
	FallbackChain   []string                     `toml:"fallback_chain"`
	Bedrock         BedrockConfig                `toml:"bedrock"`
}

// LLMProviderConfig configures a single named provider entry.
type LLMProviderConfig struct {
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	APIVersion   string `toml:"api_version"`
	DefaultModel string `toml:"default_model"`
}

// BedrockConfig configures the AWS Bedrock provider. ProviderFilter and
// DefaultMaxTokens are decoded (and DefaultMaxTokens defaulted) but no
// other package reads them; there is no Bedrock model discovery.
type BedrockConfig struct {
	Enabled              bool     `toml:"enabled"`
	Region               string   `toml:"region"`
	ProviderFilter       []string `toml:"provider_filter"`
	DefaultContextWindow int      `toml:"default_context_window"`
	DefaultMaxTokens     int      `toml:"default_max_tokens"`
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = "us-east-1"
	}
	if cfg.Bedrock.DefaultContextWindow == 0 {
		cfg.Bedrock.DefaultContextWindow = 32000
	}
	if cfg.Bedrock.DefaultMaxTokens == 0 {
		cfg.Bedrock.DefaultMaxTokens = 4096
	}
}
