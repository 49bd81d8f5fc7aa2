// Package config loads the TOML configuration and JSON session metadata
// persisted under the share directory (spec §6). The root Config mirrors
// the teacher's internal/config package's one-struct-per-subsection layout,
// scoped down to what the turn/step/compaction/toolset cores consume.
package config

import (
	"fmt"
	"time"

	"github.com/agentcore/soul/internal/compaction"
)

// Config is the root of config.toml.
type Config struct {
	Version       int                 `toml:"version"`
	LLM           LLMConfig           `toml:"llm"`
	Session       SessionConfig       `toml:"session"`
	Tools         ToolsConfig         `toml:"tools"`
	Compaction    CompactionConfig    `toml:"compaction"`
	Skills        SkillsConfig        `toml:"skills"`
	Logging       LoggingConfig       `toml:"logging"`
	Observability ObservabilityConfig `toml:"observability"`
}

// SkillsConfig locates the skill template directory surfaced as slash
// commands.
type SkillsConfig struct {
	Dir string `toml:"dir"`
}

// CompactionConfig controls when and how the running context is
// summarized (spec §4.6). ThresholdPercent and PreserveRecentMessages are
// the reimplementation-documented values for the spec's "concrete
// constant" Open Question (see internal/compaction).
type CompactionConfig struct {
	ContextWindowTokens    int           `toml:"context_window_tokens"`
	ThresholdPercent       int           `toml:"threshold_percent"`
	PreserveRecentMessages int           `toml:"preserve_recent_messages"`
	MaxRetries             int           `toml:"max_retries"`
	RetryBackoff           time.Duration `toml:"retry_backoff"`
}

// Defaults returns a Config with every field set to its documented
// default, matching the teacher's applyDefaults idiom of one function per
// subsection.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	applySessionDefaults(&cfg.Session)
	applyToolsDefaults(&cfg.Tools)
	applyCompactionDefaults(&cfg.Compaction)
	applyLoggingDefaults(&cfg.Logging)
	applyLLMDefaults(&cfg.LLM)
}

func applyCompactionDefaults(cfg *CompactionConfig) {
	defaults := compaction.DefaultConfig()
	if cfg.ThresholdPercent == 0 {
		cfg.ThresholdPercent = defaults.ThresholdPercent
	}
	if cfg.PreserveRecentMessages == 0 {
		cfg.PreserveRecentMessages = defaults.PreserveRecentMessages
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
}

// CompactionManagerConfig converts the persisted config into
// internal/compaction.Config. contextWindowTokens is supplied by the
// caller since it depends on the model actually selected at runtime, not
// on anything config.toml can know in advance; the ContextWindowTokens
// field decoded from config.toml is not used here.
func (c CompactionConfig) CompactionManagerConfig(contextWindowTokens int) compaction.Config {
	return compaction.Config{
		ContextWindowTokens:    contextWindowTokens,
		ThresholdPercent:       c.ThresholdPercent,
		PreserveRecentMessages: c.PreserveRecentMessages,
		MaxRetries:             c.MaxRetries,
		RetryBackoff:           c.RetryBackoff,
	}
}

// ConfigValidationError reports every validation issue found in one pass,
// not just the first.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	msg := "config validation failed:"
	for _, issue := range e.Issues {
		msg += "\n- " + issue
	}
	return msg
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if cfg.Session.MaxStepsPerTurn < 0 {
		issues = append(issues, "session.max_steps_per_turn must be >= 0")
	}
	if cfg.Session.MaxRetriesPerStep < 0 {
		issues = append(issues, "session.max_retries_per_step must be >= 0")
	}
	if cfg.Session.MaxRalphIterations < 0 {
		issues = append(issues, "session.max_ralph_iterations must be >= 0")
	}
	if cfg.Session.RotationRetention < 0 {
		issues = append(issues, "session.rotation_retention must be >= 0")
	}
	if cfg.Compaction.ThresholdPercent < 0 || cfg.Compaction.ThresholdPercent > 100 {
		issues = append(issues, "compaction.threshold_percent must be between 0 and 100")
	}
	if cfg.Compaction.PreserveRecentMessages < 0 {
		issues = append(issues, "compaction.preserve_recent_messages must be >= 0")
	}
	if cfg.Tools.ShellTimeout < 0 {
		issues = append(issues, "tools.shell_timeout must be >= 0")
	}
	if cfg.LLM.DefaultProvider == "" {
		issues = append(issues, "llm.default_provider is required")
	} else if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok && len(cfg.LLM.Providers) > 0 {
		issues = append(issues, fmt.Sprintf("llm.default_provider %q has no matching entry under llm.providers", cfg.LLM.DefaultProvider))
	}

	if len(issues) == 0 {
		return nil
	}
	return &ConfigValidationError{Issues: issues}
}
