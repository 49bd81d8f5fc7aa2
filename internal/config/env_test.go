package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyEnvOverridesAppliesValidValues(t *testing.T) {
	t.Setenv("SOUL_YOLO", "true")
	t.Setenv("SOUL_MAX_STEPS_PER_TURN", "12")
	t.Setenv("SOUL_SHELL_TIMEOUT", "90s")

	cfg := Defaults()
	require.NoError(t, applyEnvOverrides(&cfg))
	require.True(t, cfg.Tools.Yolo)
	require.Equal(t, 12, cfg.Session.MaxStepsPerTurn)
	require.Equal(t, 90_000_000_000, int(cfg.Tools.ShellTimeout))
}

func TestApplyEnvOverridesFailsFatallyOnInvalidValue(t *testing.T) {
	t.Setenv("SOUL_MAX_STEPS_PER_TURN", "not-a-number")

	cfg := Defaults()
	err := applyEnvOverrides(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "SOUL_MAX_STEPS_PER_TURN")
}

func TestApplyEnvOverridesSetsProviderAPIKey(t *testing.T) {
	t.Setenv("SOUL_ANTHROPIC_API_KEY", "sk-test")

	cfg := Defaults()
	cfg.LLM.Providers = map[string]LLMProviderConfig{"anthropic": {}}
	require.NoError(t, applyEnvOverrides(&cfg))
	require.Equal(t, "sk-test", cfg.LLM.Providers["anthropic"].APIKey)
}

func TestApplyEnvOverridesIgnoresBlankValues(t *testing.T) {
	t.Setenv("SOUL_LOG_LEVEL", "   ")

	cfg := Defaults()
	require.NoError(t, applyEnvOverrides(&cfg))
	require.Equal(t, "info", cfg.Logging.Level)
}
