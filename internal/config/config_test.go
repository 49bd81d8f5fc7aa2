package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsProducesAValidConfig(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, validateConfig(&cfg))
	require.Equal(t, 80, cfg.Compaction.ThresholdPercent)
	require.Equal(t, 20, cfg.Compaction.PreserveRecentMessages)
}

func TestValidateConfigCollectsAllIssues(t *testing.T) {
	cfg := Defaults()
	cfg.Session.MaxStepsPerTurn = -1
	cfg.Compaction.ThresholdPercent = 200
	cfg.LLM.DefaultProvider = ""

	err := validateConfig(&cfg)
	require.Error(t, err)
	var verr *ConfigValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Issues, 3)
}

func TestCompactionManagerConfigCarriesRuntimeContextWindow(t *testing.T) {
	cfg := Defaults()
	mgrCfg := cfg.Compaction.CompactionManagerConfig(128_000)
	require.Equal(t, 128_000, mgrCfg.ContextWindowTokens)
	require.Equal(t, cfg.Compaction.ThresholdPercent, mgrCfg.ThresholdPercent)
}
