package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies the selected env-var overrides (spec §6). A
// deliberate deviation from the teacher's applyEnvOverrides, which parses
// and silently keeps the existing value on a malformed override: here an
// invalid override value is fatal at startup, surfaced as an error instead
// of swallowed.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if v, ok := lookupEnv("SOUL_SHARE_DIR"); ok {
		cfg.Session.ShareDir = v
	}
	if v, ok := lookupEnv("SOUL_LLM_DEFAULT_PROVIDER"); ok {
		cfg.LLM.DefaultProvider = v
	}
	if v, ok := lookupEnv("SOUL_LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookupEnv("SOUL_LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}
	if v, ok := lookupEnv("SOUL_YOLO"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env SOUL_YOLO=%q: %w", v, err)
		}
		cfg.Tools.Yolo = parsed
	}
	if v, ok := lookupEnv("SOUL_MAX_STEPS_PER_TURN"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env SOUL_MAX_STEPS_PER_TURN=%q: %w", v, err)
		}
		cfg.Session.MaxStepsPerTurn = parsed
	}
	if v, ok := lookupEnv("SOUL_MAX_RETRIES_PER_STEP"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env SOUL_MAX_RETRIES_PER_STEP=%q: %w", v, err)
		}
		cfg.Session.MaxRetriesPerStep = parsed
	}
	if v, ok := lookupEnv("SOUL_MAX_RALPH_ITERATIONS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env SOUL_MAX_RALPH_ITERATIONS=%q: %w", v, err)
		}
		cfg.Session.MaxRalphIterations = parsed
	}
	if v, ok := lookupEnv("SOUL_SHELL_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("env SOUL_SHELL_TIMEOUT=%q: %w", v, err)
		}
		cfg.Tools.ShellTimeout = parsed
	}
	if v, ok := lookupEnv("SOUL_OTEL_ENDPOINT"); ok {
		cfg.Observability.Tracing.Endpoint = v
		cfg.Observability.Tracing.Enabled = true
	}

	for name, provider := range cfg.LLM.Providers {
		envName := "SOUL_" + strings.ToUpper(name) + "_API_KEY"
		if v, ok := lookupEnv(envName); ok {
			provider.APIKey = v
			cfg.LLM.Providers[name] = provider
		}
	}

	return nil
}

func lookupEnv(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
