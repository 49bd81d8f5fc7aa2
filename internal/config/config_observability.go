package config

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

// ObservabilityConfig controls OpenTelemetry tracing export.
type ObservabilityConfig struct {
	Tracing TracingConfig `toml:"tracing"`
}

// TracingConfig mirrors the teacher's observability tracing block,
// retargeted at this module's span names (internal/observability).
type TracingConfig struct {
	Enabled        bool    `toml:"enabled"`
	Endpoint       string  `toml:"endpoint"`
	ServiceName    string  `toml:"service_name"`
	ServiceVersion string  `toml:"service_version"`
	Environment    string  `toml:"environment"`
	SamplingRate   float64 `toml:"sampling_rate"`
	Insecure       bool    `toml:"insecure"`
}
