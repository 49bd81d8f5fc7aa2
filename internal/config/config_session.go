package config

// SessionConfig controls turn/step limits and the on-disk session layout
// (spec §3, §4.9, §6). RotationSweepCron, when non-empty, schedules a
// periodic sweep (internal/session) pruning context.<n>.jsonl/wire.<n>.jsonl
// rotations past RotationRetention.
type SessionConfig struct {
	ShareDir           string `toml:"share_dir"`
	MaxStepsPerTurn    int    `toml:"max_steps_per_turn"`
	MaxRetriesPerStep  int    `toml:"max_retries_per_step"`
	MaxRalphIterations int    `toml:"max_ralph_iterations"`
	FlowMode           bool   `toml:"flow_mode"`
	RotationRetention  int    `toml:"rotation_retention"`
	RotationSweepCron  string `toml:"rotation_sweep_cron"`
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.ShareDir == "" {
		cfg.ShareDir = "~/.soul"
	}
	if cfg.MaxStepsPerTurn == 0 {
		cfg.MaxStepsPerTurn = 50
	}
	if cfg.MaxRetriesPerStep == 0 {
		cfg.MaxRetriesPerStep = 3
	}
	if cfg.MaxRalphIterations == 0 {
		cfg.MaxRalphIterations = 10
	}
	if cfg.RotationRetention == 0 {
		cfg.RotationRetention = 5
	}
	if cfg.RotationSweepCron == "" {
		cfg.RotationSweepCron = "@hourly"
	}
}
