package config

import (
	"time"

	"github.com/agentcore/soul/internal/approval"
)

// ToolsConfig controls the approval policy and built-in tool limits.
// Grounded on the teacher's config_tools.go field names, retargeted at
// internal/approval.Policy's Yolo/Denylist/Allowlist/SafeBins shape.
type ToolsConfig struct {
	Yolo         bool          `toml:"yolo"`
	Denylist     []string      `toml:"denylist"`
	Allowlist    []string      `toml:"allowlist"`
	SafeBins     []string      `toml:"safe_bins"`
	ShellTimeout time.Duration `toml:"shell_timeout"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.ShellTimeout == 0 {
		cfg.ShellTimeout = 2 * time.Minute
	}
	if len(cfg.SafeBins) == 0 {
		cfg.SafeBins = approval.DefaultPolicy().SafeBins
	}
}

// ApprovalPolicy converts the persisted config into the runtime policy
// internal/approval.Coordinator enforces.
func (c ToolsConfig) ApprovalPolicy() approval.Policy {
	return approval.Policy{
		Yolo:      c.Yolo,
		Denylist:  c.Denylist,
		Allowlist: c.Allowlist,
		SafeBins:  c.SafeBins,
	}
}
