package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// flags holds every CLI flag spec §6's CLI surface names "for parity".
// Grounded on cmd/nexus-edge/flags.go's shape: flag vars declared together,
// with a separate validate step driven by cmd.Flags().Changed rather than
// cobra's built-in MarkFlagsMutuallyExclusive, so the violation message can
// name the two flags explicitly (spec §6: "violations exit non-zero with a
// clear message").
type flags struct {
	workDir string
	session string
	cont    bool

	config     string
	configFile string

	model       string
	thinking    bool
	noThinking  bool
	yolo        bool

	agent     string
	agentFile string

	mcpConfigFile string
	mcpConfig     string

	skillsDir string

	maxStepsPerTurn    int
	maxRetriesPerStep  int
	maxRalphIterations int
}

func (f *flags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.workDir, "work-dir", "", "project working directory (default: current directory)")
	cmd.Flags().StringVar(&f.session, "session", "", "resume a specific session id")
	cmd.Flags().BoolVar(&f.cont, "continue", false, "resume the most recently touched session for --work-dir")

	cmd.Flags().StringVar(&f.config, "config", "", "share directory holding config.toml/kimi.json/sessions (default: ~/.soul)")
	cmd.Flags().StringVar(&f.configFile, "config-file", "", "explicit path to the TOML config file (default: <share>/config.toml)")

	cmd.Flags().StringVar(&f.model, "model", "", "override llm.default_provider's model for this run")
	cmd.Flags().BoolVar(&f.thinking, "thinking", false, "enable extended thinking, if the selected provider supports it")
	cmd.Flags().BoolVar(&f.noThinking, "no-thinking", false, "disable extended thinking")
	cmd.Flags().BoolVar(&f.yolo, "yolo", false, "auto-approve every tool call for this run (overrides tools.yolo)")

	cmd.Flags().StringVar(&f.agent, "agent", "", "inline system prompt text for this session")
	cmd.Flags().StringVar(&f.agentFile, "agent-file", "", "path to a file whose contents become this session's system prompt")

	cmd.Flags().StringVar(&f.mcpConfigFile, "mcp-config-file", "", "path to an MCP server config file (accepted for parity; see soul mcp)")
	cmd.Flags().StringVar(&f.mcpConfig, "mcp-config", "", "inline MCP server config JSON (accepted for parity; see soul mcp)")

	cmd.Flags().StringVar(&f.skillsDir, "skills-dir", "", "override skills.dir for this run")

	cmd.Flags().IntVar(&f.maxStepsPerTurn, "max-steps-per-turn", 0, "override session.max_steps_per_turn for this run")
	cmd.Flags().IntVar(&f.maxRetriesPerStep, "max-retries-per-step", 0, "override session.max_retries_per_step for this run")
	cmd.Flags().IntVar(&f.maxRalphIterations, "max-ralph-iterations", 0, "override session.max_ralph_iterations for this run")
}

// validate enforces the flag mutual-exclusion rules: --agent/--agent-file,
// --continue/--session and --thinking/--no-thinking.
func (f *flags) validate(cmd *cobra.Command) error {
	if changed(cmd, "agent") && changed(cmd, "agent-file") {
		return errors.New("soul: --agent and --agent-file are mutually exclusive")
	}
	if changed(cmd, "continue") && changed(cmd, "session") {
		return errors.New("soul: --continue and --session are mutually exclusive")
	}
	if f.thinking && f.noThinking {
		return errors.New("soul: --thinking and --no-thinking are mutually exclusive")
	}
	return nil
}

func changed(cmd *cobra.Command, name string) bool {
	flag := cmd.Flags().Lookup(name)
	return flag != nil && flag.Changed
}
