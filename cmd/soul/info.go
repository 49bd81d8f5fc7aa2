package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentcore/soul/internal/config"
)

// buildInfoCmd creates the "info" subcommand: resolved share directory,
// effective config, and the config.toml JSON Schema, for a host process to
// introspect without starting the wire server. Grounded on the teacher's
// buildStatusCmd (cmd/nexus/main.go) shape (a --json toggle over otherwise
// human-readable output), trimmed to this module's actual state instead of
// the teacher's channel/database/tool-pool status report.
func buildInfoCmd() *cobra.Command {
	var (
		shareDir   string
		configFile string
		asJSON     bool
		schemaOnly bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the resolved share directory, effective config, and config schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolvedShare, err := config.ResolveShareDir(nonEmpty(shareDir, "~/.soul"))
			if err != nil {
				return fmt.Errorf("soul: resolve share dir: %w", err)
			}

			if schemaOnly {
				schema, err := config.JSONSchema()
				if err != nil {
					return fmt.Errorf("soul: build config schema: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
				return err
			}

			path := configFile
			if path == "" {
				path = filepath.Join(resolvedShare, config.CurrentConfigName)
			}
			cfg, err := loadOrDefaultConfig(path)
			if err != nil {
				return fmt.Errorf("soul: load config: %w", err)
			}

			if asJSON {
				return printInfoJSON(cmd, resolvedShare, path, cfg)
			}
			printInfoText(cmd, resolvedShare, path, cfg)
			return nil
		},
	}

	cmd.Flags().StringVar(&shareDir, "config", "", "share directory to inspect (default: ~/.soul)")
	cmd.Flags().StringVar(&configFile, "config-file", "", "explicit config.toml path to inspect")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output machine-readable JSON")
	cmd.Flags().BoolVar(&schemaOnly, "schema", false, "print config.toml's JSON Schema and exit")

	return cmd
}

type infoReport struct {
	Version        int    `json:"version"`
	ShareDir       string `json:"share_dir"`
	ConfigFile     string `json:"config_file"`
	DefaultModel   string `json:"default_model"`
	MaxStepsPerRun int    `json:"max_steps_per_turn"`
	SkillsDir      string `json:"skills_dir"`
}

func newInfoReport(shareDir, configFile string, cfg *config.Config) infoReport {
	return infoReport{
		Version:        cfg.Version,
		ShareDir:       shareDir,
		ConfigFile:     configFile,
		DefaultModel:   cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel,
		MaxStepsPerRun: cfg.Session.MaxStepsPerTurn,
		SkillsDir:      cfg.Skills.Dir,
	}
}

func printInfoJSON(cmd *cobra.Command, shareDir, configFile string, cfg *config.Config) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(newInfoReport(shareDir, configFile, cfg))
}

func printInfoText(cmd *cobra.Command, shareDir, configFile string, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "soul %s (commit %s)\n\n", version, commit)
	fmt.Fprintf(out, "share dir:    %s\n", shareDir)
	fmt.Fprintf(out, "config file:  %s\n", configFile)
	fmt.Fprintf(out, "config version: %d\n\n", cfg.Version)
	fmt.Fprintf(out, "default provider: %s\n", cfg.LLM.DefaultProvider)
	fmt.Fprintf(out, "default model:    %s\n", cfg.LLM.Providers[cfg.LLM.DefaultProvider].DefaultModel)
	fmt.Fprintf(out, "fallback chain:   %v\n\n", cfg.LLM.FallbackChain)
	fmt.Fprintf(out, "max steps/turn:   %d\n", cfg.Session.MaxStepsPerTurn)
	fmt.Fprintf(out, "max retries/step: %d\n", cfg.Session.MaxRetriesPerStep)
	fmt.Fprintf(out, "flow mode:        %s\n", cfg.Session.FlowMode)
	fmt.Fprintf(out, "skills dir:       %s\n", cfg.Skills.Dir)
	fmt.Fprintf(out, "yolo:             %v\n", cfg.Tools.Yolo)
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
