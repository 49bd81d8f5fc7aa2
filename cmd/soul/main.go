// Package main provides the CLI entry point for soul, the execution core's
// wire-server binary (spec §6's "CLI surface"). It loads config.toml, opens
// or resumes a session, wires the context store, wire bus, approval
// coordinator, compaction manager, toolset, step driver, and turn driver
// together, and serves the JSON-RPC protocol over stdio.
//
// Grounded on the teacher's cmd/nexus/main.go buildRootCmd/main split (a
// thin main() plus a testable buildRootCmd()) and cmd/nexus-edge/flags.go's
// cobra.Command.Flags().Changed-based mutual-exclusion checks.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("soul: command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command. Its own RunE is the wire-server
// run mode (spec §6: "run mode is wire-server-only"); "info" and "mcp" are
// the only subcommands.
func buildRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "soul",
		Short:   "Soul - execution core for an agentic coding CLI",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `Soul drives one conversation: message algebra, context persistence,
a wire event bus, tool dispatch with approval gating, context compaction, and
a JSON-RPC protocol over stdio for a host process to drive.

Invoking soul with no subcommand starts the wire server on stdin/stdout.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(cmd); err != nil {
				return err
			}
			return runServer(cmd, f)
		},
	}

	f.register(cmd)
	cmd.AddCommand(buildInfoCmd(), buildMcpCmd())
	return cmd
}
