package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

// mcpServerConfig is one entry of an MCP server config file, in the
// "mcpServers" map shape the ecosystem's MCP clients already use.
type mcpServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

type mcpFile struct {
	MCPServers map[string]mcpServerConfig `json:"mcpServers"`
}

// buildMcpCmd creates the "mcp" subcommand group. The external MCP tool
// transport itself is out of scope for this build (no client connects to
// any of these servers); "mcp servers" only parses and reports what
// --mcp-config/--mcp-config-file name, for parity with the flag surface and
// so a host can sanity-check a config before pointing a real MCP-capable
// client at it. Grounded on the teacher's buildMcpCmd/buildMcpServersCmd
// (cmd/nexus/main.go) shape, trimmed to this one read-only subcommand since
// internal/mcp does not exist in this module.
func buildMcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect MCP server configuration (no transport in this build)",
		Long: `soul accepts --mcp-config-file/--mcp-config for parity with hosts that
already manage MCP server configuration, but does not itself speak the MCP
transport. "soul mcp servers" parses and reports what those flags name.`,
	}
	cmd.AddCommand(buildMcpServersCmd())
	return cmd
}

func buildMcpServersCmd() *cobra.Command {
	var (
		configFile string
		configJSON string
	)

	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List the servers named by --mcp-config-file or --mcp-config",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := resolveMcpConfigJSON(configFile, configJSON)
			if err != nil {
				return err
			}
			if raw == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No MCP server configuration given (--mcp-config-file/--mcp-config).")
				return nil
			}

			var parsed mcpFile
			if err := json.Unmarshal(raw, &parsed); err != nil {
				return fmt.Errorf("soul: parse mcp config: %w", err)
			}
			if len(parsed.MCPServers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers listed under \"mcpServers\".")
				return nil
			}

			names := make([]string, 0, len(parsed.MCPServers))
			for name := range parsed.MCPServers {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "MCP servers (not connected; transport is out of scope):")
			for _, name := range names {
				srv := parsed.MCPServers[name]
				if srv.URL != "" {
					fmt.Fprintf(out, "  %s - %s\n", name, srv.URL)
					continue
				}
				fmt.Fprintf(out, "  %s - %s %v\n", name, srv.Command, srv.Args)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configFile, "mcp-config-file", "", "path to an MCP server config file")
	cmd.Flags().StringVar(&configJSON, "mcp-config", "", "inline MCP server config JSON")
	return cmd
}

func resolveMcpConfigJSON(configFile, configJSON string) ([]byte, error) {
	if configJSON != "" {
		return []byte(configJSON), nil
	}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("soul: read --mcp-config-file %s: %w", configFile, err)
		}
		return data, nil
	}
	return nil, nil
}
