// agentrelay: cross-chat message relay MCP server
//
// Routes messages between AI agents running in separate chats, keeps a
// searchable archive of what they said and turns conversations into
// role-aware prompts.
//
// Usage:
//
//	agentrelay serve          # Start MCP server (stdio transport)
//	agentrelay status         # Print message archive statistics
//	agentrelay config init    # Write a default config file
//	agentrelay watch <ref>    # Follow a Redis group chat
package main

import (
	"fmt"
	"os"

	"github.com/HendryAvila/agentrelay/internal/server"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agentrelay",
		Short: "Message relay between AI agents in separate chats",
		Long: `agentrelay is an MCP server that lets agents running in different chats
share sessions, read each other's messages and search past conversations.

Config: ~/.agentrelay/config.yaml (override with --config)
Env:    AGENTRELAY_* variables override the file, e.g. AGENTRELAY_MIRROR_BACKEND=redis`,
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.agentrelay/config.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newStatusCmd(&configPath),
		newConfigCmd(&configPath),
		newWatchCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentrelay v%s\n", server.Version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
