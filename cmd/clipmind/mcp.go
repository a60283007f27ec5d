package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmind/internal/mcpbridge"
)

func newMCPCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the history to an MCP client over stdio",
		Long: `Runs a Model Context Protocol server on stdin/stdout so an AI agent can
list, copy, pin, delete and clear clipboard history entries. It forwards
every tool call to the running daemon. Logs go to stderr.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runMCP(v) },
	}

	addClientFlags(cmd)
	addLoggingFlags(cmd)

	return cmd
}

func runMCP(v *viper.Viper) error {
	resolveLogging(false, v.GetString("log-format"), v.GetString("log-level"))

	dc, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer dc.Close()

	if err := mcpbridge.Run(dc.client, Version); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}
