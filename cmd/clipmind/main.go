// clipmind: clipboard history daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipmind/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipmind",
		Short: "Clipboard history daemon",
		Long: `clipmind watches the system clipboard and keeps a bounded, deduplicated
history of what you copied. Observers (the CLI, editor plugins, scripts, MCP
agents) see every change and can copy, pin, delete or clear entries.

Run "clipmind serve" once per desktop session. The other commands talk to it
over a local socket, or over TCP with --server.

Config file search order (first found wins):
  /etc/clipmind/clipmind.toml
  $HOME/.config/clipmind/clipmind.toml
  path supplied via --config

All flags can be set via CLIPMIND_<FLAG> env vars or config-file keys.
See "clipmind serve --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newHistoryCmd(),
		newCopyCmd(),
		newDeleteCmd(),
		newPinCmd(true),
		newPinCmd(false),
		newClearCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newExportCmd(),
		newMCPCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipmind %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
