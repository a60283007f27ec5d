package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/grpcservice"
	"go.klb.dev/clipmind/internal/persist"
)

func newExportCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history to a file as JSON or YAML",
		Long: `Writes the full history, newest first and unfiltered, to --file or stdout.

With --offline the history database under --data-dir is read directly, which
works without a running daemon.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runExport(cmd.OutOrStdout(), v) },
	}

	f := cmd.Flags()
	f.StringP("format", "f", "json", "output format: json|yaml")
	f.StringP("file", "O", "", "write to this file instead of stdout")
	f.Bool("offline", false, "read the database directly instead of asking the daemon")
	f.String("data-dir", defaultDataDir(), "directory holding the history database (with --offline)")
	addClientFlags(cmd)

	return cmd
}

func runExport(stdout io.Writer, v *viper.Viper) error {
	format := v.GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	var (
		hist []entry.Entry
		err  error
	)
	if v.GetBool("offline") {
		hist, err = loadOffline(v.GetString("data-dir"))
	} else {
		err = withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
			var err error
			hist, err = c.History(ctx)
			return err
		})
	}
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	path := v.GetString("file")
	if path == "" {
		return writeEntries(stdout, format, hist)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := writeEntries(f, format, hist); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: %w", err)
	}
	return f.Close()
}

func loadOffline(dataDir string) ([]entry.Entry, error) {
	if _, err := os.Stat(filepath.Join(dataDir, persist.DBFile)); err != nil {
		return nil, fmt.Errorf("no history database in %s: %w", dataDir, err)
	}
	db, err := persist.OpenSQLite(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	return db.Load(context.Background())
}
