package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/grpcservice"
)

func newCopyCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     "copy <id>",
		Short:   "Put a history entry back on the clipboard",
		Long:    `Copies the entry back to the system clipboard. The id may be the full id or any unique suffix, as shown by "clipmind history".`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
				id, err := resolveID(ctx, c, args[0])
				if err != nil {
					return err
				}
				if err := c.Copy(ctx, id); err != nil {
					return fmt.Errorf("copy: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "copied %s\n", id)
				return nil
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Remove entries from the history",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
				for _, arg := range args {
					id, err := resolveID(ctx, c, arg)
					if err != nil {
						return err
					}
					if err := c.Delete(ctx, id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "deleted %s\n", id)
				}
				return nil
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

// newPinCmd builds "pin" when pinned is true and "unpin" otherwise.
func newPinCmd(pinned bool) *cobra.Command {
	v := viper.New()
	use, short, verb := "pin", "Pin history entries", "pinned"
	if !pinned {
		use, short, verb = "unpin", "Unpin history entries", "unpinned"
	}
	cmd := &cobra.Command{
		Use:     use + " <id>...",
		Short:   short,
		Args:    cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
				for _, arg := range args {
					id, err := resolveID(ctx, c, arg)
					if err != nil {
						return err
					}
					if err := c.SetPinned(ctx, id, pinned); err != nil {
						return fmt.Errorf("%s %s: %w", use, id, err)
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", verb, id)
				}
				return nil
			})
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newClearCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     "clear",
		Short:   "Remove every history entry, pinned ones included",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !v.GetBool("yes") {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			return withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
				if err := c.Clear(ctx); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "history cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "confirm clearing the history")
	addClientFlags(cmd)
	return cmd
}

// resolveID expands arg to a full entry id: an exact id wins, otherwise arg
// must be the suffix of exactly one entry's id.
func resolveID(ctx context.Context, c *grpcservice.Client, arg string) (string, error) {
	hist, err := c.History(ctx)
	if err != nil {
		return "", fmt.Errorf("history: %w", err)
	}
	return matchID(hist, arg)
}

func matchID(hist []entry.Entry, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", fmt.Errorf("empty id")
	}
	var matches []string
	for _, e := range hist {
		if e.ID == arg {
			return e.ID, nil
		}
		if strings.HasSuffix(strings.ToUpper(e.ID), strings.ToUpper(arg)) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no entry matches %q", arg)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%q matches %d entries; give more of the id", arg, len(matches))
}
