package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go.klb.dev/clipmind/internal/grpcservice"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and connected observers",
		Long: `Displays the history size, eviction settings, delivery counters and
every observer currently registered with the daemon.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runStatus(cmd.OutOrStdout(), v) },
	}

	cmd.Flags().StringP("output", "o", "text", "output format: text|json|yaml")
	addClientFlags(cmd)

	return cmd
}

func runStatus(w io.Writer, v *viper.Viper) error {
	format := v.GetString("output")
	if err := checkFormat(format, "text"); err != nil {
		return err
	}

	dc, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer dc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	st, err := dc.client.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	}
	printStatus(w, st, dc.transport)
	return nil
}

func printStatus(w io.Writer, st *grpcservice.StatusInfo, transport string) {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transport:\t%s\n", transport)
	fmt.Fprintf(tw, "Entries:\t%d / %d\n", st.Entries, st.MaxItems)
	fmt.Fprintf(tw, "Eviction:\t%s\n", st.Policy)
	fmt.Fprintf(tw, "Broadcasts:\t%d\n", st.Stats.Broadcasts)
	fmt.Fprintf(tw, "Deliveries:\t%d sent, %d resent, %d skipped, %d failed\n",
		st.Stats.Sent, st.Stats.Resent, st.Stats.Skipped, st.Stats.Failed)
	fmt.Fprintln(tw)
	_ = tw.Flush()

	if len(st.Observers) == 0 {
		fmt.Fprintln(w, "No observers connected.")
		return
	}

	tw = tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tALIVE\tVISIBLE\tHANDSHAKE\tLAST SEQ\tPENDING\n")
	_, _ = fmt.Fprintf(tw, "--\t-----\t-------\t---------\t--------\t-------\n")
	for _, o := range st.Observers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
			o.ID, yesNo(o.Alive), yesNo(o.Visible), yesNo(o.Handshake), o.LastSeq, o.Pending)
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
