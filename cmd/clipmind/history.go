package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go.klb.dev/clipmind/internal/entry"
	"go.klb.dev/clipmind/internal/grpcservice"
	"go.klb.dev/clipmind/internal/view"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))
)

const previewWidth = 60

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"ls", "list"},
		Short:   "List clipboard history",
		Long: `Lists the daemon's clipboard history, pinned entries first and then
newest first. --query keeps text entries containing the string, ignoring case.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runHistory(cmd.OutOrStdout(), v) },
	}

	f := cmd.Flags()
	f.StringP("output", "o", "table", "output format: table|json|yaml")
	f.StringP("query", "q", "", "only show text entries containing this")
	f.IntP("limit", "n", 0, "show at most this many entries (0 = all)")
	addClientFlags(cmd)

	return cmd
}

func runHistory(w io.Writer, v *viper.Viper) error {
	format := v.GetString("output")
	if err := checkFormat(format, "table"); err != nil {
		return err
	}

	var hist []entry.Entry
	err := withDaemon(v, func(ctx context.Context, c *grpcservice.Client) error {
		var err error
		hist, err = c.History(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	hist = view.Order(view.Filter(hist, v.GetString("query")))
	if n := v.GetInt("limit"); n > 0 && len(hist) > n {
		hist = hist[:n]
	}

	switch format {
	case "json", "yaml":
		return writeEntries(w, format, hist)
	}
	printHistory(w, hist, time.Now())
	return nil
}

// checkFormat validates an --output/--format value. extra names any
// command-specific format besides json and yaml.
func checkFormat(format string, extra ...string) error {
	for _, f := range append([]string{"json", "yaml"}, extra...) {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q", format)
}

// writeEntries encodes hist as indented JSON or YAML.
func writeEntries(w io.Writer, format string, hist []entry.Entry) error {
	if hist == nil {
		hist = []entry.Entry{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hist)
	case "yaml":
		// Round-trip through JSON so YAML shares the wire field names.
		b, err := json.Marshal(hist)
		if err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var generic []any
		if err := dec.Decode(&generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plainNumbers(generic)); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q", format)
}

// plainNumbers replaces json.Number values so yaml.v3 emits them as
// integers or floats rather than quoted strings.
func plainNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = plainNumbers(e)
		}
	case []any:
		for i, e := range x {
			x[i] = plainNumbers(e)
		}
	}
	return v
}

func printHistory(w io.Writer, hist []entry.Entry, now time.Time) {
	if len(hist) == 0 {
		fmt.Fprintln(w, headerStyle.Render("No clipboard history"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d entr%s", len(hist), plural(len(hist), "y", "ies"))))
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, titleStyle.Render("ID")+"\t"+titleStyle.Render("")+"\t"+titleStyle.Render("Copied")+"\t"+titleStyle.Render("Value")+"\t")
	fmt.Fprintln(tw, strings.Repeat("─", 100))
	for _, e := range hist {
		pin := " "
		if e.Pinned {
			pin = pinStyle.Render("*")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			idStyle.Render(shortID(e.ID)),
			pin,
			dateStyle.Render(fmtWhen(e.Timestamp, now)),
			valueStyle.Render(view.Preview(e, previewWidth)),
		)
	}
	_ = tw.Flush()
}

// shortID keeps the random tail of a ULID. The leading characters encode
// the capture time and repeat between entries copied close together.
func shortID(id string) string {
	if len(id) > 10 {
		return id[len(id)-10:]
	}
	return id
}

func fmtWhen(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	t = t.Local()
	switch diff := now.Sub(t); {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	}
	return t.Format("2006-01-02")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
