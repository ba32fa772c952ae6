package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/healthmap/internal/config"
	"github.com/sells-group/healthmap/internal/model"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	listFormat string
	showFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRead); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.LoadAll(ctx)
		if err != nil {
			return eris.Wrap(err, "list")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No entities processed yet.")
			return nil
		}
		return writeEntities(os.Stdout, recs, listFormat)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one stored entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRead); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.Load(ctx, model.StorageKey(args[0]))
		if err != nil {
			return eris.Wrap(err, "show")
		}
		if rec == nil {
			return eris.Errorf("entity not found: %s", args[0])
		}

		switch showFormat {
		case formatYAML:
			return writeYAML(os.Stdout, rec)
		case formatJSON:
			return writeJSON(os.Stdout, rec)
		default:
			return eris.Errorf("unknown format %q (want json or yaml)", showFormat)
		}
	},
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", formatTable, "output format (table, json, yaml)")
	showCmd.Flags().StringVar(&showFormat, "format", formatJSON, "output format (json, yaml)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

func writeEntities(w io.Writer, recs []model.EntityRecord, format string) error {
	switch format {
	case formatTable:
		formatEntityTable(w, recs)
		return nil
	case formatJSON:
		return writeJSON(w, recs)
	case formatYAML:
		return writeYAML(w, recs)
	default:
		return eris.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

// formatEntityTable writes a summary row per entity.
func formatEntityTable(out io.Writer, recs []model.EntityRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tTYPE\tREVENUE\tSUBSIDIARIES\tRELATIONSHIPS")
	_, _ = fmt.Fprintln(w, "----\t----\t-------\t------------\t-------------")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			r.Name,
			orDash(r.Type),
			orDash(r.Revenue),
			len(r.Subsidiaries),
			len(r.Relationships),
		)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML renders v through its JSON encoding so records keep their wire
// field names and order.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "yaml: marshal json")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return eris.Wrap(err, "yaml: parse")
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return eris.Wrap(err, "yaml: encode")
	}
	return eris.Wrap(enc.Close(), "yaml: close")
}

// blockStyle clears the flow and quoting styles inherited from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
