package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/healthmap/internal/model"
)

var (
	processNoUpdate bool
	addForce        bool
)

var processCmd = &cobra.Command{
	Use:   "process <name>",
	Short: "Enrich a single healthcare entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, cfg.Pipeline.UpdateExisting && !processNoUpdate)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.Run(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "process %s", args[0])
		}
		return printOutcome(os.Stdout, os.Stderr, out)
	},
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new healthcare entity",
	Long:  "Enriches an entity that is not yet stored. With --force an existing record is refreshed and merged.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, addForce)
		if err != nil {
			return err
		}
		defer env.Close()

		key := model.StorageKey(args[0])
		existing, err := env.Store.Load(ctx, key)
		if err != nil {
			return eris.Wrap(err, "add: check existing")
		}
		if existing != nil && !addForce {
			return eris.Errorf("entity already exists: %s (use --force to overwrite)", args[0])
		}

		out, err := env.Pipeline.Run(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "add %s", args[0])
		}
		return printOutcome(os.Stdout, os.Stderr, out)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processNoUpdate, "no-update", false, "replace the stored record instead of merging into it")
	addCmd.Flags().BoolVarP(&addForce, "force", "f", false, "refresh the entity even if it already exists")
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(addCmd)
}

// printOutcome writes the persisted record to out and any validation
// warnings to errOut.
func printOutcome(out, errOut io.Writer, o *model.Outcome) error {
	for _, w := range o.Warnings {
		fmt.Fprintf(errOut, "warning: %s\n", w)
	}
	if o.Record == nil {
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(o.Record)
}
