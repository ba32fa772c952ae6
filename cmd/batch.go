package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/batch"
	"github.com/sells-group/healthmap/internal/fetcher"
	"github.com/sells-group/healthmap/internal/model"
)

var (
	batchFile     string
	batchEntities string
	batchWorkers  int
	batchNoUpdate bool
	batchOutput   string
)

var batchCmd = &cobra.Command{
	Use:   "batch [names...]",
	Short: "Enrich many entities concurrently",
	Long:  "Enriches entities listed in a CSV, XLSX or JSON file, given with --entities, or passed as arguments. Exits non-zero if any entity fails.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		names, err := collectNames(ctx, batchFile, batchEntities, args)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return eris.New("batch: no entities given (use --file, --entities or arguments)")
		}

		env, err := initPipeline(ctx, cfg.Pipeline.UpdateExisting && !batchNoUpdate)
		if err != nil {
			return err
		}
		defer env.Close()

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Batch.Workers
		}

		runner := batch.Runner{Workers: workers}
		res := runner.Run(ctx, names, func(ctx context.Context, name string) error {
			_, err := env.Pipeline.Run(ctx, name)
			return err
		})

		// Record the run even when interrupted.
		if err := env.Store.SaveRun(context.WithoutCancel(ctx), res.Run(model.RunKindBatch)); err != nil {
			zap.L().Warn("batch: failed to record run", zap.String("run_id", res.RunID), zap.Error(err))
		}

		if batchOutput != "" {
			if err := fetcher.WriteResultsFile(batchOutput, res); err != nil {
				return err
			}
			zap.L().Info("batch: results written", zap.String("path", batchOutput))
		}

		printBatchSummary(os.Stdout, res)
		return res.Err()
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file of entity names (.csv, .xlsx or .json)")
	batchCmd.Flags().StringVar(&batchEntities, "entities", "", "comma-separated entity names")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "number of concurrent workers (default from config)")
	batchCmd.Flags().BoolVar(&batchNoUpdate, "no-update", false, "replace stored records instead of merging into them")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "write per-entity results to this CSV file")
	rootCmd.AddCommand(batchCmd)
}

// collectNames gathers names from a file, a comma-separated list and
// positional arguments, in that order. Deduplication is left to the runner.
func collectNames(ctx context.Context, file, list string, args []string) ([]string, error) {
	var names []string
	if file != "" {
		fromFile, err := fetcher.ReadNames(ctx, file)
		if err != nil {
			return nil, eris.Wrapf(err, "batch: read %s", file)
		}
		names = append(names, fromFile...)
	}
	if list != "" {
		names = append(names, strings.Split(list, ",")...)
	}
	names = append(names, args...)
	return batch.Normalize(names), nil
}

// printBatchSummary writes counts followed by one line per failure.
func printBatchSummary(w io.Writer, res *batch.Result) {
	fmt.Fprintf(w, "Processed %d entities: %d succeeded, %d failed\n", len(res.Names), res.Succeeded, res.Failed)
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  - %s: %v\n", f.Name, f.Err)
	}
}
