package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/healthmap/internal/model"
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer relationships across all stored entities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		run := model.Run{
			ID:        uuid.New().String(),
			Kind:      model.RunKindInfer,
			StartedAt: time.Now().UTC(),
		}
		written, inferErr := env.Inferrer.Run(ctx)
		run.FinishedAt = time.Now().UTC()
		run.Succeeded = written
		if inferErr != nil {
			run.Failed = 1
			run.Failures = []model.RunFailure{{Name: "*", Error: inferErr.Error()}}
		}

		if err := env.Store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			zap.L().Warn("infer: failed to record run", zap.String("run_id", run.ID), zap.Error(err))
		}

		if inferErr != nil {
			return inferErr
		}
		fmt.Fprintf(os.Stdout, "Updated %d entities\n", written)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inferCmd)
}
