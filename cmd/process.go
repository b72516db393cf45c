package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processJobID string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process a single queued job by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Store.GetJob(ctx, processJobID)
		if err != nil {
			return err
		}
		claimed, err := env.Store.ClaimJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return eris.Errorf("job %s is not queued (status %s)", job.ID, job.Status)
		}

		if err := env.Pipeline.ProcessJob(ctx, job); err != nil {
			return err
		}
		zap.L().Info("job processed", zap.String("job_id", job.ID))
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processJobID, "job", "", "job id to process")
	processCmd.MarkFlagRequired("job") //nolint:errcheck
	rootCmd.AddCommand(processCmd)
}
