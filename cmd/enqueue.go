package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	enqueueTenant string
	enqueueEvent  string
	enqueueImage  string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue a card image for processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		job, err := st.CreateJob(ctx, enqueueTenant, enqueueEvent, enqueueImage)
		if err != nil {
			return err
		}
		fmt.Println(job.ID)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueTenant, "tenant", "", "tenant id")
	enqueueCmd.Flags().StringVar(&enqueueEvent, "event", "", "event id")
	enqueueCmd.Flags().StringVar(&enqueueImage, "image", "", "image ref in the blob store")
	enqueueCmd.MarkFlagRequired("tenant") //nolint:errcheck
	enqueueCmd.MarkFlagRequired("image")  //nolint:errcheck
	rootCmd.AddCommand(enqueueCmd)
}
