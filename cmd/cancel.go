package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <pipeline-id>",
	Short: "Cancel a pipeline",
	Long:  "Marks the pipeline cancelled and cancels its queued jobs. Running stages finish but no successor is created.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Coordinator.Cancel(ctx, args[0]); err != nil {
			return err
		}

		fmt.Printf("Pipeline %s cancelled.\n", truncateID(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
