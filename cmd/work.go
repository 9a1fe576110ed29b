package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/monitoring"
	"github.com/promptwatch/visibility/internal/pipeline"
)

var workTypes []string

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run the worker pool",
	Long:  "Claims jobs from the queue and executes pipeline stages until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "work")
		if err != nil {
			return err
		}
		defer env.Close()

		workerCfg := cfg.Worker
		if len(workTypes) > 0 {
			workerCfg.Types = workTypes
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		go alerter.Watch(ctx, env.Collector)

		pool := pipeline.NewPool(env.Store, workerCfg, env.Engines)

		zap.L().Info("starting worker pool",
			zap.Int("count", workerCfg.Count),
			zap.Strings("types", workerCfg.Types))

		return pool.Run(ctx)
	},
}

func init() {
	workCmd.Flags().StringSliceVar(&workTypes, "types", nil, "job types to handle (default all)")
	rootCmd.AddCommand(workCmd)
}
