package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "visibility",
	Short: "Brand visibility engine for LLM answer surfaces",
	Long:  "Samples answer engines about a brand's service category, scores brand presence across seven weighted components, and assembles shareable reports, all on a durable job queue.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
