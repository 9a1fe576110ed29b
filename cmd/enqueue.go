package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/model"
)

var (
	enqueueBrand       string
	enqueueProfile     string
	enqueueModels      []string
	enqueuePrompts     []string
	enqueueParaphrases int
	enqueueMaxTokens   int
	enqueueTemperature float64
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Start an analysis pipeline for a brand",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := enqueueOptions()

		p, first, err := env.Coordinator.StartPipeline(ctx, enqueueBrand, model.Profile(enqueueProfile), opts)
		if err != nil {
			return err
		}

		zap.L().Info("pipeline started",
			zap.String("pipeline_id", p.ID),
			zap.String("brand_id", p.BrandID),
			zap.String("profile", string(p.Profile)),
			zap.String("first_job_id", first.ID),
		)

		out := struct {
			PipelineID string `json:"pipeline_id"`
			FirstJobID string `json:"first_job_id"`
		}{PipelineID: p.ID, FirstJobID: first.ID}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// enqueueOptions folds the sampling override flags into a SamplingOptions,
// or nil when none were set so profile defaults apply.
func enqueueOptions() *model.SamplingOptions {
	if len(enqueueModels) == 0 && len(enqueuePrompts) == 0 && enqueueParaphrases == 0 &&
		enqueueMaxTokens == 0 && enqueueTemperature == 0 {
		return nil
	}
	return &model.SamplingOptions{
		Models:          enqueueModels,
		PromptKeys:      enqueuePrompts,
		ParaphraseCount: enqueueParaphrases,
		MaxTokens:       enqueueMaxTokens,
		Temperature:     enqueueTemperature,
	}
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueBrand, "brand", "", "brand ID (required)")
	enqueueCmd.Flags().StringVar(&enqueueProfile, "profile", "standard", "analysis profile: lite, standard, full, custom")
	enqueueCmd.Flags().StringSliceVar(&enqueueModels, "models", nil, "override sampled models")
	enqueueCmd.Flags().StringSliceVar(&enqueuePrompts, "prompts", nil, "override prompt keys")
	enqueueCmd.Flags().IntVar(&enqueueParaphrases, "paraphrases", 0, "paraphrase variants per prompt")
	enqueueCmd.Flags().IntVar(&enqueueMaxTokens, "max-tokens", 0, "override max tokens per call")
	enqueueCmd.Flags().Float64Var(&enqueueTemperature, "temperature", 0, "override sampling temperature")
	_ = enqueueCmd.MarkFlagRequired("brand")
	rootCmd.AddCommand(enqueueCmd)
}
