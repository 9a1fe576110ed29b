package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/promptwatch/visibility/internal/model"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <pipeline-id>",
	Short: "Show pipeline progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := env.Coordinator.Status(ctx, args[0])
		if err != nil {
			return err
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}

		formatPipelineStatus(os.Stdout, view)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the full status document as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatPipelineStatus writes a tabular stage breakdown to w.
func formatPipelineStatus(out io.Writer, view *model.PipelineStatusView) {
	_, _ = fmt.Fprintf(out, "Pipeline %s  brand=%s  profile=%s  status=%s  progress=%d%%\n\n",
		truncateID(view.PipelineID), view.BrandID, view.Profile, view.Status, view.ProgressPct)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tJOB\tSTATUS\tERROR")
	_, _ = fmt.Fprintln(w, "-----\t---\t------\t-----")

	for _, s := range view.Stages {
		errText := s.Error
		if len(errText) > 60 {
			errText = errText[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.Type,
			truncateID(s.JobID),
			s.Status,
			errText,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
