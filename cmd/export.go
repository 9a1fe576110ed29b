package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/model"
)

var (
	exportBrand string
	exportOut   string
	exportDays  int
	exportLimit int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a brand's scores and samples to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cli"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		brand, err := st.GetBrand(ctx, exportBrand)
		if err != nil {
			return err
		}

		scores, err := st.ListScores(ctx, brand.ID, exportLimit)
		if err != nil {
			return err
		}

		since := time.Now().AddDate(0, 0, -exportDays)
		samples, err := st.ListSampleResults(ctx, brand.ID, since, exportLimit)
		if err != nil {
			return err
		}

		spend, err := st.TrailingSpend(ctx, brand.ID, since)
		if err != nil {
			return err
		}

		f, err := exportWorkbook(brand, scores, samples, spend, exportDays)
		if err != nil {
			return err
		}

		if err := f.Save(exportOut); err != nil {
			return eris.Wrap(err, "export: save workbook")
		}

		zap.L().Info("export complete",
			zap.String("brand", brand.Name),
			zap.Int("scores", len(scores)),
			zap.Int("samples", len(samples)),
			zap.String("out", exportOut),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportBrand, "brand", "", "brand ID (required)")
	exportCmd.Flags().StringVar(&exportOut, "out", "visibility.xlsx", "output workbook path")
	exportCmd.Flags().IntVar(&exportDays, "days", 30, "sample window in days")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "max rows per sheet")
	_ = exportCmd.MarkFlagRequired("brand")
	rootCmd.AddCommand(exportCmd)
}

// exportWorkbook builds the three-sheet workbook: Summary, Scores,
// Samples.
func exportWorkbook(brand *model.Brand, scores []model.ScoreComponents, samples []model.SampleResult, spend float64, days int) (*xlsx.File, error) {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, brand, scores, samples, spend, days); err != nil {
		return nil, err
	}
	if err := addScoresSheet(f, scores); err != nil {
		return nil, err
	}
	if err := addSamplesSheet(f, samples); err != nil {
		return nil, err
	}
	return f, nil
}

func addSummarySheet(f *xlsx.File, brand *model.Brand, scores []model.ScoreComponents, samples []model.SampleResult, spend float64, days int) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addKV := func(key, value string) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetString(value)
	}

	addKV("Brand", brand.Name)
	addKV("Domain", brand.Domain)
	addKV("Service type", brand.ServiceType)
	addKV("Location", brand.Location)
	if len(scores) > 0 {
		addKV("Latest total score", fmt.Sprintf("%d", scores[0].TotalScore))
		addKV("Last calculated", scores[0].CalculatedAt.Format("2006-01-02 15:04"))
	} else {
		addKV("Latest total score", "n/a")
	}
	addKV("Score rows", fmt.Sprintf("%d", len(scores)))
	addKV("Sample rows", fmt.Sprintf("%d", len(samples)))
	addKV(fmt.Sprintf("Spend last %dd (USD)", days), fmt.Sprintf("%.4f", spend))
	return nil
}

func addScoresSheet(f *xlsx.File, scores []model.ScoreComponents) error {
	sheet, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "export: add scores sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"CALCULATED_AT", "SCOPE", "TOTAL",
		"PROMPT_SOV", "GEN_APPEARANCE", "CITATION_AUTH", "ANSWER_QUALITY",
		"VOICE_PRESENCE", "AI_TRAFFIC", "AI_CONVERSIONS", "SAMPLES",
	} {
		header.AddCell().SetString(h)
	}

	for _, s := range scores {
		row := sheet.AddRow()
		row.AddCell().SetString(s.CalculatedAt.Format("2006-01-02 15:04"))
		row.AddCell().SetString(s.EngineScope)
		row.AddCell().SetInt(s.TotalScore)
		row.AddCell().SetFloat(s.PromptSOV)
		row.AddCell().SetFloat(s.GenerativeAppearance)
		row.AddCell().SetFloat(s.CitationAuthority)
		row.AddCell().SetFloat(s.AnswerQuality)
		row.AddCell().SetFloat(s.VoicePresence)
		row.AddCell().SetFloat(s.AITraffic)
		row.AddCell().SetFloat(s.AIConversions)
		row.AddCell().SetInt(s.SampleCount)
	}
	return nil
}

func addSamplesSheet(f *xlsx.File, samples []model.SampleResult) error {
	sheet, err := f.AddSheet("Samples")
	if err != nil {
		return eris.Wrap(err, "export: add samples sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"CREATED_AT", "MODEL", "PROVIDER", "PROMPT_KEY", "PARAPHRASE",
		"TOKENS", "COST_USD", "LATENCY_MS", "ERROR", "RESPONSE",
	} {
		header.AddCell().SetString(h)
	}

	for _, r := range samples {
		row := sheet.AddRow()
		row.AddCell().SetString(r.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(r.Model)
		row.AddCell().SetString(r.Provider)
		row.AddCell().SetString(r.PromptKey)
		row.AddCell().SetInt(r.ParaphraseIndex)
		row.AddCell().SetInt(r.TotalTokens)
		row.AddCell().SetFloat(r.CostUSD)
		row.AddCell().SetInt(int(r.ExecutionMs))
		row.AddCell().SetString(r.Error)
		row.AddCell().SetString(truncateResponse(r.ResponseText))
	}
	return nil
}

// truncateResponse caps response text for spreadsheet cells.
func truncateResponse(s string) string {
	const maxLen = 200
	if len(s) > maxLen {
		return s[:maxLen-3] + "..."
	}
	return s
}
