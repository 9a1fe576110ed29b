package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/promptwatch/visibility/internal/model"
)

// structuredDoc is the machine-readable artifact layout.
type structuredDoc struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	Brand           structuredBrand        `json:"brand"`
	Score           *model.ScoreComponents `json:"score,omitempty"`
	Insights        *model.ReportInsights  `json:"insights"`
	Recommendations []model.Recommendation `json:"recommendations"`
	RecentPrompts   []string               `json:"recent_prompts,omitempty"`
}

type structuredBrand struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Domain      string   `json:"domain"`
	Competitors []string `json:"competitors,omitempty"`
}

// renderStructured produces the JSON artifact.
func renderStructured(data *ReportData) ([]byte, error) {
	doc := structuredDoc{
		GeneratedAt: data.GeneratedAt,
		Brand: structuredBrand{
			ID:          data.Brand.ID,
			Name:        data.Brand.Name,
			Domain:      data.Brand.Domain,
			Competitors: data.Brand.Competitors,
		},
		Score:           data.Score,
		Insights:        data.Insights,
		Recommendations: data.Recommendations,
		RecentPrompts:   data.PromptKeys,
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal structured doc")
	}
	return out, nil
}

// renderNarrative produces the Markdown artifact.
func renderNarrative(data *ReportData) []byte {
	var b strings.Builder
	ins := data.Insights

	fmt.Fprintf(&b, "# Visibility Report: %s\n\n", data.Brand.Name)
	fmt.Fprintf(&b, "Generated %s for %s.\n\n",
		data.GeneratedAt.Format("January 2, 2006"), data.Brand.Domain)

	b.WriteString("## Score\n\n")
	if data.Score == nil {
		b.WriteString("No visibility score has been calculated yet.\n\n")
	} else {
		fmt.Fprintf(&b, "Overall visibility score: **%d/100**, computed from %d samples.\n\n",
			data.Score.TotalScore, data.Score.SampleCount)
		b.WriteString("| Component | Value |\n|---|---|\n")
		for _, name := range componentOrder {
			fmt.Fprintf(&b, "| %s | %.1f |\n", componentLabel(name), data.Score.ComponentMap()[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Insights\n\n")
	if data.Score != nil {
		fmt.Fprintf(&b, "- Strongest component: %s (%.1f)\n",
			componentLabel(ins.StrongestComponent), ins.StrongestValue)
		fmt.Fprintf(&b, "- Weakest component: %s (%.1f)\n",
			componentLabel(ins.WeakestComponent), ins.WeakestValue)
	}
	fmt.Fprintf(&b, "- Brand mentioned in %.0f%% of recent answers\n", ins.MentionRate*100)
	if len(ins.TopCitedDomains) > 0 {
		b.WriteString("- Top cited domains: ")
		b.WriteString(joinCounts(ins.TopCitedDomains))
		b.WriteString("\n")
	}
	if len(ins.CompetitorMentions) > 0 {
		b.WriteString("- Competitor mentions: ")
		b.WriteString(joinCounts(ins.CompetitorMentions))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "- Sampling activity: %d results in the last %d days ($%.4f spend)\n\n",
		ins.SampleCount, lookbackDays, ins.SampleCostUSD)

	b.WriteString("## Recommendations\n\n")
	for _, priority := range []string{"high", "medium", "low"} {
		for _, rec := range data.Recommendations {
			if rec.Priority != priority {
				continue
			}
			fmt.Fprintf(&b, "- **[%s] %s**: %s\n", rec.Priority, rec.Title, rec.Detail)
		}
	}
	b.WriteString("\n")

	if len(data.PromptKeys) > 0 {
		b.WriteString("## Recent Prompt Themes\n\n")
		fmt.Fprintf(&b, "%s\n", strings.Join(data.PromptKeys, ", "))
	}

	return []byte(b.String())
}

// componentOrder fixes the rendering order of score components.
var componentOrder = []string{
	model.ComponentPromptSOV,
	model.ComponentGenerativeAppearance,
	model.ComponentCitationAuthority,
	model.ComponentAnswerQuality,
	model.ComponentVoicePresence,
	model.ComponentAITraffic,
	model.ComponentAIConversions,
}

func componentLabel(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func joinCounts(counts []model.DomainCount) string {
	parts := make([]string, 0, len(counts))
	for _, dc := range counts {
		parts = append(parts, fmt.Sprintf("%s (%d)", dc.Domain, dc.Count))
	}
	return strings.Join(parts, ", ")
}
