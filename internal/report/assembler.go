package report

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/scoring"
	"github.com/promptwatch/visibility/internal/store"
)

const (
	lookbackDays       = 30
	recentResultLimit  = 50
	competitorRowLimit = 200
	promptWindowDays   = 7
	promptRowLimit     = 100
	maxTopDomains      = 5
	bytesPerPage       = 3000
)

// Assembler runs assemble_report jobs: the terminal pipeline stage.
type Assembler struct {
	store store.Store
	blobs BlobStore
}

// NewAssembler builds an assembler writing artifacts through blobs.
func NewAssembler(st store.Store, blobs BlobStore) *Assembler {
	return &Assembler{store: st, blobs: blobs}
}

// ReportData is the gathered and derived material both renderers
// share. Score is nil when no score exists or the lookup failed.
type ReportData struct {
	Brand           *model.Brand
	Score           *model.ScoreComponents
	Results         []model.SampleResult
	PromptKeys      []string
	Insights        *model.ReportInsights
	Recommendations []model.Recommendation
	GeneratedAt     time.Time
}

// sources holds the four independently gathered inputs. Any source
// may be empty after a failed fetch; assembly proceeds regardless.
type sources struct {
	score      *model.ScoreComponents
	results    []model.SampleResult
	competitor []model.SampleResult
	promptRows []model.SampleResult
}

// Run assembles a report for the job's brand. A report row is created
// up front; artifact or persistence failures mark it failed and fail
// the job, while individual source fetch failures are absorbed.
func (a *Assembler) Run(ctx context.Context, job *model.Job) (*model.ReportSummary, error) {
	brand, err := a.store.GetBrand(ctx, job.BrandID)
	if err != nil {
		return nil, err
	}

	rep := &model.Report{BrandID: brand.ID, JobID: job.ID}
	if err := a.store.CreateReport(ctx, rep); err != nil {
		return nil, err
	}

	summary, err := a.assemble(ctx, brand, rep)
	if err != nil {
		if ferr := a.store.FailReport(ctx, rep.ID, err.Error()); ferr != nil {
			zap.L().Warn("report: mark failed",
				zap.String("report_id", rep.ID),
				zap.Error(ferr))
		}
		return nil, err
	}
	return summary, nil
}

func (a *Assembler) assemble(ctx context.Context, brand *model.Brand, rep *model.Report) (*model.ReportSummary, error) {
	src := a.gather(ctx, brand.ID)

	data := &ReportData{
		Brand:       brand,
		Score:       src.score,
		Results:     src.results,
		PromptKeys:  recentPromptKeys(src.promptRows),
		GeneratedAt: time.Now().UTC(),
	}
	data.Insights = buildInsights(brand, src)
	data.Recommendations = buildRecommendations(data.Insights, src.score)

	structured, err := renderStructured(data)
	if err != nil {
		return nil, err
	}
	narrative := renderNarrative(data)

	base := path.Join("reports", brand.ID, rep.ID)
	structuredURL, err := a.blobs.Put(ctx, base+"/report.json", structured)
	if err != nil {
		return nil, eris.Wrap(err, "report: store structured artifact")
	}
	narrativeURL, err := a.blobs.Put(ctx, base+"/report.md", narrative)
	if err != nil {
		return nil, eris.Wrap(err, "report: store narrative artifact")
	}

	if src.score != nil {
		rep.ScoreID = src.score.ID
	}
	rep.Insights = data.Insights
	rep.Recommendations = data.Recommendations
	rep.StructuredPath = structuredURL
	rep.NarrativePath = narrativeURL
	rep.SizeBytes = int64(len(structured) + len(narrative))
	rep.PageEstimate = pageEstimate(rep.SizeBytes)
	if err := a.store.FinishReport(ctx, rep); err != nil {
		return nil, err
	}

	zap.L().Info("report assembled",
		zap.String("brand_id", brand.ID),
		zap.String("report_id", rep.ID),
		zap.Int("total_score", data.Insights.TotalScore),
		zap.Int("recommendations", len(data.Recommendations)),
		zap.Int64("size_bytes", rep.SizeBytes),
	)

	return &model.ReportSummary{
		ReportID:        rep.ID,
		TotalScore:      data.Insights.TotalScore,
		MentionRate:     data.Insights.MentionRate,
		Recommendations: len(data.Recommendations),
		SizeBytes:       rep.SizeBytes,
		PageEstimate:    rep.PageEstimate,
		StructuredURL:   structuredURL,
		NarrativeURL:    narrativeURL,
	}, nil
}

// gather fetches the four report sources in parallel. A failed source
// logs and yields its zero value; it never fails the report.
func (a *Assembler) gather(ctx context.Context, brandID string) *sources {
	src := &sources{}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)
	promptSince := time.Now().UTC().AddDate(0, 0, -promptWindowDays)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sc, err := a.store.LatestScore(gctx, brandID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				zap.L().Warn("report: latest score unavailable",
					zap.String("brand_id", brandID), zap.Error(err))
			}
			return nil
		}
		src.score = sc
		return nil
	})
	g.Go(func() error {
		rows, err := a.store.ListSampleResults(gctx, brandID, since, recentResultLimit)
		if err != nil {
			zap.L().Warn("report: recent results unavailable",
				zap.String("brand_id", brandID), zap.Error(err))
			return nil
		}
		src.results = rows
		return nil
	})
	g.Go(func() error {
		rows, err := a.store.ListSampleResults(gctx, brandID, since, competitorRowLimit)
		if err != nil {
			zap.L().Warn("report: competitor rollup unavailable",
				zap.String("brand_id", brandID), zap.Error(err))
			return nil
		}
		src.competitor = rows
		return nil
	})
	g.Go(func() error {
		rows, err := a.store.ListSampleResults(gctx, brandID, promptSince, promptRowLimit)
		if err != nil {
			zap.L().Warn("report: recent prompts unavailable",
				zap.String("brand_id", brandID), zap.Error(err))
			return nil
		}
		src.promptRows = rows
		return nil
	})

	g.Wait() //nolint:errcheck
	return src
}

// buildInsights derives the findings the report is built around.
func buildInsights(brand *model.Brand, src *sources) *model.ReportInsights {
	ins := &model.ReportInsights{SampleCount: len(src.results)}

	if src.score != nil {
		ins.TotalScore = src.score.TotalScore
		ins.StrongestComponent, ins.StrongestValue,
			ins.WeakestComponent, ins.WeakestValue = componentExtremes(src.score)
	}

	var answered, mentioned int
	for _, r := range src.results {
		ins.SampleCostUSD += r.CostUSD
		if r.Error != "" {
			continue
		}
		answered++
		if scoring.Mentions(r.ResponseText, brand) {
			mentioned++
		}
	}
	if answered > 0 {
		ins.MentionRate = float64(mentioned) / float64(answered)
	}

	ins.TopCitedDomains = topCitedDomains(src.results, maxTopDomains)
	ins.CompetitorMentions = competitorRollup(brand, src.competitor)
	return ins
}

// componentExtremes returns the strongest and weakest components by
// raw value. Ties resolve to the alphabetically first name.
func componentExtremes(sc *model.ScoreComponents) (string, float64, string, float64) {
	components := sc.ComponentMap()
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	strongest, weakest := names[0], names[0]
	for _, name := range names[1:] {
		if components[name] > components[strongest] {
			strongest = name
		}
		if components[name] < components[weakest] {
			weakest = name
		}
	}
	return strongest, components[strongest], weakest, components[weakest]
}

// topCitedDomains groups cited URLs by hostname and returns the n most
// frequent.
func topCitedDomains(results []model.SampleResult, n int) []model.DomainCount {
	counts := map[string]int{}
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		for _, u := range scoring.ExtractURLs(r.ResponseText) {
			if host := scoring.Hostname(u); host != "" {
				counts[host]++
			}
		}
	}
	return rankCounts(counts, n)
}

// competitorRollup counts answered results mentioning each competitor.
func competitorRollup(brand *model.Brand, rows []model.SampleResult) []model.DomainCount {
	if len(brand.Competitors) == 0 {
		return nil
	}
	out := make([]model.DomainCount, 0, len(brand.Competitors))
	for _, c := range brand.Competitors {
		if c == "" {
			continue
		}
		n := 0
		for _, r := range rows {
			if r.Error == "" && scoring.ContainsFold(r.ResponseText, c) {
				n++
			}
		}
		out = append(out, model.DomainCount{Domain: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// recentPromptKeys returns the distinct prompt keys seen in the recent
// window, most frequent first.
func recentPromptKeys(rows []model.SampleResult) []string {
	counts := map[string]int{}
	for _, r := range rows {
		if r.PromptKey != "" {
			counts[r.PromptKey]++
		}
	}
	ranked := rankCounts(counts, len(counts))
	keys := make([]string, 0, len(ranked))
	for _, dc := range ranked {
		keys = append(keys, dc.Domain)
	}
	if len(keys) == 0 {
		return nil
	}
	return keys
}

func rankCounts(counts map[string]int, n int) []model.DomainCount {
	if len(counts) == 0 {
		return nil
	}
	out := make([]model.DomainCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, model.DomainCount{Domain: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// buildRecommendations applies the fixed threshold rules. Without a
// score the only recommendation is to establish a baseline.
func buildRecommendations(ins *model.ReportInsights, sc *model.ScoreComponents) []model.Recommendation {
	if sc == nil {
		return []model.Recommendation{{
			Priority: "high",
			Title:    "Establish a visibility baseline",
			Detail:   "No visibility score has been calculated yet. Run a sampling pipeline to capture a first baseline before acting on anything else.",
		}}
	}

	var recs []model.Recommendation
	if sc.GenerativeAppearance < 50 {
		recs = append(recs, model.Recommendation{
			Priority: "high",
			Title:    "Increase content discoverability",
			Detail: fmt.Sprintf("The brand appears in only %.0f%% of sampled answers. Publish pages that answer the category questions directly so answer engines have something to surface.",
				sc.GenerativeAppearance),
		})
	}
	if ins.MentionRate < 0.3 {
		recs = append(recs, model.Recommendation{
			Priority: "high",
			Title:    "Overhaul content strategy",
			Detail: fmt.Sprintf("Only %.0f%% of recent answers mention the brand at all. The current content footprint is not registering with answer engines.",
				ins.MentionRate*100),
		})
	}
	if sc.PromptSOV < 40 {
		recs = append(recs, model.Recommendation{
			Priority: "medium",
			Title:    "Close the share-of-voice gap",
			Detail: fmt.Sprintf("Competitors are mentioned more often than the brand (share of voice %.0f). Target the comparison and alternatives prompts where they dominate.",
				sc.PromptSOV),
		})
	}
	if sc.CitationAuthority < 60 {
		recs = append(recs, model.Recommendation{
			Priority: "medium",
			Title:    "Earn citations from authoritative sources",
			Detail: fmt.Sprintf("Cited sources average %.0f authority. Coverage on high-credibility outlets lifts both this component and answer inclusion.",
				sc.CitationAuthority),
		})
	}
	if sc.AnswerQuality < 60 {
		recs = append(recs, model.Recommendation{
			Priority: "low",
			Title:    "Publish answer-shaped content",
			Detail:   "Answers referencing the brand are thin. Structured, source-linked content gives engines better material to quote.",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, model.Recommendation{
			Priority: "low",
			Title:    "Maintain momentum",
			Detail:   "All components are healthy. Keep the current content cadence and re-sample on schedule to catch regressions early.",
		})
	}
	return recs
}

// pageEstimate converts an artifact byte size to whole pages, minimum
// one.
func pageEstimate(size int64) int {
	pages := int((size + bytesPerPage - 1) / bytesPerPage)
	if pages < 1 {
		pages = 1
	}
	return pages
}
