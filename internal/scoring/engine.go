// Package scoring reduces stored sample results into seven weighted
// visibility components and one aggregate score per calculation.
package scoring

import (
	"context"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

// ErrNoData fails a scoring job whose lookback window holds no
// answered sample results.
var ErrNoData = eris.New("no sample data in window")

// Weights is the fixed component weighting. The values sum to exactly
// 1.0; WeightSum is tested against that invariant.
var Weights = map[string]float64{
	model.ComponentPromptSOV:            0.30,
	model.ComponentGenerativeAppearance: 0.20,
	model.ComponentCitationAuthority:    0.15,
	model.ComponentAnswerQuality:        0.10,
	model.ComponentVoicePresence:        0.05,
	model.ComponentAITraffic:            0.10,
	model.ComponentAIConversions:        0.10,
}

// WeightSum returns the sum of all component weights.
func WeightSum() float64 {
	var sum float64
	for _, w := range Weights {
		sum += w
	}
	return sum
}

const (
	defaultLookbackDays = 30
	defaultMaxResults   = 500
)

// urlPattern matches http(s) URLs embedded in answer text. Trailing
// sentence punctuation is trimmed after the match.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// Engine runs score jobs over the sample-result history.
type Engine struct {
	store store.Store
	cfg   config.ScoringConfig
}

// NewEngine builds a scoring engine over the given store.
func NewEngine(st store.Store, cfg config.ScoringConfig) *Engine {
	return &Engine{store: st, cfg: cfg}
}

// Run computes and persists a new score row for the job's brand. Only
// answered results count: a row whose invocation errored carries no
// text to score, so windows with nothing but errors fail with
// ErrNoData.
func (e *Engine) Run(ctx context.Context, job *model.Job) (*model.ScoreComponents, error) {
	brand, err := e.store.GetBrand(ctx, job.BrandID)
	if err != nil {
		return nil, err
	}

	lookback := e.cfg.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	limit := e.cfg.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}

	since := time.Now().UTC().AddDate(0, 0, -lookback)
	rows, err := e.store.ListSampleResults(ctx, brand.ID, since, limit)
	if err != nil {
		return nil, eris.Wrap(err, "scoring: list sample results")
	}

	var answered []model.SampleResult
	for _, r := range rows {
		if r.Error == "" {
			answered = append(answered, r)
		}
	}
	if len(answered) == 0 {
		return nil, eris.Wrapf(ErrNoData, "scoring: brand %s, last %dd", brand.ID, lookback)
	}

	sc := Compute(brand, answered)
	if err := e.store.InsertScore(ctx, sc); err != nil {
		return nil, err
	}

	zap.L().Info("score calculated",
		zap.String("brand_id", brand.ID),
		zap.Int("total_score", sc.TotalScore),
		zap.Int("sample_count", sc.SampleCount),
	)
	return sc, nil
}

// Compute derives the seven components and weighted total from a set
// of answered results. Pure: no IO, no clock.
func Compute(brand *model.Brand, results []model.SampleResult) *model.ScoreComponents {
	components := map[string]float64{
		model.ComponentPromptSOV:            scorePromptSOV(brand, results),
		model.ComponentGenerativeAppearance: scoreGenerativeAppearance(brand, results),
		model.ComponentCitationAuthority:    scoreCitationAuthority(results),
		model.ComponentAnswerQuality:        scoreAnswerQuality(results),

		// Placeholders until external traffic and conversion feeds
		// exist.
		model.ComponentVoicePresence: 50,
		model.ComponentAITraffic:     50,
		model.ComponentAIConversions: 50,
	}

	var total float64
	for k, v := range components {
		total += v * Weights[k]
	}

	return &model.ScoreComponents{
		BrandID:              brand.ID,
		EngineScope:          model.EngineScopeAll,
		PromptSOV:            components[model.ComponentPromptSOV],
		GenerativeAppearance: components[model.ComponentGenerativeAppearance],
		CitationAuthority:    components[model.ComponentCitationAuthority],
		AnswerQuality:        components[model.ComponentAnswerQuality],
		VoicePresence:        components[model.ComponentVoicePresence],
		AITraffic:            components[model.ComponentAITraffic],
		AIConversions:        components[model.ComponentAIConversions],
		TotalScore:           int(math.Round(total)),
		SampleCount:          len(results),
	}
}

// scorePromptSOV compares brand mentions against the combined
// competitor mention count. With no competitor baseline the component
// is neutral 50.
func scorePromptSOV(brand *model.Brand, results []model.SampleResult) float64 {
	var brandMentions, competitorMentions int
	for _, r := range results {
		if Mentions(r.ResponseText, brand) {
			brandMentions++
		}
		for _, c := range brand.Competitors {
			if c != "" && ContainsFold(r.ResponseText, c) {
				competitorMentions++
			}
		}
	}
	if competitorMentions == 0 {
		return 50
	}
	return math.Min(100, float64(brandMentions)/float64(competitorMentions)*100)
}

// scoreGenerativeAppearance is the fraction of answers that mention
// the brand by name or bare domain.
func scoreGenerativeAppearance(brand *model.Brand, results []model.SampleResult) float64 {
	if len(results) == 0 {
		return 0
	}
	mentioned := 0
	for _, r := range results {
		if Mentions(r.ResponseText, brand) {
			mentioned++
		}
	}
	return float64(mentioned) / float64(len(results)) * 100
}

// scoreCitationAuthority averages the authority of every URL cited
// across the window; neutral 50 when nothing is cited.
func scoreCitationAuthority(results []model.SampleResult) float64 {
	var sum float64
	var n int
	for _, r := range results {
		for _, u := range ExtractURLs(r.ResponseText) {
			if host := Hostname(u); host != "" {
				sum += Authority(host)
				n++
			}
		}
	}
	if n == 0 {
		return defaultAuthority
	}
	return sum / float64(n)
}

// scoreAnswerQuality averages the structural quality heuristic over
// all answers.
func scoreAnswerQuality(results []model.SampleResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += answerQuality(r.ResponseText)
	}
	return sum / float64(len(results))
}

// answerQuality scores one answer: base 50, bonuses for a digestible
// word count, visible structure, citations, and an engaging question,
// clamped to [0,100].
func answerQuality(text string) float64 {
	score := 50.0

	words := len(strings.Fields(text))
	switch {
	case words >= 50 && words <= 120:
		score += 20
	case words >= 30 && words <= 200:
		score += 10
	}

	if strings.Contains(text, "\n") || strings.Contains(text, "- ") || strings.Contains(text, "• ") {
		score += 10
	}

	switch n := len(ExtractURLs(text)); {
	case n > 3:
		score += 15
	case n > 1:
		score += 10
	case n > 0:
		score += 5
	}

	if strings.Contains(text, "?") {
		score += 5
	}

	return math.Max(0, math.Min(100, score))
}

// Mentions reports whether an answer names the brand or its bare
// domain, case-folded. The report assembler shares this test for its
// mention-rate insight.
func Mentions(text string, brand *model.Brand) bool {
	if brand.Name != "" && ContainsFold(text, brand.Name) {
		return true
	}
	domain := strings.TrimPrefix(strings.ToLower(brand.Domain), "www.")
	return domain != "" && ContainsFold(text, domain)
}

// ContainsFold is a Unicode case-insensitive substring test, shared
// with the report assembler's competitor matching.
func ContainsFold(haystack, needle string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(haystack), fold.String(needle))
}

// ExtractURLs returns every http(s) URL in the text, with trailing
// sentence punctuation stripped.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		urls = append(urls, strings.TrimRight(m, ".,;:!?"))
	}
	return urls
}

// Hostname resolves a URL to its bare hostname, www-stripped and
// lowercased. Empty on unparseable input.
func Hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
