package scoring

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

func testBrand() *model.Brand {
	return &model.Brand{
		ID:          "brand-1",
		Name:        "Acme Plumbing",
		Domain:      "www.acmeplumbing.com",
		Competitors: []string{"Budget Pipes", "Drain Kings"},
	}
}

func answered(texts ...string) []model.SampleResult {
	out := make([]model.SampleResult, len(texts))
	for i, text := range texts {
		out[i] = model.SampleResult{ResponseText: text}
	}
	return out
}

func TestWeights_SumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, WeightSum(), 1e-9)
	assert.Len(t, Weights, 7)
}

func TestCompute_ComponentBoundsAndTotal(t *testing.T) {
	results := answered(
		"Acme Plumbing leads the market. See https://forbes.com/acme and https://yelp.com/acme.",
		"Budget Pipes is cheaper, but Acme Plumbing has better reviews.",
		"Nothing specific to say here.",
	)

	sc := Compute(testBrand(), results)

	for name, v := range sc.ComponentMap() {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 100.0, name)
	}

	var want float64
	for name, v := range sc.ComponentMap() {
		want += v * Weights[name]
	}
	assert.Equal(t, int(math.Round(want)), sc.TotalScore)
	assert.Equal(t, 3, sc.SampleCount)
	assert.Equal(t, model.EngineScopeAll, sc.EngineScope)
	assert.Equal(t, "brand-1", sc.BrandID)
}

func TestCompute_PlaceholderComponents(t *testing.T) {
	sc := Compute(testBrand(), answered("Acme Plumbing."))
	assert.InDelta(t, 50, sc.VoicePresence, 1e-9)
	assert.InDelta(t, 50, sc.AITraffic, 1e-9)
	assert.InDelta(t, 50, sc.AIConversions, 1e-9)
}

func TestScorePromptSOV(t *testing.T) {
	brand := testBrand()
	tests := []struct {
		name    string
		results []model.SampleResult
		want    float64
	}{
		{"no competitor baseline", answered("Acme Plumbing is great.", "no one mentioned"), 50},
		{"brand outnumbers competitors", answered(
			"Acme Plumbing wins.",
			"Acme Plumbing again.",
			"Acme Plumbing and Budget Pipes compared.",
		), 100}, // 3 brand vs 1 competitor, capped at 100
		{"brand trails competitors", answered(
			"Acme Plumbing mentioned once.",
			"Budget Pipes here.",
			"Drain Kings there.",
		), 50}, // 1 brand / 2 competitor mentions
		{"both competitors in one answer", answered(
			"Budget Pipes vs Drain Kings, no one else.",
		), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scorePromptSOV(brand, tt.results), 1e-9)
		})
	}
}

func TestScoreGenerativeAppearance(t *testing.T) {
	brand := testBrand()
	tests := []struct {
		name    string
		results []model.SampleResult
		want    float64
	}{
		{"half mention by name", answered("Acme Plumbing is solid.", "nothing relevant"), 50},
		{"case folded match", answered("ACME PLUMBING all caps."), 100},
		{"bare domain counts", answered("Their site is acmeplumbing.com."), 100},
		{"www stripped from brand domain", answered("Visit https://www.acmeplumbing.com/contact today."), 100},
		{"no mentions", answered("Budget Pipes only."), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreGenerativeAppearance(brand, tt.results), 1e-9)
		})
	}
}

func TestScoreCitationAuthority(t *testing.T) {
	tests := []struct {
		name    string
		results []model.SampleResult
		want    float64
	}{
		{"single known domain", answered("Per https://forbes.com/best-plumbers, Acme wins."), 90},
		{"no urls defaults", answered("No sources cited anywhere."), 50},
		{"unknown domain defaults", answered("See https://smallblog.example for details."), 50},
		{"averaged across urls", answered(
			"Sources: https://forbes.com/a and https://smallblog.example/b.",
		), 70}, // (90 + 50) / 2
		{"subdomain inherits parent", answered("https://en.wikipedia.org/wiki/Plumbing"), 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreCitationAuthority(tt.results), 1e-9)
		})
	}
}

func TestAnswerQuality(t *testing.T) {
	sixtyWords := strings.Repeat("word ", 60)
	fortyWords := strings.Repeat("word ", 40)
	longText := strings.Repeat("word ", 300)

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"bare short text", "Too short.", 50},
		{"ideal word count", strings.TrimSpace(sixtyWords), 70},
		{"acceptable word count", strings.TrimSpace(fortyWords), 60},
		{"overlong gets no length bonus", strings.TrimSpace(longText), 50},
		{"structure bonus", "First point.\nSecond point.", 60},
		{"hyphen list bonus", "- first\n- second", 60},
		{"one url", "See https://example.com now.", 55},
		{"two urls", "See https://a.example and https://b.example.", 60},
		{"four urls", "https://a.example https://b.example https://c.example https://d.example", 65},
		{"question bonus", "Why choose Acme?", 55},
		{
			"stacked bonuses",
			strings.TrimSpace(sixtyWords) + "\n- https://a.example\n- https://b.example\nWhy not call today?",
			50 + 20 + 10 + 10 + 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, answerQuality(tt.text), 1e-9)
		})
	}
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "no links here", nil},
		{"plain", "visit https://example.com today", []string{"https://example.com"}},
		{"trailing period stripped", "see https://example.com/page.", []string{"https://example.com/page"}},
		{"http scheme", "http://example.org/x", []string{"http://example.org/x"}},
		{"multiple", "https://a.example and https://b.example/path?q=1", []string{"https://a.example", "https://b.example/path?q=1"}},
		{"markdown link", "read [this](https://example.com/doc) now", []string{"https://example.com/doc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractURLs(tt.text))
		})
	}
}

func TestAuthority(t *testing.T) {
	tests := []struct {
		host string
		want float64
	}{
		{"forbes.com", 90},
		{"www.forbes.com", 90},
		{"en.wikipedia.org", 95},
		{"unknown.example", 50},
		{"com", 50},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.InDelta(t, tt.want, Authority(tt.host), 1e-9)
		})
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRun_PersistsScoreRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	brand := testBrand()
	require.NoError(t, s.UpsertBrand(ctx, brand))

	_, err := s.InsertSampleResults(ctx, []model.SampleResult{
		{BrandID: brand.ID, JobID: "j1", Model: "m", Provider: "p", PromptKey: "reviews",
			ResponseText: "Acme Plumbing is well reviewed. https://forbes.com/acme", CostUSD: 0.01},
		{BrandID: brand.ID, JobID: "j1", Model: "m", Provider: "p", PromptKey: "reviews",
			Error: "rate limited"},
	})
	require.NoError(t, err)

	job, err := s.CreateJob(ctx, model.NewJob{BrandID: brand.ID, Type: model.JobTypeScore})
	require.NoError(t, err)

	eng := NewEngine(s, config.ScoringConfig{LookbackDays: 30, MaxResults: 500})
	sc, err := eng.Run(ctx, job)
	require.NoError(t, err)

	// The errored row is excluded from scoring.
	assert.Equal(t, 1, sc.SampleCount)
	assert.InDelta(t, 100, sc.GenerativeAppearance, 1e-9)
	assert.InDelta(t, 90, sc.CitationAuthority, 1e-9)

	latest, err := s.LatestScore(ctx, brand.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.ID, latest.ID)
	assert.Equal(t, sc.TotalScore, latest.TotalScore)
	assert.False(t, latest.CalculatedAt.IsZero())
}

func TestRun_NoDataInWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBrand(ctx, testBrand()))

	job, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeScore})
	require.NoError(t, err)

	eng := NewEngine(s, config.ScoringConfig{})
	_, err = eng.Run(ctx, job)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRun_AllErroredRowsIsNoData(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBrand(ctx, testBrand()))

	_, err := s.InsertSampleResults(ctx, []model.SampleResult{
		{BrandID: "brand-1", JobID: "j1", Model: "m", Provider: "p", PromptKey: "reviews", Error: "timeout"},
		{BrandID: "brand-1", JobID: "j1", Model: "m", Provider: "p", PromptKey: "reviews", Error: "timeout"},
	})
	require.NoError(t, err)

	job, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeScore})
	require.NoError(t, err)

	eng := NewEngine(s, config.ScoringConfig{})
	_, err = eng.Run(ctx, job)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRun_WindowExcludesOldRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBrand(ctx, testBrand()))

	old := time.Now().UTC().AddDate(0, 0, -45)
	_, err := s.InsertSampleResults(ctx, []model.SampleResult{
		{BrandID: "brand-1", JobID: "j0", Model: "m", Provider: "p", PromptKey: "reviews",
			ResponseText: "stale answer", CreatedAt: old},
	})
	require.NoError(t, err)

	job, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeScore})
	require.NoError(t, err)

	eng := NewEngine(s, config.ScoringConfig{LookbackDays: 30})
	_, err = eng.Run(ctx, job)
	assert.ErrorIs(t, err, ErrNoData)
}
