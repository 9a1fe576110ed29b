package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwatch/visibility/internal/model"
)

func TestNewSQLite_ValidPath(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "visibility.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing", Domain: "acmeplumbing.com"}))
	require.NoError(t, s.Close())

	s2, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s2.Close() //nolint:errcheck

	got, err := s2.GetBrand(ctx, "brand-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", got.Name)
}

func TestSQLite_PipelineLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := &model.Pipeline{
		BrandID: "brand-1",
		Profile: model.ProfileLite,
		Stages:  []model.JobType{model.JobTypeOnboard, model.JobTypeSample},
	}
	require.NoError(t, s.CreatePipeline(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.PipelineStatusRunning, p.Status)

	got, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.BrandID, got.BrandID)
	assert.Equal(t, model.ProfileLite, got.Profile)
	assert.Equal(t, []model.JobType{model.JobTypeOnboard, model.JobTypeSample}, got.Stages)

	require.NoError(t, s.SetPipelineStatus(ctx, p.ID, model.PipelineStatusCancelled))
	got, err = s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusCancelled, got.Status)

	err = s.SetPipelineStatus(ctx, "nonexistent", model.PipelineStatusFailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_CountPipelinesByStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, status := range []model.PipelineStatus{
		model.PipelineStatusRunning,
		model.PipelineStatusComplete,
		model.PipelineStatusComplete,
		model.PipelineStatusFailed,
	} {
		p := &model.Pipeline{BrandID: "brand-1", Profile: model.ProfileLite, Stages: []model.JobType{model.JobTypeOnboard}}
		require.NoError(t, s.CreatePipeline(ctx, p))
		if status != model.PipelineStatusRunning {
			require.NoError(t, s.SetPipelineStatus(ctx, p.ID, status))
		}
	}

	counts, err := s.CountPipelinesByStatus(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.PipelineStatusRunning])
	assert.Equal(t, 2, counts[model.PipelineStatusComplete])
	assert.Equal(t, 1, counts[model.PipelineStatusFailed])

	counts, err = s.CountPipelinesByStatus(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestSQLite_BrandUpsert(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	b := &model.Brand{
		Name:             "Acme Plumbing",
		Domain:           "acmeplumbing.com",
		ServiceType:      "plumbing",
		Location:         "Austin, TX",
		Competitors:      []string{"Budget Pipes", "Drain Kings"},
		MonthlyBudgetUSD: 500,
	}
	require.NoError(t, s.UpsertBrand(ctx, b))
	assert.NotEmpty(t, b.ID)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := s.GetBrand(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", got.Name)
	assert.Equal(t, []string{"Budget Pipes", "Drain Kings"}, got.Competitors)
	assert.Equal(t, 500.0, got.MonthlyBudgetUSD)

	// Upsert with the same ID updates in place.
	b.Name = "Acme Plumbing & Drain"
	b.Competitors = nil
	require.NoError(t, s.UpsertBrand(ctx, b))

	got, err = s.GetBrand(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing & Drain", got.Name)
	assert.Nil(t, got.Competitors)

	brands, err := s.ListBrands(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}

func TestSQLite_ListBrands_OrdersByName(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, name := range []string{"Zeta Widgets", "Acme Plumbing", "Lawn Kings"} {
		require.NoError(t, s.UpsertBrand(ctx, &model.Brand{Name: name, Domain: "example.com"}))
	}

	brands, err := s.ListBrands(ctx, 2)
	require.NoError(t, err)
	require.Len(t, brands, 2)
	assert.Equal(t, "Acme Plumbing", brands[0].Name)
	assert.Equal(t, "Lawn Kings", brands[1].Name)
}

func TestSQLite_ClaimsReplaceAndUpdate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing", Domain: "acmeplumbing.com"}))

	require.NoError(t, s.ReplaceClaims(ctx, "brand-1", []model.BrandClaim{
		{Text: "Licensed and insured.", Confidence: 0.5},
		{Text: "Family owned since 1998.", Confidence: 0.9},
	}))

	claims, err := s.ListClaims(ctx, "brand-1", 10)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	// Highest confidence first.
	assert.Equal(t, "Family owned since 1998.", claims[0].Text)
	assert.Equal(t, 0.9, claims[0].Confidence)

	require.NoError(t, s.UpdateClaimText(ctx, claims[0].ID, "Family owned and operated since 1998."))
	claims, err = s.ListClaims(ctx, "brand-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "Family owned and operated since 1998.", claims[0].Text)

	// Replace wipes the previous set.
	require.NoError(t, s.ReplaceClaims(ctx, "brand-1", []model.BrandClaim{
		{Text: "Serves greater Austin.", Confidence: 0.7},
	}))
	claims, err = s.ListClaims(ctx, "brand-1", 10)
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Serves greater Austin.", claims[0].Text)

	err = s.UpdateClaimText(ctx, "nonexistent", "text")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ContentAndChunks(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing", Domain: "acmeplumbing.com"}))

	items := []model.BrandContent{
		{Title: "Services", Body: "We repair leaks.", URL: "https://acmeplumbing.com/services"},
		{Title: "About", Body: "Family owned."},
	}
	require.NoError(t, s.ReplaceContent(ctx, "brand-1", items))

	content, err := s.ListContent(ctx, "brand-1", 10)
	require.NoError(t, err)
	require.Len(t, content, 2)

	require.NoError(t, s.ReplaceChunks(ctx, content[0].ID, []model.BrandChunk{
		{BrandID: "brand-1", Seq: 0, Text: "We repair"},
		{BrandID: "brand-1", Seq: 1, Text: "leaks."},
	}))

	chunks, err := s.ListChunks(ctx, "brand-1", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, content[0].ID, chunks[0].ContentID)

	require.NoError(t, s.UpdateContentBody(ctx, content[0].ID, "We repair leaks fast."))
	content, err = s.ListContent(ctx, "brand-1", 10)
	require.NoError(t, err)
	assert.Equal(t, "We repair leaks fast.", content[0].Body)

	// Replacing content invalidates the chunks cut from it.
	require.NoError(t, s.ReplaceContent(ctx, "brand-1", []model.BrandContent{
		{Title: "Fresh", Body: "New body."},
	}))
	chunks, err = s.ListChunks(ctx, "brand-1", 10)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	err = s.UpdateContentBody(ctx, "nonexistent", "body")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_SampleResultsAndSpend(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	results := []model.SampleResult{
		{BrandID: "brand-1", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "best_local", ResponseText: "Acme leads.", TotalTokens: 100, CostUSD: 0.002},
		{BrandID: "brand-1", Model: "claude-haiku-4-5-20251001", Provider: "anthropic", PromptKey: "best_local", Error: "timeout"},
		{BrandID: "brand-1", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "top_rated", CostUSD: 0.01, CreatedAt: now.Add(-25 * time.Hour)},
		{BrandID: "brand-2", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "best_local", CostUSD: 0.5},
	}
	n, err := s.InsertSampleResults(ctx, results)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	recent, err := s.ListSampleResults(ctx, "brand-1", now.Add(-24*time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, recent, 2, "the backdated row falls outside the window")

	all, err := s.ListSampleResults(ctx, "brand-1", time.Time{}, 100)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.True(t, !all[0].CreatedAt.Before(all[1].CreatedAt))

	limited, err := s.ListSampleResults(ctx, "brand-1", time.Time{}, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	spend24h, err := s.TrailingSpend(ctx, "brand-1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.002, spend24h, 1e-9)

	spend30d, err := s.TrailingSpend(ctx, "brand-1", now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.012, spend30d, 1e-9)

	empty, err := s.TrailingSpend(ctx, "brand-3", time.Time{})
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestSQLite_ScoresLatestAndList(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	older := &model.ScoreComponents{BrandID: "brand-1", TotalScore: 51, SampleCount: 24, CalculatedAt: now.Add(-24 * time.Hour)}
	require.NoError(t, s.InsertScore(ctx, older))

	newer := &model.ScoreComponents{BrandID: "brand-1", PromptSOV: 64.5, TotalScore: 58, SampleCount: 24, CalculatedAt: now}
	require.NoError(t, s.InsertScore(ctx, newer))
	assert.NotEmpty(t, newer.ID)
	assert.Equal(t, model.EngineScopeAll, newer.EngineScope, "blank scope defaults to all")

	latest, err := s.LatestScore(ctx, "brand-1")
	require.NoError(t, err)
	assert.Equal(t, 58, latest.TotalScore)
	assert.InDelta(t, 64.5, latest.PromptSOV, 0.001)

	scores, err := s.ListScores(ctx, "brand-1", 10)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 58, scores[0].TotalScore)
	assert.Equal(t, 51, scores[1].TotalScore)

	_, err = s.LatestScore(ctx, "brand-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_ReportLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	r := &model.Report{BrandID: "brand-1", JobID: "job-1"}
	require.NoError(t, s.CreateReport(ctx, r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, model.ReportStatusGenerating, r.Status)

	r.ScoreID = "score-1"
	r.Insights = &model.ReportInsights{
		TotalScore:         58,
		StrongestComponent: model.ComponentGenerativeAppearance,
		StrongestValue:     80,
		WeakestComponent:   model.ComponentAIConversions,
		WeakestValue:       5,
		MentionRate:        0.75,
		SampleCount:        24,
	}
	r.Recommendations = []model.Recommendation{
		{Priority: "high", Title: "Earn citations", Detail: "Pitch local directories."},
	}
	r.StructuredPath = "reports/brand-1/report.json"
	r.NarrativePath = "reports/brand-1/report.md"
	r.SizeBytes = 2048
	r.PageEstimate = 3
	require.NoError(t, s.FinishReport(ctx, r))

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusComplete, got.Status)
	assert.Equal(t, "score-1", got.ScoreID)
	require.NotNil(t, got.Insights)
	assert.Equal(t, 58, got.Insights.TotalScore)
	assert.Equal(t, model.ComponentGenerativeAppearance, got.Insights.StrongestComponent)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "Earn citations", got.Recommendations[0].Title)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.NotNil(t, got.CompletedAt)
}

func TestSQLite_FailReport(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	r := &model.Report{BrandID: "brand-1", JobID: "job-1"}
	require.NoError(t, s.CreateReport(ctx, r))
	require.NoError(t, s.FailReport(ctx, r.ID, "no score available"))

	got, err := s.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFailed, got.Status)
	assert.Equal(t, "no score available", got.Error)
	assert.NotNil(t, got.CompletedAt)

	err = s.FailReport(ctx, "nonexistent", "boom")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_GetReportNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetReport(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}
