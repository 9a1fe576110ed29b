package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCollector_Collect(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing", Domain: "acmeplumbing.com"}))
	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-2", Name: "Drain Kings", Domain: "drainkings.com"}))

	// One job finishes, one fails terminally, one stays queued.
	for i := 0; i < 2; i++ {
		_, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeSample, MaxRetries: 1})
		require.NoError(t, err)
	}
	_, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeScore, MaxRetries: 1})
	require.NoError(t, err)

	j1, err := s.ClaimNextReadyJob(ctx, "w1", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.CompleteJob(ctx, j1.ID, nil))
	j2, err := s.ClaimNextReadyJob(ctx, "w1", nil, time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.FailJob(ctx, j2.ID, "provider down"))

	p1 := &model.Pipeline{BrandID: "brand-1", Profile: model.ProfileLite, Status: model.PipelineStatusRunning}
	require.NoError(t, s.CreatePipeline(ctx, p1))
	p2 := &model.Pipeline{BrandID: "brand-1", Profile: model.ProfileLite, Status: model.PipelineStatusRunning}
	require.NoError(t, s.CreatePipeline(ctx, p2))
	require.NoError(t, s.SetPipelineStatus(ctx, p2.ID, model.PipelineStatusComplete))
	p3 := &model.Pipeline{BrandID: "brand-2", Profile: model.ProfileLite, Status: model.PipelineStatusRunning}
	require.NoError(t, s.CreatePipeline(ctx, p3))
	require.NoError(t, s.SetPipelineStatus(ctx, p3.ID, model.PipelineStatusFailed))

	// Spend: one fresh row per brand plus an older row inside the 30d
	// window but outside 24h.
	now := time.Now().UTC()
	_, err = s.InsertSampleResults(ctx, []model.SampleResult{
		{BrandID: "brand-1", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "best_service", CostUSD: 0.004},
		{BrandID: "brand-1", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "best_service", CostUSD: 0.01, CreatedAt: now.Add(-25 * time.Hour)},
		{BrandID: "brand-2", Model: "gpt-4o-mini", Provider: "openai", PromptKey: "best_service", CostUSD: 0.001},
	})
	require.NoError(t, err)

	c := NewCollector(s)
	snap, err := c.Collect(ctx, 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.JobsQueued)
	assert.Equal(t, 0, snap.JobsRunning)
	assert.Equal(t, 1, snap.JobsComplete)
	assert.Equal(t, 1, snap.JobsFailed)
	assert.InDelta(t, 0.5, snap.JobFailRate, 1e-9)

	assert.Equal(t, 1, snap.PipelinesRunning)
	assert.Equal(t, 1, snap.PipelinesComplete)
	assert.Equal(t, 1, snap.PipelinesFailed)
	assert.InDelta(t, 0.5, snap.PipelineFailRate, 1e-9)

	assert.Equal(t, 2, snap.Brands)
	assert.InDelta(t, 0.005, snap.Spend24hUSD, 1e-9)
	assert.InDelta(t, 0.015, snap.Spend30dUSD, 1e-9)

	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_Collect_EmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	snap, err := NewCollector(s).Collect(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 24, snap.LookbackHours)
	assert.Zero(t, snap.JobsQueued)
	assert.Zero(t, snap.JobFailRate)
	assert.Zero(t, snap.PipelineFailRate)
	assert.Zero(t, snap.Spend30dUSD)
}
