package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

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

func seedBrand(t *testing.T, s store.Store) *model.Brand {
	t.Helper()
	b := &model.Brand{
		ID:          "brand-1",
		Name:        "Acme Plumbing",
		Domain:      "acmeplumbing.com",
		ServiceType: "plumbing",
		Location:    "Austin, TX",
		Competitors: []string{"Budget Pipes", "Drain Kings"},
	}
	require.NoError(t, s.UpsertBrand(context.Background(), b))
	return b
}

func TestStageChain(t *testing.T) {
	lite := StageChain(model.ProfileLite)
	assert.Equal(t, []model.JobType{
		model.JobTypeOnboard, model.JobTypeSample,
		model.JobTypeScore, model.JobTypeAssembleReport,
	}, lite)

	for _, profile := range []model.Profile{model.ProfileStandard, model.ProfileFull, model.ProfileCustom} {
		assert.Equal(t, []model.JobType{
			model.JobTypeOnboard, model.JobTypeNormalize, model.JobTypeEmbed,
			model.JobTypeSample, model.JobTypeScore, model.JobTypeAssembleReport,
		}, StageChain(profile), string(profile))
	}

	// Callers get their own copy.
	lite[0] = model.JobTypeScore
	assert.Equal(t, model.JobTypeOnboard, StageChain(model.ProfileLite)[0])
}

func TestStartPipeline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	opts := &model.SamplingOptions{ParaphraseCount: 1}
	p, first, err := co.StartPipeline(ctx, "brand-1", model.ProfileStandard, opts)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, model.PipelineStatusRunning, p.Status)
	assert.Len(t, p.Stages, 6)

	assert.Equal(t, model.JobTypeOnboard, first.Type)
	assert.Equal(t, p.ID, first.PipelineID)
	assert.Equal(t, "pipeline:"+p.ID+":stage:onboard", first.IdempotencyKey)

	var payload model.StagePayload
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.Equal(t, model.ProfileStandard, payload.Profile)
	require.NotNil(t, payload.Options)
	assert.Equal(t, 1, payload.Options.ParaphraseCount)

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Stages, stored.Stages)
}

func TestStartPipeline_UnknownProfile(t *testing.T) {
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	_, _, err := co.StartPipeline(context.Background(), "brand-1", model.Profile("turbo"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown profile")
}

func TestStartPipeline_MissingBrand(t *testing.T) {
	s := newTestStore(t)
	co := NewCoordinator(s)

	_, _, err := co.StartPipeline(context.Background(), "ghost", model.ProfileLite, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatus_FreshPipeline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	p, first, err := co.StartPipeline(ctx, "brand-1", model.ProfileLite, nil)
	require.NoError(t, err)

	view, err := co.Status(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, view.PipelineID)
	assert.Equal(t, model.PipelineStatusRunning, view.Status)
	assert.Equal(t, 0, view.ProgressPct)
	require.Len(t, view.Stages, 4)

	assert.Equal(t, model.JobTypeOnboard, view.Stages[0].Type)
	assert.Equal(t, string(model.JobStatusQueued), view.Stages[0].Status)
	assert.Equal(t, first.ID, view.Stages[0].JobID)
	for _, st := range view.Stages[1:] {
		assert.Equal(t, "pending", st.Status)
		assert.Empty(t, st.JobID)
	}
}

func TestStatus_MissingPipeline(t *testing.T) {
	s := newTestStore(t)
	co := NewCoordinator(s)

	_, err := co.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCancel_QueuedPipeline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	p, first, err := co.StartPipeline(ctx, "brand-1", model.ProfileLite, nil)
	require.NoError(t, err)
	require.NoError(t, co.Cancel(ctx, p.ID))

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusCancelled, stored.Status)

	job, err := s.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, job.Status)

	view, err := co.Status(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.JobStatusCancelled), view.Stages[0].Status)

	// Cancelling again is a no-op.
	require.NoError(t, co.Cancel(ctx, p.ID))
}
