package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/llm"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/report"
	"github.com/promptwatch/visibility/internal/sampling"
	"github.com/promptwatch/visibility/internal/scoring"
	"github.com/promptwatch/visibility/internal/store"
)

// fakeInvoker answers every request with the same mention-bearing text
// and invokes an optional hook per call.
type fakeInvoker struct {
	mu     sync.Mutex
	calls  int
	onCall func(n int, req llm.InvokeRequest)
}

func (f *fakeInvoker) Invoke(_ context.Context, req llm.InvokeRequest) (*llm.InvokeResponse, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(n, req)
	}
	return &llm.InvokeResponse{
		Content:     "Acme Plumbing is a strong local choice. See https://www.forbes.com/home-services for context.",
		Usage:       llm.Usage{Input: 120, Output: 60, Total: 180},
		Cost:        llm.Cost{Input: 0.0012, Output: 0.0018, Total: 0.003},
		ExecutionMs: 4,
	}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestWorker(t *testing.T, s store.Store, inv llm.Invoker) *Worker {
	t.Helper()
	engines := Engines{
		Sampler: sampling.NewEngine(s, inv, llm.DefaultCatalog(), config.SamplingConfig{
			Concurrency: 4,
			MaxTokens:   512,
			Temperature: 0.7,
			TimeoutSecs: 30,
		}),
		Scorer:   scoring.NewEngine(s, config.ScoringConfig{LookbackDays: 30, MaxResults: 500}),
		Reporter: report.NewAssembler(s, report.NewFileStore(t.TempDir())),
	}
	return NewWorker("w-test", s, config.WorkerConfig{PollIntervalMs: 10, LeaseMinutes: 5}, engines)
}

// drainQueue runs the worker until the queue has nothing ready and
// returns how many jobs were handled.
func drainQueue(t *testing.T, ctx context.Context, w *Worker) int {
	t.Helper()
	handled := 0
	for i := 0; i < 25; i++ {
		ok, err := w.RunOnce(ctx)
		require.NoError(t, err)
		if !ok {
			return handled
		}
		handled++
	}
	t.Fatal("queue did not drain")
	return handled
}

func jobsByType(t *testing.T, s store.Store, pipelineID string) map[model.JobType]model.Job {
	t.Helper()
	jobs, err := s.ListJobsByPipeline(context.Background(), pipelineID)
	require.NoError(t, err)
	out := make(map[model.JobType]model.Job, len(jobs))
	for _, j := range jobs {
		out[j.Type] = j
	}
	return out
}

func TestWorker_RunsLitePipelineToCompletion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	p, _, err := co.StartPipeline(ctx, "brand-1", model.ProfileLite, nil)
	require.NoError(t, err)

	inv := &fakeInvoker{}
	w := newTestWorker(t, s, inv)
	handled := drainQueue(t, ctx, w)
	assert.Equal(t, 4, handled)

	// 2 models x 2 prompts x 2 paraphrases.
	assert.Equal(t, 8, inv.callCount())

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusComplete, stored.Status)

	view, err := co.Status(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, view.ProgressPct)
	for _, st := range view.Stages {
		assert.Equal(t, string(model.JobStatusComplete), st.Status, string(st.Type))
	}

	byType := jobsByType(t, s, p.ID)
	require.Len(t, byType, 4)

	// Each successor depends on its predecessor and carries the same
	// stage payload.
	sampleJob := byType[model.JobTypeSample]
	assert.Equal(t, []string{byType[model.JobTypeOnboard].ID}, sampleJob.DependsOn)
	assert.Equal(t, byType[model.JobTypeOnboard].Payload, sampleJob.Payload)

	var sum model.SamplingSummary
	require.NoError(t, json.Unmarshal(sampleJob.Result, &sum))
	assert.Equal(t, 8, sum.Requests)
	assert.Equal(t, 8, sum.Succeeded)
	assert.Equal(t, 0, sum.Failed)

	rows, err := s.ListSampleResults(ctx, "brand-1", time.Time{}, 100)
	require.NoError(t, err)
	assert.Len(t, rows, 8)

	score, err := s.LatestScore(ctx, "brand-1")
	require.NoError(t, err)
	assert.Equal(t, 8, score.SampleCount)
	assert.Equal(t, 100.0, score.GenerativeAppearance)

	var rep model.ReportSummary
	require.NoError(t, json.Unmarshal(byType[model.JobTypeAssembleReport].Result, &rep))
	require.NotEmpty(t, rep.ReportID)
	row, err := s.GetReport(ctx, rep.ReportID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusComplete, row.Status)
	assert.Equal(t, score.TotalScore, rep.TotalScore)
}

func TestWorker_CancelDuringRunningStage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)
	co := NewCoordinator(s)

	p, _, err := co.StartPipeline(ctx, "brand-1", model.ProfileLite, nil)
	require.NoError(t, err)

	inv := &fakeInvoker{}
	inv.onCall = func(n int, _ llm.InvokeRequest) {
		if n == 1 {
			assert.NoError(t, co.Cancel(ctx, p.ID))
		}
	}
	w := newTestWorker(t, s, inv)

	// Onboard and sample run; the sample stage finishes normally but
	// must not queue its successor.
	handled := drainQueue(t, ctx, w)
	assert.Equal(t, 2, handled)

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusCancelled, stored.Status)

	byType := jobsByType(t, s, p.ID)
	require.Len(t, byType, 2)
	assert.Equal(t, model.JobStatusComplete, byType[model.JobTypeSample].Status)

	// Sampled rows are kept even though the run was cancelled.
	rows, err := s.ListSampleResults(ctx, "brand-1", time.Time{}, 100)
	require.NoError(t, err)
	assert.Len(t, rows, 8)

	view, err := co.Status(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, view.ProgressPct)
	assert.Equal(t, "pending", view.Stages[2].Status)
	assert.Equal(t, "pending", view.Stages[3].Status)
}

func TestWorker_TerminalFailureMarksPipelineFailed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing"}))

	p := &model.Pipeline{
		BrandID: "brand-1",
		Profile: model.ProfileLite,
		Stages:  StageChain(model.ProfileLite),
		Status:  model.PipelineStatusRunning,
	}
	require.NoError(t, s.CreatePipeline(ctx, p))
	job, err := s.CreateJob(ctx, model.NewJob{
		PipelineID:     p.ID,
		BrandID:        "brand-1",
		Type:           model.JobTypeOnboard,
		MaxRetries:     1,
		IdempotencyKey: stageKey(p.ID, model.JobTypeOnboard),
	})
	require.NoError(t, err)

	w := newTestWorker(t, s, &fakeInvoker{})
	handled := drainQueue(t, ctx, w)
	assert.Equal(t, 1, handled)

	failed, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "missing a name or domain")

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusFailed, stored.Status)
}

func TestWorker_RetryableFailureLeavesPipelineRunning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertBrand(ctx, &model.Brand{ID: "brand-1", Name: "Acme Plumbing"}))
	co := NewCoordinator(s)

	p, first, err := co.StartPipeline(ctx, "brand-1", model.ProfileLite, nil)
	require.NoError(t, err)

	w := newTestWorker(t, s, &fakeInvoker{})
	handled := drainQueue(t, ctx, w)
	assert.Equal(t, 1, handled)

	job, err := s.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.NextRunAt.After(time.Now()))

	stored, err := s.GetPipeline(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PipelineStatusRunning, stored.Status)
}

func TestWorker_StandaloneJobWithoutEngineFails(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)

	job, err := s.CreateJob(ctx, model.NewJob{
		BrandID:    "brand-1",
		Type:       model.JobTypeSample,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	w := NewWorker("w-bare", s, config.WorkerConfig{}, Engines{})
	handled := drainQueue(t, ctx, w)
	assert.Equal(t, 1, handled)

	failed, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "no sampler configured")
}

func TestWorker_TypeFilterSkipsOtherJobs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedBrand(t, s)

	_, err := s.CreateJob(ctx, model.NewJob{BrandID: "brand-1", Type: model.JobTypeOnboard})
	require.NoError(t, err)

	w := NewWorker("w-score-only", s, config.WorkerConfig{Types: []string{"score"}}, Engines{})
	ok, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextStage(t *testing.T) {
	chain := []model.JobType{model.JobTypeOnboard, model.JobTypeSample, model.JobTypeScore}

	tests := []struct {
		name    string
		current model.JobType
		want    model.JobType
		ok      bool
	}{
		{"first", model.JobTypeOnboard, model.JobTypeSample, true},
		{"middle", model.JobTypeSample, model.JobTypeScore, true},
		{"last", model.JobTypeScore, "", true},
		{"absent", model.JobTypeEmbed, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextStage(chain, tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
