// Package pipeline runs brand analyses as chains of durable stage
// jobs. The coordinator starts, inspects and cancels runs; workers
// claim stage jobs from the store, execute them, and queue each
// successor as its predecessor completes. Coordination happens
// entirely through the job store, never in process memory, so any
// number of worker processes can share one queue.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

// liteChain skips the context-preparation stages; everything else runs
// the full chain.
var (
	liteChain = []model.JobType{
		model.JobTypeOnboard,
		model.JobTypeSample,
		model.JobTypeScore,
		model.JobTypeAssembleReport,
	}
	fullChain = []model.JobType{
		model.JobTypeOnboard,
		model.JobTypeNormalize,
		model.JobTypeEmbed,
		model.JobTypeSample,
		model.JobTypeScore,
		model.JobTypeAssembleReport,
	}
)

// StageChain returns the planned stage sequence for a profile.
func StageChain(profile model.Profile) []model.JobType {
	if profile == model.ProfileLite {
		return append([]model.JobType(nil), liteChain...)
	}
	return append([]model.JobType(nil), fullChain...)
}

// stageKey is the idempotency key for one stage of one pipeline: a
// retried or double-advanced enqueue lands on the existing job.
func stageKey(pipelineID string, stage model.JobType) string {
	return fmt.Sprintf("pipeline:%s:stage:%s", pipelineID, stage)
}

// Coordinator is the programmatic boundary for pipeline runs.
type Coordinator struct {
	store store.Store
}

// NewCoordinator builds a coordinator over the given store.
func NewCoordinator(st store.Store) *Coordinator {
	return &Coordinator{store: st}
}

// StartPipeline validates the brand and profile, records the run, and
// queues its first stage. Later stages are created lazily as each
// predecessor completes.
func (c *Coordinator) StartPipeline(ctx context.Context, brandID string, profile model.Profile, opts *model.SamplingOptions) (*model.Pipeline, *model.Job, error) {
	if !profile.Valid() {
		return nil, nil, eris.Errorf("pipeline: unknown profile %q", profile)
	}
	brand, err := c.store.GetBrand(ctx, brandID)
	if err != nil {
		return nil, nil, err
	}

	p := &model.Pipeline{
		BrandID: brand.ID,
		Profile: profile,
		Stages:  StageChain(profile),
		Status:  model.PipelineStatusRunning,
	}
	if err := c.store.CreatePipeline(ctx, p); err != nil {
		return nil, nil, err
	}

	payload, err := json.Marshal(model.StagePayload{Profile: profile, Options: opts})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: marshal stage payload")
	}
	first := p.Stages[0]
	job, err := c.store.CreateJob(ctx, model.NewJob{
		PipelineID:     p.ID,
		BrandID:        brand.ID,
		Type:           first,
		Payload:        payload,
		IdempotencyKey: stageKey(p.ID, first),
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("pipeline started",
		zap.String("pipeline_id", p.ID),
		zap.String("brand_id", brand.ID),
		zap.String("profile", string(profile)),
		zap.String("first_job_id", job.ID),
	)
	return p, job, nil
}

// Status assembles the caller-facing view: overall state, coarse
// progress, and one entry per planned stage. Stages the chain has not
// reached yet report as pending.
func (c *Coordinator) Status(ctx context.Context, pipelineID string) (*model.PipelineStatusView, error) {
	p, err := c.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	jobs, err := c.store.ListJobsByPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	byType := make(map[model.JobType]*model.Job, len(jobs))
	for i := range jobs {
		byType[jobs[i].Type] = &jobs[i]
	}

	view := &model.PipelineStatusView{
		PipelineID: p.ID,
		BrandID:    p.BrandID,
		Profile:    p.Profile,
		Status:     p.Status,
		Stages:     make([]model.StageStatus, 0, len(p.Stages)),
	}
	done := 0
	for _, stage := range p.Stages {
		st := model.StageStatus{Type: stage, Status: "pending"}
		if j, ok := byType[stage]; ok {
			st.JobID = j.ID
			st.Status = string(j.Status)
			st.Error = j.Error
			st.StartedAt = j.StartedAt
			st.CompletedAt = j.CompletedAt
			if j.Status == model.JobStatusComplete {
				done++
			}
		}
		view.Stages = append(view.Stages, st)
	}
	if len(p.Stages) > 0 {
		view.ProgressPct = done * 100 / len(p.Stages)
	}
	return view, nil
}

// Cancel stops a running pipeline: the row flips to cancelled and its
// queued jobs are cancelled. A stage already running finishes, but the
// worker never queues its successor. Cancelling a finished or already
// cancelled pipeline is a no-op.
func (c *Coordinator) Cancel(ctx context.Context, pipelineID string) error {
	p, err := c.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return err
	}
	if p.Status != model.PipelineStatusRunning {
		return nil
	}

	// Status first: a running stage that completes mid-cancel must see
	// the cancelled pipeline before it tries to advance the chain.
	if err := c.store.SetPipelineStatus(ctx, pipelineID, model.PipelineStatusCancelled); err != nil {
		return err
	}
	n, err := c.store.CancelPipelineJobs(ctx, pipelineID)
	if err != nil {
		return err
	}

	zap.L().Info("pipeline cancelled",
		zap.String("pipeline_id", pipelineID),
		zap.Int("jobs_cancelled", n),
	)
	return nil
}
