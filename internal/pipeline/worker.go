package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/report"
	"github.com/promptwatch/visibility/internal/sampling"
	"github.com/promptwatch/visibility/internal/scoring"
	"github.com/promptwatch/visibility/internal/store"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultReapInterval = time.Minute
)

// Engines bundles the stage executors a worker dispatches to. The
// onboard, normalize and embed stages run against the store alone and
// need no engine.
type Engines struct {
	Sampler  *sampling.Engine
	Scorer   *scoring.Engine
	Reporter *report.Assembler
}

// Pool runs a set of workers over one store plus a shared lease
// reaper.
type Pool struct {
	store   store.Store
	engines Engines
	count   int
	types   []model.JobType
	poll    time.Duration
	lease   time.Duration
	reap    time.Duration
}

// NewPool sizes a worker pool from config. Zero or out-of-range values
// fall back to the defaults.
func NewPool(st store.Store, cfg config.WorkerConfig, engines Engines) *Pool {
	p := &Pool{
		store:   st,
		engines: engines,
		count:   cfg.Count,
		poll:    time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		lease:   time.Duration(cfg.LeaseMinutes) * time.Minute,
		reap:    time.Duration(cfg.ReapIntervalSecs) * time.Second,
	}
	if p.count < 1 {
		p.count = 1
	}
	if p.poll <= 0 {
		p.poll = defaultPollInterval
	}
	if p.lease <= 0 {
		p.lease = store.DefaultLeaseDuration
	}
	if p.reap <= 0 {
		p.reap = defaultReapInterval
	}
	for _, t := range cfg.Types {
		p.types = append(p.types, model.JobType(t))
	}
	return p
}

// Run blocks until ctx is cancelled, running count workers and the
// lease reaper.
func (p *Pool) Run(ctx context.Context) error {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.count; i++ {
		w := &Worker{
			id:      fmt.Sprintf("%s-%d-%s", host, i, uuid.New().String()[:8]),
			store:   p.store,
			engines: p.engines,
			types:   p.types,
			poll:    p.poll,
			lease:   p.lease,
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error { return p.reapLoop(gctx) })
	return g.Wait()
}

// reapLoop periodically requeues or fails jobs whose worker lease has
// expired.
func (p *Pool) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.reap)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.store.ReapExpiredLeases(ctx)
			if err != nil {
				zap.L().Warn("lease reap failed", zap.Error(err))
				continue
			}
			if n > 0 {
				zap.L().Warn("reaped expired job leases", zap.Int("count", n))
			}
		}
	}
}

// Worker claims ready jobs one at a time and executes them. Multiple
// workers share a queue safely; the store's claim operation is the
// only coordination point.
type Worker struct {
	id      string
	store   store.Store
	engines Engines
	types   []model.JobType
	poll    time.Duration
	lease   time.Duration
}

// NewWorker builds a single worker. Most callers want Pool; tests and
// embedded use drive one worker directly.
func NewWorker(id string, st store.Store, cfg config.WorkerConfig, engines Engines) *Worker {
	w := &Worker{
		id:      id,
		store:   st,
		engines: engines,
		poll:    time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		lease:   time.Duration(cfg.LeaseMinutes) * time.Minute,
	}
	if w.poll <= 0 {
		w.poll = defaultPollInterval
	}
	if w.lease <= 0 {
		w.lease = store.DefaultLeaseDuration
	}
	for _, t := range cfg.Types {
		w.types = append(w.types, model.JobType(t))
	}
	return w
}

// Run claims and executes jobs until ctx is cancelled. An empty queue
// is polled; a non-empty one is drained without pausing.
func (w *Worker) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("worker_id", w.id))
	log.Info("worker started", zap.Duration("poll", w.poll))

	for {
		if ctx.Err() != nil {
			log.Info("worker stopped")
			return nil
		}

		job, err := w.store.ClaimNextReadyJob(ctx, w.id, w.types, w.lease)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopped")
				return nil
			}
			log.Warn("claim failed", zap.Error(err))
			w.pause(ctx)
			continue
		}
		if job == nil {
			w.pause(ctx)
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.poll):
	}
}

// RunOnce claims at most one ready job and executes it. Reports
// whether a job was handled.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextReadyJob(ctx, w.id, w.types, w.lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

// handle executes one claimed job, records its outcome, and advances
// the owning pipeline's chain.
func (w *Worker) handle(ctx context.Context, job *model.Job) {
	log := zap.L().With(
		zap.String("worker_id", w.id),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
		zap.String("brand_id", job.BrandID),
	)
	log.Info("job claimed", zap.Int("retry", job.RetryCount))
	start := time.Now()

	result, err := w.execute(ctx, job)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("job failed", zap.Int64("duration_ms", duration), zap.Error(err))
		if ferr := w.store.FailJob(ctx, job.ID, err.Error()); ferr != nil {
			log.Warn("record job failure", zap.Error(ferr))
			return
		}
		w.noteTerminalFailure(ctx, job, log)
		return
	}

	if cerr := w.store.CompleteJob(ctx, job.ID, result); cerr != nil {
		log.Warn("record job completion", zap.Error(cerr))
		return
	}
	log.Info("job complete", zap.Int64("duration_ms", duration))
	w.advanceChain(ctx, job, log)
}

// execute dispatches a claimed job to its stage implementation and
// marshals the typed result into the job row's result payload.
func (w *Worker) execute(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	switch job.Type {
	case model.JobTypeOnboard:
		return marshalResult(runOnboard(ctx, w.store, job))
	case model.JobTypeNormalize:
		return marshalResult(runNormalize(ctx, w.store, job))
	case model.JobTypeEmbed:
		return marshalResult(runEmbed(ctx, w.store, job))
	case model.JobTypeSample:
		if w.engines.Sampler == nil {
			return nil, eris.Errorf("pipeline: no sampler configured for job %s", job.ID)
		}
		return marshalResult(w.engines.Sampler.Run(ctx, job, decodePayload(job)))
	case model.JobTypeScore:
		if w.engines.Scorer == nil {
			return nil, eris.Errorf("pipeline: no scorer configured for job %s", job.ID)
		}
		return marshalResult(w.engines.Scorer.Run(ctx, job))
	case model.JobTypeAssembleReport:
		if w.engines.Reporter == nil {
			return nil, eris.Errorf("pipeline: no reporter configured for job %s", job.ID)
		}
		return marshalResult(w.engines.Reporter.Run(ctx, job))
	default:
		return nil, eris.Errorf("pipeline: unknown job type %q", job.Type)
	}
}

func marshalResult(v any, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	out, merr := json.Marshal(v)
	if merr != nil {
		return nil, eris.Wrap(merr, "pipeline: marshal job result")
	}
	return out, nil
}

// decodePayload reads the stage payload, tolerating jobs enqueued
// without one.
func decodePayload(job *model.Job) model.StagePayload {
	var p model.StagePayload
	if len(job.Payload) == 0 {
		return p
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		zap.L().Warn("bad stage payload",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
	return p
}

// advanceChain queues the finished job's successor stage while the
// pipeline is still live, or marks the pipeline complete after its
// final stage. The stage idempotency key makes a double advance after
// a reclaimed lease land on the existing job.
func (w *Worker) advanceChain(ctx context.Context, job *model.Job, log *zap.Logger) {
	if job.PipelineID == "" {
		return
	}
	p, err := w.store.GetPipeline(ctx, job.PipelineID)
	if err != nil {
		log.Warn("load pipeline for chain advance", zap.Error(err))
		return
	}
	if p.Status != model.PipelineStatusRunning {
		log.Info("chain not advanced", zap.String("pipeline_status", string(p.Status)))
		return
	}

	next, ok := nextStage(p.Stages, job.Type)
	if !ok {
		log.Warn("job type missing from pipeline chain",
			zap.String("pipeline_id", p.ID))
		return
	}
	if next == "" {
		if err := w.store.SetPipelineStatus(ctx, p.ID, model.PipelineStatusComplete); err != nil {
			log.Warn("mark pipeline complete", zap.Error(err))
			return
		}
		log.Info("pipeline complete", zap.String("pipeline_id", p.ID))
		return
	}

	created, err := w.store.CreateJob(ctx, model.NewJob{
		PipelineID:     p.ID,
		BrandID:        job.BrandID,
		Type:           next,
		Payload:        job.Payload,
		DependsOn:      []string{job.ID},
		IdempotencyKey: stageKey(p.ID, next),
	})
	if err != nil {
		log.Warn("queue next stage", zap.String("next_stage", string(next)), zap.Error(err))
		return
	}
	log.Info("next stage queued",
		zap.String("next_stage", string(next)),
		zap.String("next_job_id", created.ID))
}

// noteTerminalFailure marks the owning pipeline failed once its job is
// out of retries. A requeued job leaves the pipeline running, and a
// pipeline already cancelled stays cancelled.
func (w *Worker) noteTerminalFailure(ctx context.Context, job *model.Job, log *zap.Logger) {
	if job.PipelineID == "" {
		return
	}
	j, err := w.store.GetJob(ctx, job.ID)
	if err != nil {
		log.Warn("load job after failure", zap.Error(err))
		return
	}
	if j.Status != model.JobStatusFailed {
		return
	}
	p, err := w.store.GetPipeline(ctx, job.PipelineID)
	if err != nil || p.Status != model.PipelineStatusRunning {
		return
	}
	if err := w.store.SetPipelineStatus(ctx, p.ID, model.PipelineStatusFailed); err != nil {
		log.Warn("mark pipeline failed", zap.Error(err))
		return
	}
	log.Error("pipeline failed",
		zap.String("pipeline_id", p.ID),
		zap.String("failed_stage", string(job.Type)))
}

// nextStage returns the stage after current, or "" when current is the
// final stage. ok is false when current is not part of the chain.
func nextStage(stages []model.JobType, current model.JobType) (model.JobType, bool) {
	for i, s := range stages {
		if s != current {
			continue
		}
		if i+1 < len(stages) {
			return stages[i+1], true
		}
		return "", true
	}
	return "", false
}
