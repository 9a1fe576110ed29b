// Package store persists the durable state of the visibility pipeline:
// the job queue, pipelines, brand records, sample results, scores, and
// reports. Two backends implement the same interface, SQLite for
// single-node and local development, Postgres for shared deployments.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/promptwatch/visibility/internal/model"
)

// ErrNotFound is wrapped by every lookup that misses. Callers test with
// errors.Is.
var ErrNotFound = eris.New("not found")

// Job retry delays grow exponentially from base to max. The schedule is
// deliberately coarser than the per-request retry inside the LLM
// client: by the time a job fails, fast retries have already been
// exhausted.
const (
	retryBackoffBase = 15 * time.Second
	retryBackoffMax  = 10 * time.Minute
)

const (
	// DefaultMaxRetries applies when a job is enqueued without an
	// explicit retry budget.
	DefaultMaxRetries = 3

	// DefaultLeaseDuration bounds how long a claimed job may run before
	// the reaper treats its worker as dead.
	DefaultLeaseDuration = 15 * time.Minute
)

// claimAttempts bounds the SQLite claim loop when several workers race
// for the same candidate row.
const claimAttempts = 5

// Store defines the persistence surface for the visibility pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, nj model.NewJob) (*model.Job, error)
	ClaimNextReadyJob(ctx context.Context, workerID string, types []model.JobType, leaseFor time.Duration) (*model.Job, error)
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	FailJob(ctx context.Context, jobID string, msg string) error
	CancelChain(ctx context.Context, rootJobID string) (int, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobsByPipeline(ctx context.Context, pipelineID string) ([]model.Job, error)
	CountJobsByStatus(ctx context.Context, since time.Time) (map[model.JobStatus]int, error)
	ReapExpiredLeases(ctx context.Context) (int, error)

	// Pipelines
	CreatePipeline(ctx context.Context, p *model.Pipeline) error
	GetPipeline(ctx context.Context, pipelineID string) (*model.Pipeline, error)
	SetPipelineStatus(ctx context.Context, pipelineID string, status model.PipelineStatus) error
	CancelPipelineJobs(ctx context.Context, pipelineID string) (int, error)
	CountPipelinesByStatus(ctx context.Context, since time.Time) (map[model.PipelineStatus]int, error)

	// Brands
	UpsertBrand(ctx context.Context, b *model.Brand) error
	GetBrand(ctx context.Context, brandID string) (*model.Brand, error)
	ListBrands(ctx context.Context, limit int) ([]model.Brand, error)
	ReplaceClaims(ctx context.Context, brandID string, claims []model.BrandClaim) error
	ListClaims(ctx context.Context, brandID string, limit int) ([]model.BrandClaim, error)
	UpdateClaimText(ctx context.Context, claimID string, text string) error
	ReplaceContent(ctx context.Context, brandID string, items []model.BrandContent) error
	ListContent(ctx context.Context, brandID string, limit int) ([]model.BrandContent, error)
	UpdateContentBody(ctx context.Context, contentID string, body string) error
	ReplaceChunks(ctx context.Context, contentID string, chunks []model.BrandChunk) error
	ListChunks(ctx context.Context, brandID string, limit int) ([]model.BrandChunk, error)

	// Sample results
	InsertSampleResults(ctx context.Context, results []model.SampleResult) (int64, error)
	ListSampleResults(ctx context.Context, brandID string, since time.Time, limit int) ([]model.SampleResult, error)
	TrailingSpend(ctx context.Context, brandID string, since time.Time) (float64, error)

	// Scores
	InsertScore(ctx context.Context, sc *model.ScoreComponents) error
	LatestScore(ctx context.Context, brandID string) (*model.ScoreComponents, error)
	ListScores(ctx context.Context, brandID string, limit int) ([]model.ScoreComponents, error)

	// Reports
	CreateReport(ctx context.Context, r *model.Report) error
	FinishReport(ctx context.Context, r *model.Report) error
	FailReport(ctx context.Context, reportID string, msg string) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// jobColumns is the shared SELECT column order for job rows. Both
// backends scan in this order.
const jobColumns = `id, pipeline_id, brand_id, type, status, priority, payload, result, error, retry_count, max_retries, depends_on, idempotency_key, locked_by, next_run_at, lease_expires_at, created_at, started_at, completed_at`

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// retryBackoff returns the delay before attempt n becomes eligible
// again. n is the retry count after incrementing, so the first requeue
// waits retryBackoffBase.
func retryBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := retryBackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= retryBackoffMax {
			return retryBackoffMax
		}
	}
	return d
}

// marshalStringSet encodes a dependency list as a JSON array, never
// null, so json_each and jsonb_array_elements_text see an empty set.
func marshalStringSet(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	b, err := json.Marshal(ss)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal string set")
	}
	return string(b), nil
}

func dependencyError(parentID string) string {
	return "dependency failed: " + parentID
}
