// Package model contains the shared domain types for the visibility
// engine: jobs, pipelines, sample results, scores, reports, and the
// brand entities the pipeline reads.
package model

import (
	"encoding/json"
	"time"
)

// JobType identifies a pipeline stage or an ad hoc unit of work.
type JobType string

const (
	JobTypeOnboard        JobType = "onboard"
	JobTypeNormalize      JobType = "normalize"
	JobTypeEmbed          JobType = "embed"
	JobTypeSample         JobType = "sample"
	JobTypeScore          JobType = "score"
	JobTypeAssembleReport JobType = "assemble_report"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusComplete  JobStatus = "complete"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs are never
// claimed or retried again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusFailed || s == JobStatusCancelled
}

// Active reports whether the status counts against an idempotency key.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Job is one durable work item. Rows are never deleted; failed and
// cancelled jobs stay for audit.
type Job struct {
	ID             string          `json:"id"`
	PipelineID     string          `json:"pipeline_id,omitempty"`
	BrandID        string          `json:"brand_id"`
	Type           JobType         `json:"type"`
	Status         JobStatus       `json:"status"`
	Priority       int             `json:"priority"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	DependsOn      []string        `json:"depends_on,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	LockedBy       string          `json:"locked_by,omitempty"`
	NextRunAt      time.Time       `json:"next_run_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// NewJob carries the caller-supplied fields for job creation. The store
// assigns id, status, and timestamps.
type NewJob struct {
	PipelineID     string
	BrandID        string
	Type           JobType
	Priority       int
	Payload        json.RawMessage
	MaxRetries     int
	DependsOn      []string
	IdempotencyKey string
}
