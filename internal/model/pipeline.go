package model

import "time"

// Profile names a bundle of sampling parameters.
type Profile string

const (
	ProfileLite     Profile = "lite"
	ProfileStandard Profile = "standard"
	ProfileFull     Profile = "full"
	ProfileCustom   Profile = "custom"
)

// Valid reports whether p is a known profile.
func (p Profile) Valid() bool {
	switch p {
	case ProfileLite, ProfileStandard, ProfileFull, ProfileCustom:
		return true
	}
	return false
}

// PipelineStatus represents the overall state of a brand analysis run.
type PipelineStatus string

const (
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusComplete  PipelineStatus = "complete"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
)

// Pipeline is one requested brand analysis: an ordered chain of stage
// jobs created lazily as predecessors complete. Stages holds the
// planned chain; only jobs up to the current stage exist as rows.
type Pipeline struct {
	ID        string         `json:"id"`
	BrandID   string         `json:"brand_id"`
	Profile   Profile        `json:"profile"`
	Stages    []JobType      `json:"stages"`
	Status    PipelineStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PipelineStatusView is the caller-facing status document: overall
// state, coarse progress, and the per-stage job breakdown.
type PipelineStatusView struct {
	PipelineID  string         `json:"pipeline_id"`
	BrandID     string         `json:"brand_id"`
	Profile     Profile        `json:"profile"`
	Status      PipelineStatus `json:"status"`
	ProgressPct int            `json:"progress_pct"`
	Stages      []StageStatus  `json:"stages"`
}

// StageStatus describes one planned stage and, when its job exists, the
// job's state. Stages the chain has not reached yet carry an empty
// JobID and status "pending".
type StageStatus struct {
	Type        JobType    `json:"type"`
	JobID       string     `json:"job_id,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SamplingOptions is the sample-job payload: which models, prompts and
// paraphrase variants to run, and the generation parameters. Zero
// values fall back to the profile defaults.
type SamplingOptions struct {
	Models          []string `json:"models,omitempty"`
	PromptKeys      []string `json:"prompt_keys,omitempty"`
	ParaphraseCount int      `json:"paraphrase_count,omitempty"`
	MaxTokens       int      `json:"max_tokens,omitempty"`
	Temperature     float64  `json:"temperature,omitempty"`
}

// StagePayload is the payload every pipeline stage job carries: the
// owning run's profile plus any explicit sampling overrides. Stages
// other than sample ignore Options.
type StagePayload struct {
	Profile Profile          `json:"profile"`
	Options *SamplingOptions `json:"options,omitempty"`
}
