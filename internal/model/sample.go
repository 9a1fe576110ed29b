package model

import "time"

// SampleResult is one recorded model response, one row per executed
// sampling request. Append-only: the scoring engine reads these, never
// mutates them. Failed invocations keep their row with Error set and
// zero usage/cost.
type SampleResult struct {
	ID              string    `json:"id"`
	BrandID         string    `json:"brand_id"`
	JobID           string    `json:"job_id"`
	Model           string    `json:"model"`
	Provider        string    `json:"provider"`
	PromptKey       string    `json:"prompt_key"`
	ParaphraseIndex int       `json:"paraphrase_index"`
	ResponseText    string    `json:"response_text,omitempty"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	TotalTokens     int       `json:"total_tokens"`
	CostUSD         float64   `json:"cost_usd"`
	ExecutionMs     int64     `json:"execution_ms"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ModelRollup summarizes one model's outcomes within a sampling job.
type ModelRollup struct {
	Model     string  `json:"model"`
	Requests  int     `json:"requests"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	CostUSD   float64 `json:"cost_usd"`
}

// SamplingSummary is the result payload written to a completed sample
// job.
type SamplingSummary struct {
	Requests      int           `json:"requests"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	TotalCostUSD  float64       `json:"total_cost_usd"`
	EstimatedCost float64       `json:"estimated_cost_usd"`
	Models        []ModelRollup `json:"models"`
}
