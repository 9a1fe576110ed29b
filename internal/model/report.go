package model

import "time"

// ReportStatus represents the generation state of a report.
type ReportStatus string

const (
	ReportStatusGenerating ReportStatus = "generating"
	ReportStatusComplete   ReportStatus = "complete"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is one assembled visibility report. Immutable once complete;
// the artifact paths point into blob storage.
type Report struct {
	ID              string           `json:"id"`
	BrandID         string           `json:"brand_id"`
	JobID           string           `json:"job_id"`
	ScoreID         string           `json:"score_id,omitempty"`
	Status          ReportStatus     `json:"status"`
	Error           string           `json:"error,omitempty"`
	Insights        *ReportInsights  `json:"insights,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	StructuredPath  string           `json:"structured_path,omitempty"`
	NarrativePath   string           `json:"narrative_path,omitempty"`
	SizeBytes       int64            `json:"size_bytes"`
	PageEstimate    int              `json:"page_estimate"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// ReportInsights holds the derived findings a report is built around.
type ReportInsights struct {
	TotalScore         int           `json:"total_score"`
	StrongestComponent string        `json:"strongest_component"`
	StrongestValue     float64       `json:"strongest_value"`
	WeakestComponent   string        `json:"weakest_component"`
	WeakestValue       float64       `json:"weakest_value"`
	MentionRate        float64       `json:"mention_rate"`
	TopCitedDomains    []DomainCount `json:"top_cited_domains,omitempty"`
	CompetitorMentions []DomainCount `json:"competitor_mentions,omitempty"`
	SampleCount        int           `json:"sample_count"`
	SampleCostUSD      float64       `json:"sample_cost_usd"`
}

// DomainCount pairs a hostname with an occurrence count.
type DomainCount struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

// Recommendation is one rule-derived action item.
type Recommendation struct {
	Priority string `json:"priority"` // high, medium, low
	Title    string `json:"title"`
	Detail   string `json:"detail"`
}

// ReportSummary is the result payload written to a completed
// assemble_report job.
type ReportSummary struct {
	ReportID        string  `json:"report_id"`
	TotalScore      int     `json:"total_score"`
	MentionRate     float64 `json:"mention_rate"`
	Recommendations int     `json:"recommendations"`
	SizeBytes       int64   `json:"size_bytes"`
	PageEstimate    int     `json:"page_estimate"`
	StructuredURL   string  `json:"structured_url"`
	NarrativeURL    string  `json:"narrative_url"`
}
