package model

import "time"

// Brand is the tracked entity. The surrounding product owns brand
// records; the core reads them and only the onboard stage fills in
// inferred fields that arrive blank.
type Brand struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Domain           string    `json:"domain"`
	ServiceType      string    `json:"service_type,omitempty"`
	Location         string    `json:"location,omitempty"`
	Competitors      []string  `json:"competitors,omitempty"`
	MonthlyBudgetUSD float64   `json:"monthly_budget_usd"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BrandClaim is one factual statement about a brand with a confidence
// rank, used for prompt context assembly.
type BrandClaim struct {
	ID         string    `json:"id"`
	BrandID    string    `json:"brand_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// BrandContent is one piece of brand-owned content (page, post,
// description) available for context assembly.
type BrandContent struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BrandChunk is one embed-stage text chunk cut from a content body.
type BrandChunk struct {
	ID        string    `json:"id"`
	BrandID   string    `json:"brand_id"`
	ContentID string    `json:"content_id"`
	Seq       int       `json:"seq"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
