// Package prompt renders the consumer-style questions the sampler
// sends to answer engines, applies deterministic paraphrase variants,
// and assembles the bounded brand-context snapshot that accompanies
// every request in a sampling job.
package prompt

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Template keys.
const (
	KeyBestInCategory = "best_in_category"
	KeyRecommendation = "recommendation"
	KeyComparison     = "comparison"
	KeyReviews        = "reviews"
	KeyAlternatives   = "alternatives"
	KeyLocalSearch    = "local_search"
)

// Vars holds the substitution values for a prompt template.
type Vars struct {
	BrandName   string
	ServiceType string
	Location    string
	Competitor  string
}

var templates = map[string]string{
	KeyBestInCategory: "What are the best {service_type} providers in {location}?",
	KeyRecommendation: "I'm looking for {service_type} in {location}. Which provider would you recommend and why?",
	KeyComparison:     "How does {brand} compare to {competitor} for {service_type}?",
	KeyReviews:        "What do customer reviews and ratings say about {brand}?",
	KeyAlternatives:   "What are the best alternatives to {competitor} for {service_type}?",
	KeyLocalSearch:    "Who are the top-rated {service_type} companies near {location}?",
}

// keyOrder fixes the expansion order so profiles pick a stable prefix.
var keyOrder = []string{
	KeyBestInCategory,
	KeyRecommendation,
	KeyComparison,
	KeyReviews,
	KeyAlternatives,
	KeyLocalSearch,
}

// DefaultKeys returns all template keys in expansion order.
func DefaultKeys() []string {
	out := make([]string, len(keyOrder))
	copy(out, keyOrder)
	return out
}

// ValidKey reports whether key names a known template.
func ValidKey(key string) bool {
	_, ok := templates[key]
	return ok
}

// Render substitutes vars into the named template. Blank vars fall
// back to generic phrasing so every key renders for every brand.
func Render(key string, vars Vars) (string, error) {
	tmpl, ok := templates[key]
	if !ok {
		return "", eris.Errorf("prompt: unknown template key %q", key)
	}

	if vars.ServiceType == "" {
		vars.ServiceType = "services"
	}
	if vars.Location == "" {
		vars.Location = "the United States"
	}
	if vars.Competitor == "" {
		vars.Competitor = vars.BrandName
	}

	r := strings.NewReplacer(
		"{brand}", vars.BrandName,
		"{service_type}", vars.ServiceType,
		"{location}", vars.Location,
		"{competitor}", vars.Competitor,
	)
	return r.Replace(tmpl), nil
}
