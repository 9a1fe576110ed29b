package model

import "time"

// Score component names, used as map keys in weight tables, insights,
// and rendered reports.
const (
	ComponentPromptSOV            = "prompt_sov"
	ComponentGenerativeAppearance = "generative_appearance"
	ComponentCitationAuthority    = "citation_authority"
	ComponentAnswerQuality        = "answer_quality"
	ComponentVoicePresence        = "voice_presence"
	ComponentAITraffic            = "ai_traffic"
	ComponentAIConversions        = "ai_conversions"
)

// EngineScopeAll marks a score computed over every answer engine's
// results. Per-provider scopes share the same table.
const EngineScopeAll = "all"

// ScoreComponents is one computed visibility score: seven component
// values in [0,100] and the weighted total. Append-only history, one
// row per calculation.
type ScoreComponents struct {
	ID                   string    `json:"id"`
	BrandID              string    `json:"brand_id"`
	EngineScope          string    `json:"engine_scope"`
	PromptSOV            float64   `json:"prompt_sov"`
	GenerativeAppearance float64   `json:"generative_appearance"`
	CitationAuthority    float64   `json:"citation_authority"`
	AnswerQuality        float64   `json:"answer_quality"`
	VoicePresence        float64   `json:"voice_presence"`
	AITraffic            float64   `json:"ai_traffic"`
	AIConversions        float64   `json:"ai_conversions"`
	TotalScore           int       `json:"total_score"`
	SampleCount          int       `json:"sample_count"`
	CalculatedAt         time.Time `json:"calculated_at"`
}

// ComponentMap returns the seven component values keyed by component
// name.
func (s *ScoreComponents) ComponentMap() map[string]float64 {
	return map[string]float64{
		ComponentPromptSOV:            s.PromptSOV,
		ComponentGenerativeAppearance: s.GenerativeAppearance,
		ComponentCitationAuthority:    s.CitationAuthority,
		ComponentAnswerQuality:        s.AnswerQuality,
		ComponentVoicePresence:        s.VoicePresence,
		ComponentAITraffic:            s.AITraffic,
		ComponentAIConversions:        s.AIConversions,
	}
}
