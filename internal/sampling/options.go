// Package sampling expands a brand and profile into a cartesian set of
// (model, prompt, paraphrase) requests, gates them against the brand's
// monthly budget, executes them in paced batches through the LLM
// client, and persists every outcome as a SampleResult row.
package sampling

import (
	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/prompt"
)

// Profile defaults. Model lists favor the cheap tier of each provider
// family; prompt keys are a stable prefix of the template order so a
// lite run measures a subset of what a full run measures.
var profileModels = map[model.Profile][]string{
	model.ProfileLite:     {"gpt-4o-mini", "claude-haiku-4-5-20251001"},
	model.ProfileStandard: {"gpt-4o-mini", "claude-haiku-4-5-20251001", "gemini-2.0-flash"},
	model.ProfileFull:     {"gpt-4o-mini", "claude-haiku-4-5-20251001", "gemini-2.0-flash", "sonar-pro"},
}

var profilePrompts = map[model.Profile]int{
	model.ProfileLite:     2,
	model.ProfileStandard: 4,
	model.ProfileFull:     6,
}

var profileParaphrases = map[model.Profile]int{
	model.ProfileLite:     2,
	model.ProfileStandard: 2,
	model.ProfileFull:     3,
}

// Options is a fully resolved sampling parameter set: profile defaults
// with explicit overrides and config fallbacks applied.
type Options struct {
	Models          []string
	PromptKeys      []string
	ParaphraseCount int
	MaxTokens       int
	Temperature     float64
}

// Calls returns the request count the option set expands to.
func (o Options) Calls() int {
	return len(o.Models) * len(o.PromptKeys) * o.ParaphraseCount
}

// Resolve merges profile defaults with any explicit overrides. The
// custom profile starts from the standard defaults, so a partial
// override still yields a runnable set. MaxTokens and Temperature fall
// back to the configured sampling defaults.
func Resolve(profile model.Profile, opts *model.SamplingOptions, cfg config.SamplingConfig) Options {
	base := profile
	if base == model.ProfileCustom || !base.Valid() {
		base = model.ProfileStandard
	}

	out := Options{
		Models:          append([]string(nil), profileModels[base]...),
		PromptKeys:      prompt.DefaultKeys()[:profilePrompts[base]],
		ParaphraseCount: profileParaphrases[base],
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
	}
	if opts == nil {
		return out
	}
	if len(opts.Models) > 0 {
		out.Models = append([]string(nil), opts.Models...)
	}
	if len(opts.PromptKeys) > 0 {
		out.PromptKeys = append([]string(nil), opts.PromptKeys...)
	}
	if opts.ParaphraseCount > 0 {
		out.ParaphraseCount = opts.ParaphraseCount
	}
	if opts.MaxTokens > 0 {
		out.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		out.Temperature = opts.Temperature
	}
	return out
}
