package llm

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Provider family identifiers.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderPerplexity = "perplexity"
)

// ErrUnknownModel is returned for models absent from the catalog.
var ErrUnknownModel = eris.New("unknown model")

// ModelInfo describes one catalog entry: provider family, pricing per
// million tokens, rate limits, and request defaults.
type ModelInfo struct {
	Provider      string  `yaml:"provider"`
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
	RPM           int     `yaml:"rpm"`
	TPM           int     `yaml:"tpm"`
	MaxTokens     int     `yaml:"max_tokens"`
	Endpoint      string  `yaml:"endpoint"`
}

// Usage reports token consumption for one invocation.
type Usage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Cost is the USD cost breakdown for one invocation.
type Cost struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
	Total  float64 `json:"total"`
}

// Catalog maps model names to pricing and rate limits.
type Catalog struct {
	models map[string]ModelInfo
}

// NewCatalog creates a catalog from the given entries.
func NewCatalog(models map[string]ModelInfo) *Catalog {
	c := &Catalog{models: make(map[string]ModelInfo, len(models))}
	for name, info := range models {
		c.models[name] = info
	}
	return c
}

// DefaultCatalog returns the shipped model catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string]ModelInfo{
		"claude-haiku-4-5-20251001": {
			Provider: ProviderAnthropic, InputPerMTok: 0.80, OutputPerMTok: 4.00,
			RPM: 50, TPM: 50_000, MaxTokens: 8192,
		},
		"claude-sonnet-4-5-20250929": {
			Provider: ProviderAnthropic, InputPerMTok: 3.00, OutputPerMTok: 15.00,
			RPM: 50, TPM: 40_000, MaxTokens: 8192,
		},
		"claude-opus-4-1-20250805": {
			Provider: ProviderAnthropic, InputPerMTok: 15.00, OutputPerMTok: 75.00,
			RPM: 30, TPM: 20_000, MaxTokens: 4096,
		},
		"gpt-4o-mini": {
			Provider: ProviderOpenAI, InputPerMTok: 0.15, OutputPerMTok: 0.60,
			RPM: 300, TPM: 200_000, MaxTokens: 4096,
		},
		"gpt-4o": {
			Provider: ProviderOpenAI, InputPerMTok: 2.50, OutputPerMTok: 10.00,
			RPM: 60, TPM: 60_000, MaxTokens: 4096,
		},
		"gemini-2.0-flash": {
			Provider: ProviderGemini, InputPerMTok: 0.10, OutputPerMTok: 0.40,
			RPM: 60, TPM: 100_000, MaxTokens: 8192,
		},
		"gemini-1.5-pro": {
			Provider: ProviderGemini, InputPerMTok: 1.25, OutputPerMTok: 5.00,
			RPM: 30, TPM: 50_000, MaxTokens: 8192,
		},
		"sonar": {
			Provider: ProviderPerplexity, InputPerMTok: 1.00, OutputPerMTok: 1.00,
			RPM: 50, TPM: 50_000, MaxTokens: 4096,
		},
		"sonar-pro": {
			Provider: ProviderPerplexity, InputPerMTok: 3.00, OutputPerMTok: 15.00,
			RPM: 50, TPM: 40_000, MaxTokens: 8192,
		},
	})
}

// Lookup returns the catalog entry for a model.
func (c *Catalog) Lookup(model string) (ModelInfo, error) {
	info, ok := c.models[model]
	if !ok {
		return ModelInfo{}, eris.Wrapf(ErrUnknownModel, "llm: %s", model)
	}
	return info, nil
}

// Models returns all registered model names, sorted.
func (c *Catalog) Models() []string {
	names := make([]string, 0, len(c.models))
	for name := range c.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelsFor returns the registered model names for one provider family,
// sorted.
func (c *Catalog) ModelsFor(provider string) []string {
	var names []string
	for name, info := range c.models {
		if info.Provider == provider {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Cost computes the USD cost of an invocation. The same formula applies
// to every provider family: tokens divided by a million times the
// per-MTok rate, input and output priced independently.
func (c *Catalog) Cost(model string, usage Usage) (Cost, error) {
	info, err := c.Lookup(model)
	if err != nil {
		return Cost{}, err
	}

	in := (float64(usage.Input) / 1e6) * info.InputPerMTok
	out := (float64(usage.Output) / 1e6) * info.OutputPerMTok
	return Cost{Input: in, Output: out, Total: in + out}, nil
}

// LoadOverlay merges a YAML pricing overlay into the catalog so
// operators can re-rate or add models without a rebuild. Known models
// keep their existing values for any field the overlay leaves unset;
// new models must name a provider.
func (c *Catalog) LoadOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "llm: read catalog overlay %s", path)
	}

	var overlay map[string]ModelInfo
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return eris.Wrapf(err, "llm: parse catalog overlay %s", path)
	}

	for name, info := range overlay {
		base, ok := c.models[name]
		if !ok {
			if info.Provider == "" {
				return eris.Errorf("llm: overlay model %s missing provider", name)
			}
			c.models[name] = info
			continue
		}

		if info.Provider != "" {
			base.Provider = info.Provider
		}
		if info.InputPerMTok > 0 {
			base.InputPerMTok = info.InputPerMTok
		}
		if info.OutputPerMTok > 0 {
			base.OutputPerMTok = info.OutputPerMTok
		}
		if info.RPM > 0 {
			base.RPM = info.RPM
		}
		if info.TPM > 0 {
			base.TPM = info.TPM
		}
		if info.MaxTokens > 0 {
			base.MaxTokens = info.MaxTokens
		}
		if info.Endpoint != "" {
			base.Endpoint = info.Endpoint
		}
		c.models[name] = base
	}

	return nil
}
