package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/pkg/anthropic"
	"github.com/promptwatch/visibility/pkg/gemini"
	"github.com/promptwatch/visibility/pkg/openai"
	"github.com/promptwatch/visibility/pkg/perplexity"
)

// NewClientFromConfig builds the invoker from application config: the
// default catalog (plus any overlay) and one adapter per provider
// family that has credentials. Families without an API key get no
// adapter, so their models fail permanently at invoke time.
func NewClientFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	catalog := DefaultCatalog()
	if cfg.Catalog.OverlayPath != "" {
		if err := catalog.LoadOverlay(cfg.Catalog.OverlayPath); err != nil {
			return nil, err
		}
	}

	var adapters []providerAdapter
	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		adapters = append(adapters, newAnthropicAdapter(anthropic.NewClient(key)))
	}
	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		adapters = append(adapters, newOpenAIAdapter(key, cfg.Providers.OpenAI.BaseURL))
	}
	if key := cfg.Providers.Gemini.APIKey; key != "" {
		gc, err := gemini.NewClient(ctx, key)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, newGeminiAdapter(gc))
	}
	if key := cfg.Providers.Perplexity.APIKey; key != "" {
		adapters = append(adapters, newPerplexityAdapter(key, cfg.Providers.Perplexity.BaseURL))
	}

	if len(adapters) == 0 {
		zap.L().Warn("no llm providers configured, sampling will fail until an api key is set")
	}

	return NewClient(catalog, adapters...), nil
}

// --- anthropic ---

type anthropicAdapter struct {
	client anthropic.Client
}

func newAnthropicAdapter(client anthropic.Client) *anthropicAdapter {
	return &anthropicAdapter{client: client}
}

func (a *anthropicAdapter) provider() string { return ProviderAnthropic }

func (a *anthropicAdapter) invoke(ctx context.Context, _ ModelInfo, req InvokeRequest) (string, Usage, error) {
	temp := req.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      req.SystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", Usage{}, err
	}

	return resp.Text(), Usage{
		Input:  resp.Usage.InputTokens,
		Output: resp.Usage.OutputTokens,
	}, nil
}

// --- openai ---

type openaiAdapter struct {
	newClient func(baseURL string) openai.Client

	mu      sync.Mutex
	clients map[string]openai.Client
}

func newOpenAIAdapter(apiKey, baseURL string) *openaiAdapter {
	return &openaiAdapter{
		newClient: func(base string) openai.Client {
			opts := []openai.Option{}
			if base == "" {
				base = baseURL
			}
			if base != "" {
				opts = append(opts, openai.WithBaseURL(base))
			}
			return openai.NewClient(apiKey, opts...)
		},
		clients: make(map[string]openai.Client),
	}
}

func (a *openaiAdapter) provider() string { return ProviderOpenAI }

// clientFor caches one client per endpoint; the empty key is the
// configured default.
func (a *openaiAdapter) clientFor(endpoint string) openai.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[endpoint]; ok {
		return c
	}
	c := a.newClient(endpoint)
	a.clients[endpoint] = c
	return c
}

func (a *openaiAdapter) invoke(ctx context.Context, info ModelInfo, req InvokeRequest) (string, Usage, error) {
	msgs := make([]openai.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.Message{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: req.Prompt})

	temp := req.Temperature
	maxTokens := req.MaxTokens
	resp, err := a.clientFor(info.Endpoint).ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", Usage{}, &ProviderError{Provider: ProviderOpenAI, Status: apiErr.StatusCode, Body: apiErr.Body}
		}
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, eris.New("llm: openai returned no choices")
	}

	return resp.Choices[0].Message.Content, Usage{
		Input:  int64(resp.Usage.PromptTokens),
		Output: int64(resp.Usage.CompletionTokens),
	}, nil
}

// --- gemini ---

type geminiAdapter struct {
	client gemini.Client
}

func newGeminiAdapter(client gemini.Client) *geminiAdapter {
	return &geminiAdapter{client: client}
}

func (a *geminiAdapter) provider() string { return ProviderGemini }

func (a *geminiAdapter) invoke(ctx context.Context, _ ModelInfo, req InvokeRequest) (string, Usage, error) {
	temp := req.Temperature
	resp, err := a.client.GenerateContent(ctx, gemini.GenerateRequest{
		Model:        req.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  &temp,
	})
	if err != nil {
		return "", Usage{}, err
	}

	return resp.Content, Usage{
		Input:  resp.Usage.InputTokens,
		Output: resp.Usage.OutputTokens,
	}, nil
}

// --- perplexity ---

type perplexityAdapter struct {
	newClient func(baseURL string) perplexity.Client

	mu      sync.Mutex
	clients map[string]perplexity.Client
}

func newPerplexityAdapter(apiKey, baseURL string) *perplexityAdapter {
	return &perplexityAdapter{
		newClient: func(base string) perplexity.Client {
			opts := []perplexity.Option{}
			if base == "" {
				base = baseURL
			}
			if base != "" {
				opts = append(opts, perplexity.WithBaseURL(base))
			}
			return perplexity.NewClient(apiKey, opts...)
		},
		clients: make(map[string]perplexity.Client),
	}
}

func (a *perplexityAdapter) provider() string { return ProviderPerplexity }

func (a *perplexityAdapter) clientFor(endpoint string) perplexity.Client {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[endpoint]; ok {
		return c
	}
	c := a.newClient(endpoint)
	a.clients[endpoint] = c
	return c
}

func (a *perplexityAdapter) invoke(ctx context.Context, info ModelInfo, req InvokeRequest) (string, Usage, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: req.Prompt})

	temp := req.Temperature
	maxTokens := req.MaxTokens
	resp, err := a.clientFor(info.Endpoint).ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		var apiErr *perplexity.APIError
		if errors.As(err, &apiErr) {
			return "", Usage{}, &ProviderError{Provider: ProviderPerplexity, Status: apiErr.StatusCode, Body: apiErr.Body}
		}
		return "", Usage{}, err
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, eris.New("llm: perplexity returned no choices")
	}

	// Citations become part of the answer text so downstream URL
	// extraction sees the grounding sources.
	content := resp.Choices[0].Message.Content
	if len(resp.Citations) > 0 {
		var sb strings.Builder
		sb.WriteString(content)
		sb.WriteString("\n\nSources:\n")
		for _, cite := range resp.Citations {
			sb.WriteString("- ")
			sb.WriteString(cite)
			sb.WriteString("\n")
		}
		content = sb.String()
	}

	return content, Usage{
		Input:  int64(resp.Usage.PromptTokens),
		Output: int64(resp.Usage.CompletionTokens),
	}, nil
}
