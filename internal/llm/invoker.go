package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/promptwatch/visibility/internal/resilience"
)

// InvokeRequest describes one prompt invocation against an answer
// engine.
type InvokeRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// InvokeResponse carries the answer text plus usage and cost
// accounting for one invocation.
type InvokeResponse struct {
	Content     string
	Usage       Usage
	Cost        Cost
	ExecutionMs int64
}

// Invoker executes prompts against answer engines.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}

// ProviderError is returned when a provider rejects an invocation.
// Status decides retryability via resilience.IsTransientHTTPStatus.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: %s HTTP %d: %s", e.Provider, e.Status, truncate(e.Body, 200))
}

// providerAdapter executes one request against a single provider
// family.
type providerAdapter interface {
	provider() string
	invoke(ctx context.Context, info ModelInfo, req InvokeRequest) (string, Usage, error)
}

// invokeOut bundles an adapter result through the retry loop.
type invokeOut struct {
	content string
	usage   Usage
}

// Client routes invocations through per-model rate limits,
// per-provider circuit breakers and a transient-only retry loop.
type Client struct {
	catalog  *Catalog
	adapters map[string]providerAdapter
	breakers *resilience.BreakerSet
	retry    resilience.Backoff

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient builds an invoker over the given catalog and adapters.
func NewClient(catalog *Catalog, adapters ...providerAdapter) *Client {
	m := make(map[string]providerAdapter, len(adapters))
	for _, a := range adapters {
		m[a.provider()] = a
	}

	retry := resilience.ProviderBackoff()
	retry.Retryable = isRetryable

	return &Client{
		catalog:  catalog,
		adapters: m,
		breakers: resilience.NewBreakerSet(5, 30*time.Second),
		retry:    retry,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Invoke executes the request against the model's provider. Transient
// failures are retried up to three times with exponential backoff; the
// provider's circuit breaker wraps every attempt.
func (c *Client) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	info, err := c.catalog.Lookup(req.Model)
	if err != nil {
		return nil, err
	}

	adapter, ok := c.adapters[info.Provider]
	if !ok {
		return nil, eris.Errorf("llm: provider %s is not configured (missing api key?)", info.Provider)
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = info.MaxTokens
	}

	if err := c.limiter(req.Model, info).Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "llm: rate limit wait for %s", req.Model)
	}

	breaker := c.breakers.For(info.Provider)
	log := zap.L().With(
		zap.String("provider", info.Provider),
		zap.String("model", req.Model),
	)

	start := time.Now()
	out, err := resilience.Retry(ctx, c.retry, log, func(ctx context.Context) (invokeOut, error) {
		return resilience.Guard(ctx, breaker, nil, func(ctx context.Context) (invokeOut, error) {
			attemptCtx := ctx
			if req.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
				defer cancel()
			}

			content, usage, err := adapter.invoke(attemptCtx, info, req)
			if err != nil {
				return invokeOut{}, err
			}
			return invokeOut{content: content, usage: usage}, nil
		})
	})
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	if out.usage.Total == 0 {
		out.usage.Total = out.usage.Input + out.usage.Output
	}

	cost, err := c.catalog.Cost(req.Model, out.usage)
	if err != nil {
		return nil, err
	}

	log.Debug("invoked model",
		zap.Int64("input_tokens", out.usage.Input),
		zap.Int64("output_tokens", out.usage.Output),
		zap.Float64("cost_usd", cost.Total),
		zap.Duration("elapsed", elapsed),
	)

	return &InvokeResponse{
		Content:     out.content,
		Usage:       out.usage,
		Cost:        cost,
		ExecutionMs: elapsed.Milliseconds(),
	}, nil
}

// BreakerStates exposes the per-provider circuit states for monitoring.
func (c *Client) BreakerStates() map[string]resilience.BreakerState {
	return c.breakers.Snapshot()
}

// Catalog returns the model catalog the client routes with.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}

// limiter returns the per-model rate limiter, derived from the
// catalog's RPM figure.
func (c *Client) limiter(model string, info ModelInfo) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.limiters[model]; ok {
		return l
	}

	limit := rate.Inf
	if info.RPM > 0 {
		limit = rate.Limit(float64(info.RPM) / 60.0)
	}
	l := rate.NewLimiter(limit, 1)
	c.limiters[model] = l
	return l
}

// isRetryable decides which invocation failures are worth another
// attempt: transiently-coded provider rejections, attempt timeouts,
// and the network failures IsTransient recognizes. An open circuit
// fails fast.
func isRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return resilience.IsTransientHTTPStatus(pe.Status)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return resilience.IsTransient(err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
