package sampling

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/promptwatch/visibility/internal/config"
	"github.com/promptwatch/visibility/internal/llm"
	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/prompt"
	"github.com/promptwatch/visibility/internal/store"
)

// ErrBudgetExceeded fails a sampling job before any spend occurs.
var ErrBudgetExceeded = eris.New("budget exceeded")

// budgetWindow is the trailing window the budget gate sums spend over.
const budgetWindow = 30 * 24 * time.Hour

// Read limits for context assembly. BuildSnapshot applies its own
// tighter caps; these only bound the store reads.
const (
	claimFetchLimit   = 50
	contentFetchLimit = 25
	chunkFetchLimit   = 50
)

// Engine runs sample jobs: budget gate, context assembly, request
// expansion, paced batch execution, persistence.
type Engine struct {
	store   store.Store
	invoker llm.Invoker
	catalog *llm.Catalog
	cfg     config.SamplingConfig
}

// NewEngine builds a sampling engine over the given store, invoker and
// model catalog.
func NewEngine(st store.Store, invoker llm.Invoker, catalog *llm.Catalog, cfg config.SamplingConfig) *Engine {
	return &Engine{store: st, invoker: invoker, catalog: catalog, cfg: cfg}
}

// request is one expanded sampling call. Ephemeral: rebuilt fresh for
// every job, never persisted.
type request struct {
	model      string
	provider   string
	promptKey  string
	paraphrase int
	prompt     string
}

// Run executes one sample job end to end and returns the summary to
// record as the job result. Per-request failures are recorded in their
// rows and do not fail the job; only the budget gate, a dead context,
// or a store failure does.
func (e *Engine) Run(ctx context.Context, job *model.Job, payload model.StagePayload) (*model.SamplingSummary, error) {
	brand, err := e.store.GetBrand(ctx, job.BrandID)
	if err != nil {
		return nil, err
	}

	opts := Resolve(payload.Profile, payload.Options, e.cfg)
	providers := make(map[string]string, len(opts.Models))
	for _, m := range opts.Models {
		info, err := e.catalog.Lookup(m)
		if err != nil {
			return nil, err
		}
		providers[m] = info.Provider
	}

	estimate, err := EstimateCost(e.catalog, opts)
	if err != nil {
		return nil, err
	}
	if err := e.checkBudget(ctx, brand, estimate); err != nil {
		return nil, err
	}

	snapshot := e.buildContext(ctx, brand)
	requests, err := expand(brand, opts, providers)
	if err != nil {
		return nil, err
	}

	results, err := e.execute(ctx, job, snapshot, opts, requests)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.InsertSampleResults(ctx, results); err != nil {
		return nil, err
	}

	summary := summarize(results, estimate)
	zap.L().Info("sampling complete",
		zap.String("brand_id", brand.ID),
		zap.String("job_id", job.ID),
		zap.Int("requests", summary.Requests),
		zap.Int("failed", summary.Failed),
		zap.Float64("cost_usd", summary.TotalCostUSD),
	)
	return summary, nil
}

// checkBudget is advisory: the spend read and the comparison are not
// atomic against concurrent sampling jobs for the same brand, so two
// jobs can both pass and jointly overspend. Accepted; the gate exists
// to stop runaway schedules, not to meter to the cent.
func (e *Engine) checkBudget(ctx context.Context, brand *model.Brand, estimate float64) error {
	if brand.MonthlyBudgetUSD <= 0 {
		return nil
	}
	spend, err := e.store.TrailingSpend(ctx, brand.ID, time.Now().UTC().Add(-budgetWindow))
	if err != nil {
		return eris.Wrap(err, "sampling: read trailing spend")
	}
	if spend+estimate > brand.MonthlyBudgetUSD {
		return eris.Wrapf(ErrBudgetExceeded,
			"sampling: spend %.2f + estimate %.2f exceeds budget %.2f",
			spend, estimate, brand.MonthlyBudgetUSD)
	}
	return nil
}

// buildContext gathers claims, content, and chunk text into the
// snapshot shared by every request in the job. Read failures degrade
// to a thinner snapshot rather than failing the job.
func (e *Engine) buildContext(ctx context.Context, brand *model.Brand) string {
	claims, err := e.store.ListClaims(ctx, brand.ID, claimFetchLimit)
	if err != nil {
		zap.L().Warn("brand claims unavailable", zap.String("brand_id", brand.ID), zap.Error(err))
	}
	content, err := e.store.ListContent(ctx, brand.ID, contentFetchLimit)
	if err != nil {
		zap.L().Warn("brand content unavailable", zap.String("brand_id", brand.ID), zap.Error(err))
	}
	chunks, err := e.store.ListChunks(ctx, brand.ID, chunkFetchLimit)
	if err != nil {
		zap.L().Warn("brand chunks unavailable", zap.String("brand_id", brand.ID), zap.Error(err))
	}
	return prompt.BuildSnapshot(brand, claims, content, chunks)
}

// expand produces the (model × promptKey × paraphraseIndex) request
// set. Competitors rotate through the expansion in request order, so
// repeat runs render identical prompts.
func expand(brand *model.Brand, opts Options, providers map[string]string) ([]request, error) {
	requests := make([]request, 0, opts.Calls())
	i := 0
	for _, m := range opts.Models {
		for _, key := range opts.PromptKeys {
			for p := 0; p < opts.ParaphraseCount; p++ {
				vars := prompt.Vars{
					BrandName:   brand.Name,
					ServiceType: brand.ServiceType,
					Location:    brand.Location,
				}
				if len(brand.Competitors) > 0 {
					vars.Competitor = brand.Competitors[i%len(brand.Competitors)]
				}
				text, err := prompt.Render(key, vars)
				if err != nil {
					return nil, err
				}
				requests = append(requests, request{
					model:      m,
					provider:   providers[m],
					promptKey:  key,
					paraphrase: p,
					prompt:     prompt.Paraphrase(text, p),
				})
				i++
			}
		}
	}
	return requests, nil
}

// execute runs requests in fixed-width parallel batches with a pause
// between batches. The pause is provider-friendly pacing on top of the
// invoker's own rate limits, not a correctness mechanism.
func (e *Engine) execute(ctx context.Context, job *model.Job, snapshot string, opts Options, requests []request) ([]model.SampleResult, error) {
	width := e.cfg.Concurrency
	if width <= 0 {
		width = 3
	}
	pause := time.Duration(e.cfg.BatchPauseMs) * time.Millisecond
	timeout := time.Duration(e.cfg.TimeoutSecs) * time.Second

	results := make([]model.SampleResult, len(requests))
	for start := 0; start < len(requests); start += width {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "sampling: batch loop")
		}
		end := start + width
		if end > len(requests) {
			end = len(requests)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = e.sampleOne(gctx, job, snapshot, opts, requests[i], timeout)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if end < len(requests) && pause > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "sampling: batch pause")
			case <-time.After(pause):
			}
		}
	}
	return results, nil
}

// sampleOne issues a single request and folds the outcome, success or
// failure, into a result row.
func (e *Engine) sampleOne(ctx context.Context, job *model.Job, snapshot string, opts Options, req request, timeout time.Duration) model.SampleResult {
	row := model.SampleResult{
		BrandID:         job.BrandID,
		JobID:           job.ID,
		Model:           req.model,
		Provider:        req.provider,
		PromptKey:       req.promptKey,
		ParaphraseIndex: req.paraphrase,
	}

	resp, err := e.invoker.Invoke(ctx, llm.InvokeRequest{
		Model:        req.model,
		Prompt:       req.prompt,
		SystemPrompt: snapshot,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
		Timeout:      timeout,
	})
	if err != nil {
		row.Error = err.Error()
		zap.L().Warn("sample request failed",
			zap.String("model", req.model),
			zap.String("prompt_key", req.promptKey),
			zap.Int("paraphrase", req.paraphrase),
			zap.Error(err),
		)
		return row
	}

	row.ResponseText = resp.Content
	row.InputTokens = int(resp.Usage.Input)
	row.OutputTokens = int(resp.Usage.Output)
	row.TotalTokens = int(resp.Usage.Total)
	row.CostUSD = resp.Cost.Total
	row.ExecutionMs = resp.ExecutionMs
	return row
}

// summarize rolls results up per model for the job result payload.
func summarize(results []model.SampleResult, estimate float64) *model.SamplingSummary {
	s := &model.SamplingSummary{
		Requests:      len(results),
		EstimatedCost: estimate,
	}
	byModel := make(map[string]*model.ModelRollup)
	for i := range results {
		r := &results[i]
		ru := byModel[r.Model]
		if ru == nil {
			ru = &model.ModelRollup{Model: r.Model}
			byModel[r.Model] = ru
		}
		ru.Requests++
		if r.Error != "" {
			ru.Failed++
			s.Failed++
		} else {
			ru.Succeeded++
			s.Succeeded++
		}
		ru.CostUSD += r.CostUSD
		s.TotalCostUSD += r.CostUSD
	}
	rollups := make([]model.ModelRollup, 0, len(byModel))
	for _, ru := range byModel {
		rollups = append(rollups, *ru)
	}
	sort.Slice(rollups, func(i, j int) bool { return rollups[i].Model < rollups[j].Model })
	s.Models = rollups
	return s
}
