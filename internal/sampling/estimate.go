package sampling

import "github.com/promptwatch/visibility/internal/llm"

// Nominal per-call token assumption behind the budget gate: a rendered
// prompt plus context snapshot in, a typical answer out.
const (
	estimateInputTokens  = 800
	estimateOutputTokens = 400
)

// EstimateCost projects the spend of a resolved option set before any
// request is issued: the expansion size times the average nominal
// per-call cost across the selected models.
func EstimateCost(catalog *llm.Catalog, opts Options) (float64, error) {
	if len(opts.Models) == 0 {
		return 0, nil
	}
	var sum float64
	for _, m := range opts.Models {
		cost, err := catalog.Cost(m, llm.Usage{Input: estimateInputTokens, Output: estimateOutputTokens})
		if err != nil {
			return 0, err
		}
		sum += cost.Total
	}
	avg := sum / float64(len(opts.Models))
	return float64(opts.Calls()) * avg, nil
}
