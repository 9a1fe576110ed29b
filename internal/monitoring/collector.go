// Package monitoring watches the visibility engine from the outside:
// a collector snapshots queue depth, job and pipeline outcomes, and
// sampling spend from the store, and an alerter compares snapshots
// against configured thresholds, posting breaches to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

// brandFetchLimit bounds the spend roll-up. Deployments past this many
// brands should move spend aggregation into the store.
const brandFetchLimit = 500

// MetricsSnapshot is a point-in-time view of system health. Current
// fields reflect the live queue; windowed fields count rows created
// within the lookback.
type MetricsSnapshot struct {
	// Live queue state.
	JobsQueued  int `json:"jobs_queued"`
	JobsRunning int `json:"jobs_running"`

	// Job outcomes within the lookback window.
	JobsComplete  int     `json:"jobs_complete"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsCancelled int     `json:"jobs_cancelled"`
	JobFailRate   float64 `json:"job_fail_rate"`

	// Pipeline outcomes within the lookback window.
	PipelinesRunning   int     `json:"pipelines_running"`
	PipelinesComplete  int     `json:"pipelines_complete"`
	PipelinesFailed    int     `json:"pipelines_failed"`
	PipelinesCancelled int     `json:"pipelines_cancelled"`
	PipelineFailRate   float64 `json:"pipeline_fail_rate"`

	// Sampling spend across all brands.
	Brands      int     `json:"brands"`
	Spend24hUSD float64 `json:"spend_24h_usd"`
	Spend30dUSD float64 `json:"spend_30d_usd"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers snapshots from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector over the given store.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot. Windowed counts cover the last
// lookbackHours; live queue state ignores the window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	now := time.Now().UTC()
	since := now.Add(-time.Duration(lookbackHours) * time.Hour)

	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	live, err := c.store.CountJobsByStatus(ctx, time.Time{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count live jobs")
	}
	snap.JobsQueued = live[model.JobStatusQueued]
	snap.JobsRunning = live[model.JobStatusRunning]

	window, err := c.store.CountJobsByStatus(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count windowed jobs")
	}
	snap.JobsComplete = window[model.JobStatusComplete]
	snap.JobsFailed = window[model.JobStatusFailed]
	snap.JobsCancelled = window[model.JobStatusCancelled]
	if finished := snap.JobsComplete + snap.JobsFailed; finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}

	plive, err := c.store.CountPipelinesByStatus(ctx, time.Time{})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count live pipelines")
	}
	snap.PipelinesRunning = plive[model.PipelineStatusRunning]

	pwindow, err := c.store.CountPipelinesByStatus(ctx, since)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count windowed pipelines")
	}
	snap.PipelinesComplete = pwindow[model.PipelineStatusComplete]
	snap.PipelinesFailed = pwindow[model.PipelineStatusFailed]
	snap.PipelinesCancelled = pwindow[model.PipelineStatusCancelled]
	if finished := snap.PipelinesComplete + snap.PipelinesFailed; finished > 0 {
		snap.PipelineFailRate = float64(snap.PipelinesFailed) / float64(finished)
	}

	brands, err := c.store.ListBrands(ctx, brandFetchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list brands")
	}
	snap.Brands = len(brands)
	for _, b := range brands {
		day, err := c.store.TrailingSpend(ctx, b.ID, now.Add(-24*time.Hour))
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: trailing spend %s", b.ID)
		}
		month, err := c.store.TrailingSpend(ctx, b.ID, now.Add(-30*24*time.Hour))
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: trailing spend %s", b.ID)
		}
		snap.Spend24hUSD += day
		snap.Spend30dUSD += month
	}

	return snap, nil
}
