package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/promptwatch/visibility/internal/llm"
	"github.com/promptwatch/visibility/internal/monitoring"
	"github.com/promptwatch/visibility/internal/pipeline"
	"github.com/promptwatch/visibility/internal/report"
	"github.com/promptwatch/visibility/internal/sampling"
	"github.com/promptwatch/visibility/internal/scoring"
	"github.com/promptwatch/visibility/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.Path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// runEnv holds the initialized store and engines the serve/work
// commands share.
type runEnv struct {
	Store       store.Store
	Invoker     *llm.Client
	Coordinator *pipeline.Coordinator
	Engines     pipeline.Engines
	Collector   *monitoring.Collector
}

// Close releases resources held by the environment.
func (e *runEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for the given mode, opens and migrates the
// store, and wires the stage engines. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*runEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := llm.NewClientFromConfig(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engines := pipeline.Engines{
		Sampler:  sampling.NewEngine(st, client, client.Catalog(), cfg.Sampling),
		Scorer:   scoring.NewEngine(st, cfg.Scoring),
		Reporter: report.NewAssembler(st, report.NewFileStore(cfg.Report.OutputDir)),
	}

	return &runEnv{
		Store:       st,
		Invoker:     client,
		Coordinator: pipeline.NewCoordinator(st),
		Engines:     engines,
		Collector:   monitoring.NewCollector(st),
	}, nil
}
