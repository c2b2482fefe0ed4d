package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/usecase-cli/internal/extract"
	"github.com/sells-group/usecase-cli/internal/gateway"
	"github.com/sells-group/usecase-cli/internal/llm"
	"github.com/sells-group/usecase-cli/internal/pipeline"
	"github.com/sells-group/usecase-cli/internal/store"
)

// env bundles the wired pipeline components for one command invocation.
type env struct {
	Store        store.Store
	Gateway      *gateway.Gateway
	Orchestrator *pipeline.Orchestrator
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "usecase.db"
		}
		return store.NewSQLite(ctx, dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline wires store, gateway, and orchestrator from config.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	prompts, err := gateway.LoadPromptPack(cfg.LLM.PromptPack)
	if err != nil {
		st.Close()
		return nil, err
	}

	gw := gateway.New(st, llm.NewClient, cfg.LLM.Provider, llm.Config{
		Model:       cfg.LLM.Model,
		MaxTokens:   int64(cfg.LLM.MaxTokens),
		Temperature: cfg.LLM.Temperature,
	}, prompts, gateway.Options{
		BatchSize:  cfg.Pipeline.BatchSize,
		MaxBatches: cfg.Pipeline.MaxBatches,
	})

	detector := pipeline.NewDetector(gw, pipeline.Thresholds{
		Upper: cfg.Pipeline.UpperThreshold,
		Lower: cfg.Pipeline.LowerThreshold,
	})

	var limiter *rate.Limiter
	if cfg.Pipeline.AnalysisCallsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pipeline.AnalysisCallsPerSec), 1)
	}
	engine := pipeline.NewEngine(st, gw, detector, cfg.Pipeline.ChunkSize, limiter)

	dispatcher := extract.NewDispatcher(extract.DefaultRegistry(), st, cfg.Pipeline.ExtractConcurrency)
	intake := pipeline.NewIntake(st, dispatcher)

	orch := pipeline.NewOrchestrator(st, intake, engine,
		time.Duration(cfg.Pipeline.PollTimeoutSecs)*time.Second,
		time.Duration(cfg.Pipeline.PollIntervalMillis)*time.Millisecond)

	return &env{Store: st, Gateway: gw, Orchestrator: orch}, nil
}
