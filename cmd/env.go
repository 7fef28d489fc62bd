package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ledgerline/docaudit/internal/semantic"
	"github.com/ledgerline/docaudit/internal/store"
	"github.com/ledgerline/docaudit/internal/workflow"
)

// auditEnv holds the initialized store and orchestrator shared by the
// process/batch/queue/feedback/report/serve commands.
type auditEnv struct {
	Store        store.Store
	Orchestrator *workflow.Orchestrator
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "docaudit.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		pool := &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, pool)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv opens the store, runs migrations, and builds the orchestrator with
// the configured thresholds and semantic analyzer. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*auditEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	r, err := cfg.Rules.Rules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var analyzer semantic.Analyzer = semantic.Noop{}
	if cfg.Anthropic.Key != "" {
		analyzer = semantic.NewClaude(cfg.Anthropic.Key,
			semantic.WithModel(cfg.Anthropic.Model),
			semantic.WithRequestsPerSecond(cfg.Anthropic.RequestsPerSecond),
		)
		zap.L().Info("semantic analysis enabled", zap.String("model", cfg.Anthropic.Model))
	} else {
		zap.L().Debug("DOCAUDIT_ANTHROPIC_KEY not set, semantic analysis disabled")
	}

	orch := workflow.New(st, workflow.Options{
		Rules:         r,
		Analyzer:      analyzer,
		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      time.Duration(cfg.Cache.TTLHours) * time.Hour,
	})

	// Stored rule versions from prior reviewer feedback win over the
	// config-file layer.
	if err := orch.LoadStoredRules(ctx); err != nil {
		zap.L().Warn("stored rules not loaded, using config thresholds", zap.Error(err))
	}

	return &auditEnv{Store: st, Orchestrator: orch}, nil
}
