package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scholargraph/enrich-cli/internal/enrich"
	"github.com/scholargraph/enrich-cli/internal/match"
	"github.com/scholargraph/enrich-cli/internal/orchestrator"
	"github.com/scholargraph/enrich-cli/internal/progress"
	"github.com/scholargraph/enrich-cli/internal/resilience"
	"github.com/scholargraph/enrich-cli/internal/store"
	anthropicpkg "github.com/scholargraph/enrich-cli/pkg/anthropic"
	"github.com/scholargraph/enrich-cli/pkg/arxiv"
	"github.com/scholargraph/enrich-cli/pkg/orcid"
	"github.com/scholargraph/enrich-cli/pkg/pdftext"
	"github.com/scholargraph/enrich-cli/pkg/tavily"
)

// pipelineEnv holds the initialized stores, clients, and orchestrator
// needed by the process/resume commands.
type pipelineEnv struct {
	Store        store.Store
	Progress     progress.Store
	Feed         arxiv.Client
	Keys         *resilience.KeyRing // nil when role search is disabled
	Orchestrator *orchestrator.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Progress != nil {
		_ = pe.Progress.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up both stores, all API clients, and the orchestrator.
// keyStart picks the web-search credential the rotation begins at; a resume
// passes the index persisted when the previous run exhausted its quota.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, keyStart int) (*pipelineEnv, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("ENRICH_STORE_DATABASE_URL is required")
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("ENRICH_ANTHROPIC_KEY is required")
	}

	resolver := match.NewResolver(cfg.Match.DirectoryThreshold, cfg.Match.RoleThreshold)

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	}, resolver)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	prog, err := progress.NewSQLite(cfg.Progress.Path)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if err := prog.Migrate(ctx); err != nil {
		_ = prog.Close()
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate progress store")
	}

	feed := arxiv.NewClient(
		arxiv.WithBaseURL(cfg.Arxiv.BaseURL),
		arxiv.WithRateLimit(time.Duration(cfg.Arxiv.RateIntervalSecs)*time.Second),
	)
	llm := anthropicpkg.NewClient(cfg.Anthropic.Key)
	registry := orcid.NewClient(
		orcid.WithBaseURL(cfg.Orcid.BaseURL),
		orcid.WithRows(cfg.Orcid.Rows),
	)
	pages := pdftext.NewExtractor()

	retry := resilience.DefaultRetryConfig()
	if cfg.Pipeline.MaxRetries > 0 {
		retry.MaxAttempts = cfg.Pipeline.MaxRetries
	}

	affiliations := enrich.NewAffiliationWorker(llm, pages, cfg.Anthropic.Model, retry)
	lookup := enrich.NewRegistryWorker(registry, resolver, retry)

	// The web-search fallback stage is optional: without credentials the
	// pipeline still enriches from the registry alone.
	var roles enrich.RoleFinder
	var keys *resilience.KeyRing
	if cfg.Pipeline.RoleSearchEnabled && len(cfg.Tavily.Keys) > 0 {
		keys, err = resilience.NewKeyRing(cfg.Tavily.Keys, keyStart)
		if err != nil {
			_ = prog.Close()
			_ = st.Close()
			return nil, err
		}
		search := tavily.NewClient(tavily.WithBaseURL(cfg.Tavily.BaseURL))
		roles = enrich.NewRoleSearchWorker(search, keys, llm, cfg.Anthropic.Model, retry)
	} else {
		zap.L().Info("role search disabled",
			zap.Bool("enabled", cfg.Pipeline.RoleSearchEnabled),
			zap.Int("keys", len(cfg.Tavily.Keys)),
		)
	}

	coordinator := enrich.NewCoordinator(affiliations, lookup, roles, enrich.Limits{
		Affiliation: cfg.Pipeline.AffiliationWorkers,
		Registry:    cfg.Pipeline.RegistryWorkers,
		RoleSearch:  cfg.Pipeline.RoleSearchWorkers,
	})

	opts := []orchestrator.Option{orchestrator.WithSliceSize(cfg.Pipeline.SliceSize)}
	if keys != nil {
		opts = append(opts, orchestrator.WithKeyRing(keys))
	}

	return &pipelineEnv{
		Store:        st,
		Progress:     prog,
		Feed:         feed,
		Keys:         keys,
		Orchestrator: orchestrator.New(feed, coordinator, st, prog, opts...),
	}, nil
}
