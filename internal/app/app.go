package app

import (
	"context"
	"fmt"
	"time"

	"github.com/medkg/backend/internal/config"
	"github.com/medkg/backend/internal/metrics"
	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/ai"
	oai "github.com/medkg/backend/pkg/ai/ollama"
	gai "github.com/medkg/backend/pkg/ai/openai"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/resolver"
	"github.com/medkg/backend/pkg/store"
	neo "github.com/medkg/backend/pkg/store/neo4j"
	pgs "github.com/medkg/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	connectTries   = 5
	connectBackoff = time.Second
)

// Deps are the long lived dependencies shared by the binaries.
type Deps struct {
	Config    *config.Config
	Store     store.Store
	AI        ai.Client
	Extractor *ai.Extractor
	Resolver  *resolver.Resolver
	Registry  *prometheus.Registry

	closers []func()
}

// Build connects the graph store and wires the resolver for cfg.
func Build(ctx context.Context, cfg *config.Config) (*Deps, error) {
	s, closeStore, err := NewGraphStore(ctx, cfg.Graph)
	if err != nil {
		return nil, err
	}

	d, err := assemble(cfg, s)
	if err != nil {
		closeStore()
		return nil, err
	}
	d.closers = append(d.closers, closeStore)
	return d, nil
}

func assemble(cfg *config.Config, s store.Store) (*Deps, error) {
	aiClient, err := NewAIClient(cfg.AI)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r, err := resolver.NewResolver(
		resolver.NewResolverParams{
			Store:    s,
			Embedder: aiClient,
			Config:   cfg.ResolverSettings(),
		},
		resolver.WithTracer(metrics.NewResolverMetrics(reg)),
	)
	if err != nil {
		return nil, err
	}

	return &Deps{
		Config:    cfg,
		Store:     s,
		AI:        aiClient,
		Extractor: ai.NewExtractor(aiClient, ai.WithMinConfidence(cfg.AI.MinConfidence)),
		Resolver:  r,
		Registry:  reg,
	}, nil
}

// Close releases the graph store connections.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// NewAIClient returns the embedding and extraction client of the configured
// adapter.
func NewAIClient(cfg config.AIConfig) (ai.Client, error) {
	switch cfg.Adapter {
	case config.AdapterOllama:
		client, err := oai.NewOllamaClient(oai.NewOllamaClientParams{
			EmbeddingModel:  cfg.EmbeddingModel,
			ExtractionModel: cfg.ExtractionModel,
			EmbeddingDim:    cfg.EmbeddingDim,

			BaseURL: cfg.ChatURL,
			ApiKey:  cfg.ChatKey,

			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
			Timeout:               cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, nil
	case config.AdapterOpenAI, "":
		return gai.NewOpenAIClient(gai.NewOpenAIClientParams{
			EmbeddingModel:  cfg.EmbeddingModel,
			ExtractionModel: cfg.ExtractionModel,
			EmbeddingDim:    cfg.EmbeddingDim,

			EmbeddingURL: cfg.EmbeddingURL,
			EmbeddingKey: cfg.EmbeddingKey,
			ChatURL:      cfg.ChatURL,
			ChatKey:      cfg.ChatKey,

			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
			Timeout:               cfg.Timeout,
		}), nil
	}
	return nil, fmt.Errorf("unknown AI adapter %q", cfg.Adapter)
}

// NewGraphStore connects to the configured backend, retrying while it comes
// up. The returned func closes the connection.
func NewGraphStore(ctx context.Context, cfg config.GraphConfig) (store.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendNeo4j:
		gs, err := util.RetryWithContext(ctx, connectTries, connectBackoff, func(ctx context.Context) (*neo.GraphStore, error) {
			gs, err := neo.NewGraphStore(ctx, neo.NewGraphStoreParams{
				URI:                   cfg.Neo4j.URI,
				User:                  cfg.Neo4j.User,
				Password:              cfg.Neo4j.Password,
				Database:              cfg.Neo4j.Database,
				MaxConnectionPoolSize: cfg.Neo4j.MaxConnectionPoolSize,
				ConnectionTimeout:     cfg.Neo4j.ConnectionTimeout,
			})
			if err != nil {
				logger.Warn("[App] Neo4j not reachable yet", "uri", cfg.Neo4j.URI, "err", err)
			}
			return gs, err
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[App] Connected to Neo4j", "uri", cfg.Neo4j.URI, "database", cfg.Neo4j.Database)
		return gs, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gs.Close(closeCtx); err != nil {
				logger.Error("[App] Failed to close Neo4j driver", "err", err)
			}
		}, nil

	case config.BackendPostgres:
		pool, err := util.RetryWithContext(ctx, connectTries, connectBackoff, func(ctx context.Context) (*pgxpool.Pool, error) {
			pool, err := pgs.NewPool(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
			if err != nil {
				logger.Warn("[App] Postgres not reachable yet", "err", err)
			}
			return pool, err
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[App] Connected to Postgres")
		return pgs.NewGraphStoreWithConnection(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
}
