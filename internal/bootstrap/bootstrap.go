package bootstrap

import (
	"context"
	"fmt"

	"github.com/kirillkom/retrieval-engine/internal/config"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
	"github.com/kirillkom/retrieval-engine/internal/core/usecase"
	auditnats "github.com/kirillkom/retrieval-engine/internal/infrastructure/audit/nats"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/cache"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/embedder/ollama"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/fulltext/postgres"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/reranker/crossencoder"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/retrieval-engine/internal/observability/metrics"
)

const serviceName = "retrieval-engine"

type App struct {
	Config config.Config

	Retriever     ports.Retriever
	Metrics       *metrics.RetrievalMetrics
	ServerMetrics *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sources := postgres.NewSourceRepository(db)
	if err := sources.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	labels := cache.NewSourceLabels(sources)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	audit, err := auditnats.NewWithOptions(cfg.NATSURL, cfg.NATSAuditSubject, auditnats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit sink: %w", err)
	}

	embedder := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel)
	store := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)
	reranker := crossencoder.New(cfg.RerankerURL, cfg.RerankerModel)

	retrievalMetrics := metrics.NewRetrievalMetrics(serviceName)
	serverMetrics := metrics.NewHTTPServerMetrics(serviceName, retrievalMetrics)

	retriever := usecase.NewRetrievalUseCase(
		embedder,
		store,
		reranker,
		sources,
		labels,
		audit,
		executor,
		retrievalMetrics,
		usecase.RetrievalParams{
			TopK:              cfg.RetrievalTopK,
			CandidatePool:     cfg.RetrievalCandidatePool,
			RerankPool:        cfg.RetrievalRerankPool,
			MMRLambda:         cfg.RetrievalMMRLambda,
			MinPerSource:      cfg.RetrievalMinPerSource,
			MaxPerSource:      cfg.RetrievalMaxPerSource,
			MinScore:          cfg.RetrievalMinScore,
			MinChunkChars:     cfg.RetrievalMinChunkChars,
			MaxContextTokens:  cfg.ContextMaxTokens,
			ExpansionMaxChars: cfg.ExpansionMaxChars,
		},
	)

	return &App{
		Config: cfg,

		Retriever:     retriever,
		Metrics:       retrievalMetrics,
		ServerMetrics: serverMetrics,

		closeFn: func() {
			audit.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
