package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
	"github.com/kirillkom/retrieval-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/retrieval-engine/internal/observability/metrics"
)

// RetrievalParams are the per-deployment retrieval knobs. Zero values fall
// back to defaults via normalize.
type RetrievalParams struct {
	TopK              int     // final context size
	CandidatePool     int     // candidates fetched from the store before quality steps
	RerankPool        int     // candidates kept for the reranker after diversification
	MMRLambda         float64 // relevance weight in [0,1]
	MinPerSource      int
	MaxPerSource      int
	MinScore          float64
	MinChunkChars     int
	MaxContextTokens  int
	ExpansionMaxChars int
}

func (p RetrievalParams) normalize() RetrievalParams {
	out := p
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.CandidatePool <= 0 {
		out.CandidatePool = 30
	}
	if out.RerankPool <= 0 {
		out.RerankPool = 20
	}
	if out.MMRLambda <= 0 || out.MMRLambda > 1 {
		out.MMRLambda = 0.7
	}
	if out.MinPerSource <= 0 {
		out.MinPerSource = 1
	}
	if out.MaxPerSource < out.MinPerSource {
		out.MaxPerSource = out.MinPerSource + 2
	}
	if out.MinScore <= 0 {
		out.MinScore = 0.25
	}
	if out.MinChunkChars <= 0 {
		out.MinChunkChars = 40
	}
	if out.MaxContextTokens <= 0 {
		out.MaxContextTokens = 1500
	}
	if out.ExpansionMaxChars <= 0 {
		out.ExpansionMaxChars = 8000
	}
	return out
}

// RetrievalUseCase sequences filter construction, the store query, ownership
// validation, diversification, reranking, source balancing, and context
// assembly for one request. It holds no mutable state; concurrent calls are
// independent.
type RetrievalUseCase struct {
	embedder ports.Embedder
	store    ports.EmbeddingStore
	reranker ports.Reranker
	fulltext ports.FullTextLoader
	catalog  ports.SourceCatalog
	audit    ports.AuditSink
	executor *resilience.Executor
	metrics  *metrics.RetrievalMetrics
	params   RetrievalParams
}

func NewRetrievalUseCase(
	embedder ports.Embedder,
	store ports.EmbeddingStore,
	reranker ports.Reranker,
	fulltext ports.FullTextLoader,
	catalog ports.SourceCatalog,
	audit ports.AuditSink,
	executor *resilience.Executor,
	retrievalMetrics *metrics.RetrievalMetrics,
	params RetrievalParams,
) *RetrievalUseCase {
	return &RetrievalUseCase{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		fulltext: fulltext,
		catalog:  catalog,
		audit:    audit,
		executor: executor,
		metrics:  retrievalMetrics,
		params:   params.normalize(),
	}
}

var _ ports.Retriever = (*RetrievalUseCase)(nil)

// RetrieveContext is the primary entry point: it returns a formatted,
// token-budgeted context or domain.NoRelevantContext. Tenant isolation errors
// always propagate; quality-step failures degrade gracefully.
func (uc *RetrievalUseCase) RetrieveContext(ctx context.Context, q domain.Query) (string, error) {
	started := time.Now()
	requestID := uuid.NewString()

	chunks, outcome, err := uc.retrieve(ctx, requestID, q, 0)
	if err != nil {
		uc.metrics.RecordRequest("context", outcome, time.Since(started))
		return "", err
	}
	if len(chunks) == 0 {
		uc.metrics.RecordNoContext()
		uc.metrics.RecordRequest("context", "no_context", time.Since(started))
		return domain.NoRelevantContext, nil
	}

	assembler := &contextAssembler{
		cfg: assemblerConfig{
			MinScore:          uc.params.MinScore,
			MinChunkChars:     uc.params.MinChunkChars,
			MaxContextTokens:  uc.params.MaxContextTokens,
			ExpansionMaxChars: uc.params.ExpansionMaxChars,
		},
		fulltext: uc.fulltext,
		catalog:  uc.catalog,
	}
	text, kept := assembler.Assemble(ctx, chunks)
	if kept == 0 {
		uc.metrics.RecordNoContext()
		uc.metrics.RecordRequest("context", "no_context", time.Since(started))
		return domain.NoRelevantContext, nil
	}

	uc.metrics.RecordContextTokens(estimateTokens(text))
	uc.metrics.RecordRequest("context", "ok", time.Since(started))
	slog.Info("retrieval_completed",
		"request_id", requestID,
		"tenant", q.Tenant,
		"chunks_kept", kept,
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
	)
	return text, nil
}

// RetrieveRaw returns up to k unformatted passages, tenant-checked but
// without diversification, reranking, or assembly.
func (uc *RetrievalUseCase) RetrieveRaw(ctx context.Context, q domain.Query, k int) ([]string, error) {
	started := time.Now()
	requestID := uuid.NewString()

	if k <= 0 {
		k = uc.params.TopK
	}
	raw := q
	raw.Diversify = false
	raw.Rerank = false

	chunks, outcome, err := uc.retrieve(ctx, requestID, raw, k)
	if err != nil {
		uc.metrics.RecordRequest("raw", outcome, time.Since(started))
		return nil, err
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}

	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	uc.metrics.RecordRequest("raw", "ok", time.Since(started))
	return texts, nil
}

// retrieve runs the shared pipeline up to (and including) balancing. finalK=0
// means "use configured TopK". The outcome string is only meaningful when err
// is non-nil.
func (uc *RetrievalUseCase) retrieve(ctx context.Context, requestID string, q domain.Query, finalK int) ([]domain.ScoredChunk, string, error) {
	filter, err := BuildFilter(q.Tenant, q.CollectionID, q.SourceIDs)
	if err != nil {
		uc.metrics.RecordTenantRejection()
		return nil, "tenant_rejected", err
	}
	// Defense in depth: re-check independently of the builder before anything
	// reaches the store.
	if err := filter.Validate(); err != nil {
		uc.metrics.RecordTenantRejection()
		return nil, "tenant_rejected", domain.WrapError(domain.ErrTenantIsolation, "validate filter", err)
	}
	tenant := filter.Tenant()

	if strings.TrimSpace(q.Text) == "" {
		return nil, "error", domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("query text is required"))
	}

	count, err := uc.storeCount(ctx)
	if err != nil {
		return nil, "error", domain.WrapError(domain.ErrTemporary, "count store", err)
	}
	if count == 0 {
		return nil, "", nil
	}

	sources := compactIDs(q.SourceIDs)
	multiSource := len(sources) > 1

	if finalK <= 0 {
		finalK = uc.params.TopK
	}
	pool := uc.params.CandidatePool
	if multiSource && isComparisonQuery(q.Text) {
		// Comparison queries need deeper per-document coverage.
		pool *= 2
		finalK *= 2
	}
	// Callers may ask for more passages than the configured pool.
	if pool < finalK {
		pool = finalK
	}
	if pool > count {
		pool = count
	}

	queryVec, err := uc.embedQuery(ctx, q.Text)
	if err != nil {
		return nil, "error", domain.WrapError(domain.ErrTemporary, "embed query", err)
	}

	chunks, err := uc.storeQuery(ctx, queryVec, pool, filter)
	if err != nil {
		return nil, "error", domain.WrapError(domain.ErrTemporary, "query store", err)
	}

	chunks = uc.filterOwnership(ctx, tenant, q.Text, chunks)
	uc.metrics.RecordRetrievedChunks(len(chunks))
	if len(chunks) == 0 {
		return nil, "", nil
	}

	for i := range chunks {
		chunks[i].Normalized = normalizeScore(chunks[i].Score)
	}

	if q.Diversify {
		chunks = uc.diversify(ctx, requestID, queryVec, chunks, q.Rerank, multiSource, finalK)
	}
	if q.Rerank && uc.reranker != nil {
		chunks = uc.rerank(ctx, requestID, q.Text, chunks, multiSource, finalK)
	}

	if multiSource {
		chunks = balanceSources(chunks, uc.params.MinPerSource, uc.params.MaxPerSource, finalK)
	} else if len(chunks) > finalK {
		chunks = chunks[:finalK]
	}
	return chunks, "", nil
}

// diversify applies MMR and falls back to the original order on failure; a
// worse-ranked but still isolated result beats a failed request.
func (uc *RetrievalUseCase) diversify(ctx context.Context, requestID string, queryVec []float32, chunks []domain.ScoredChunk, rerankNext, multiSource bool, finalK int) []domain.ScoredChunk {
	target := finalK
	switch {
	case multiSource:
		// The balancer needs the full pool to guarantee per-source
		// representation, same as the rerank path keeping every chunk.
		target = len(chunks)
	case rerankNext:
		target = uc.params.RerankPool
	}
	if target > len(chunks) {
		target = len(chunks)
	}

	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		embeddings[i] = chunk.Embedding
	}

	indices, err := diversifyMMR(queryVec, embeddings, uc.params.MMRLambda, target)
	if err != nil {
		slog.Warn("diversifier_fallback", "request_id", requestID, "error", err)
		uc.metrics.RecordDiversifierFallback()
		if len(chunks) > target {
			return chunks[:target]
		}
		return chunks
	}

	out := make([]domain.ScoredChunk, 0, len(indices))
	for _, idx := range indices {
		out = append(out, chunks[idx])
	}
	return out
}

// rerank calls the external cross-encoder and realigns its output, falling
// back to the pre-rerank head on failure.
func (uc *RetrievalUseCase) rerank(ctx context.Context, requestID, queryText string, chunks []domain.ScoredChunk, multiSource bool, finalK int) []domain.ScoredChunk {
	keep := finalK
	if multiSource {
		// The balancer needs the full scored pool to guarantee representation.
		keep = len(chunks)
	}

	passages := make([]string, len(chunks))
	for i, chunk := range chunks {
		passages[i] = chunk.Text
	}

	scored, err := uc.scorePassages(ctx, queryText, passages)
	if err != nil {
		err = domain.WrapError(domain.ErrRerankerFailure, "score passages", err)
		slog.Warn("reranker_fallback", "request_id", requestID, "error", err)
		uc.metrics.RecordRerankerFallback()
		if len(chunks) > keep {
			return chunks[:keep]
		}
		return chunks
	}
	return realignReranked(chunks, scored, keep)
}

func (uc *RetrievalUseCase) storeCount(ctx context.Context) (int, error) {
	var count int
	call := func(ctx context.Context) error {
		var err error
		count, err = uc.store.Count(ctx)
		return err
	}
	if err := uc.execute(ctx, "store.count", call); err != nil {
		return 0, err
	}
	return count, nil
}

func (uc *RetrievalUseCase) storeQuery(ctx context.Context, queryVec []float32, n int, filter domain.RetrievalFilter) ([]domain.ScoredChunk, error) {
	var chunks []domain.ScoredChunk
	call := func(ctx context.Context) error {
		var err error
		chunks, err = uc.store.Query(ctx, queryVec, n, filter)
		return err
	}
	if err := uc.execute(ctx, "store.query", call); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (uc *RetrievalUseCase) embedQuery(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	call := func(ctx context.Context) error {
		var err error
		vec, err = uc.embedder.EmbedQuery(ctx, text)
		return err
	}
	if err := uc.execute(ctx, "embedder.embed_query", call); err != nil {
		return nil, err
	}
	return vec, nil
}

func (uc *RetrievalUseCase) scorePassages(ctx context.Context, query string, passages []string) ([]domain.PassageScore, error) {
	var scored []domain.PassageScore
	call := func(ctx context.Context) error {
		var err error
		scored, err = uc.reranker.Score(ctx, query, passages)
		return err
	}
	if err := uc.execute(ctx, "reranker.score", call); err != nil {
		return nil, err
	}
	return scored, nil
}

func (uc *RetrievalUseCase) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if uc.executor == nil {
		return call(ctx)
	}
	return uc.executor.Execute(ctx, operation, call, classifyExternalError)
}

// External collaborators never trigger internal retries; failures only feed
// the circuit breaker.
func classifyExternalError(error) resilience.ErrorClassification {
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
