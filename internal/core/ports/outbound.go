package ports

import (
	"context"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// EmbeddingStore is the external vector index. Read-only from the engine's
// perspective; it handles its own internal concurrency.
type EmbeddingStore interface {
	// Query returns up to n chunks matching the filter, most similar first.
	// Implementations must reject filters that fail Validate().
	Query(ctx context.Context, queryVector []float32, n int, filter domain.RetrievalFilter) ([]domain.ScoredChunk, error)

	// Count reports the number of stored points. The engine clamps query sizes
	// to this value and short-circuits on zero.
	Count(ctx context.Context) (int, error)
}

// Embedder builds the query vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores query/passage pairs with an external cross-encoder. Output
// order and length are not guaranteed, and passage texts may repeat.
type Reranker interface {
	Score(ctx context.Context, query string, passages []string) ([]domain.PassageScore, error)
}

// FullTextLoader expands a structured summary chunk into the full dataset text
// addressed by its source id.
type FullTextLoader interface {
	LoadFullText(ctx context.Context, sourceID string) (string, error)
}

// SourceCatalog resolves a source id to a human-readable label (filename) for
// citation markers.
type SourceCatalog interface {
	GetSourceLabel(ctx context.Context, sourceID string) (string, error)
}

// AuditSink receives security events. Publishing is best-effort; a sink
// failure never affects the retrieval result.
type AuditSink interface {
	PublishOwnershipLeak(ctx context.Context, event domain.OwnershipLeakEvent) error
}
