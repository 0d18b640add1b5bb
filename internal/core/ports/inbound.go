package ports

import (
	"context"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Retriever is the inbound contract of the engine. Both operations are
// blocking, tenant-checked, and carry no cross-request state; callers impose
// their own timeout via ctx.
type Retriever interface {
	// RetrieveRaw returns up to k unformatted passages for the tenant.
	RetrieveRaw(ctx context.Context, query domain.Query, k int) ([]string, error)

	// RetrieveContext returns a ranked, deduplicated, token-budgeted passage of
	// text, or domain.NoRelevantContext when nothing qualifies.
	RetrieveContext(ctx context.Context, query domain.Query) (string, error)
}
