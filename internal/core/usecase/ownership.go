package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

const queryExcerptLimit = 80

// filterOwnership is the post-query safety net. It assumes the filter builder
// could have been bypassed and independently re-verifies every returned chunk
// against the requesting tenant. Mismatches are dropped from the batch along
// with their per-chunk data (score, embedding, id), audit-logged with a
// bounded query excerpt, counted, and published to the audit sink. The leaked
// text itself is never logged or forwarded.
func (uc *RetrievalUseCase) filterOwnership(ctx context.Context, tenant, queryText string, batch []domain.ScoredChunk) []domain.ScoredChunk {
	out := batch[:0]
	for _, chunk := range batch {
		if chunk.OwnerID == tenant {
			out = append(out, chunk)
			continue
		}

		slog.Error("ownership_leak_dropped",
			"audit", true,
			"tenant", tenant,
			"offending_owner", chunk.OwnerID,
			"chunk_id", chunk.ID,
			"query_excerpt", excerpt(queryText),
		)
		uc.metrics.RecordOwnershipLeak()

		if uc.audit != nil {
			event := domain.OwnershipLeakEvent{
				Tenant:         tenant,
				OffendingOwner: chunk.OwnerID,
				ChunkID:        chunk.ID,
				QueryExcerpt:   excerpt(queryText),
				OccurredAt:     time.Now().UTC(),
			}
			if err := uc.audit.PublishOwnershipLeak(ctx, event); err != nil {
				slog.Warn("audit_publish_failed", "error", err)
			}
		}
	}
	return out
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= queryExcerptLimit {
		return text
	}
	return string(runes[:queryExcerptLimit])
}
