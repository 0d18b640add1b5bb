package usecase

import (
	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// realignReranked maps reranker output rows back onto the original candidates.
// The external scorer returns (text, score) pairs in arbitrary order and may
// repeat identical passage text, so matching uses a FIFO queue of original
// positions per text: duplicates each consume a distinct original slot.
// Unmatched reranker rows are dropped; originals the scorer never mentioned
// keep their pre-rerank order after the matched rows. Output is truncated to
// topK.
func realignReranked(original []domain.ScoredChunk, scored []domain.PassageScore, topK int) []domain.ScoredChunk {
	if len(original) == 0 {
		return nil
	}
	if topK <= 0 || topK > len(original) {
		topK = len(original)
	}

	pending := make(map[string][]int, len(original))
	for i, chunk := range original {
		pending[chunk.Text] = append(pending[chunk.Text], i)
	}

	matched := make([]bool, len(original))
	out := make([]domain.ScoredChunk, 0, topK)
	for _, row := range scored {
		queue := pending[row.Text]
		if len(queue) == 0 {
			continue
		}
		idx := queue[0]
		pending[row.Text] = queue[1:]

		chunk := original[idx]
		chunk.Score = row.Score
		chunk.Normalized = normalizeScore(row.Score)
		matched[idx] = true
		out = append(out, chunk)
	}

	for i, chunk := range original {
		if matched[i] {
			continue
		}
		out = append(out, chunk)
	}

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
