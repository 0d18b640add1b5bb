package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// balanceSources enforces per-source representation when a query scopes more
// than one document. Every source keeps up to minPerSource of its
// highest-scoring chunks even when another source outscores it everywhere;
// remaining slots fill from the cross-source overflow pool (beyond min, within
// maxPerSource per source) by score descending. The result is sorted by score
// descending and truncated to finalK.
func balanceSources(chunks []domain.ScoredChunk, minPerSource, maxPerSource, finalK int) []domain.ScoredChunk {
	if finalK <= 0 || len(chunks) == 0 {
		return nil
	}
	if minPerSource < 0 {
		minPerSource = 0
	}
	if maxPerSource < minPerSource {
		maxPerSource = minPerSource
	}

	groups := make(map[string][]domain.ScoredChunk)
	order := make([]string, 0, 4)
	for _, chunk := range chunks {
		if _, ok := groups[chunk.SourceID]; !ok {
			order = append(order, chunk.SourceID)
		}
		groups[chunk.SourceID] = append(groups[chunk.SourceID], chunk)
	}

	if len(groups) <= 1 {
		return topByScore(chunks, finalK)
	}

	guaranteed := make([]domain.ScoredChunk, 0, len(groups)*minPerSource)
	overflow := make([]domain.ScoredChunk, 0, len(chunks))
	for _, sourceID := range order {
		group := groups[sourceID]
		sortByScoreDesc(group)
		take := minPerSource
		if take > len(group) {
			take = len(group)
		}
		guaranteed = append(guaranteed, group[:take]...)

		limit := maxPerSource
		if limit > len(group) {
			limit = len(group)
		}
		overflow = append(overflow, group[take:limit]...)
	}

	sortByScoreDesc(guaranteed)
	if len(guaranteed) >= finalK {
		return guaranteed[:finalK]
	}

	sortByScoreDesc(overflow)
	remaining := finalK - len(guaranteed)
	if remaining > len(overflow) {
		remaining = len(overflow)
	}

	out := append(guaranteed, overflow[:remaining]...)
	sortByScoreDesc(out)
	return out
}

func topByScore(chunks []domain.ScoredChunk, k int) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(chunks))
	copy(out, chunks)
	sortByScoreDesc(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortByScoreDesc(chunks []domain.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		if chunks[i].SourceID != chunks[j].SourceID {
			return chunks[i].SourceID < chunks[j].SourceID
		}
		return chunks[i].ID < chunks[j].ID
	})
}

// isComparisonQuery detects comparison language ("compare", "versus",
// "difference between", "X vs Y"). Comparison queries widen per-source and
// final counts before balancing, since they need deeper per-document coverage.
func isComparisonQuery(text string) bool {
	lowered := strings.ToLower(text)
	for _, marker := range []string{"compare", "comparison", "versus", "difference between"} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	for _, token := range strings.Fields(lowered) {
		if token == "vs" || token == "vs." {
			return true
		}
	}
	return false
}
