package usecase

import (
	"fmt"
	"math"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// diversifyMMR reorders candidates with Max Marginal Relevance: pick the most
// query-similar candidate first, then greedily maximize
// lambda*relevance - (1-lambda)*max_similarity(candidate, selected) until k
// indices are chosen. Cosine similarity on L2-normalized vectors throughout.
//
// Returns the selected original indices. Malformed input (missing or
// dimension-mismatched embeddings) yields ErrDiversifierFailure; the caller
// falls back to the original order instead of failing the request.
func diversifyMMR(queryVec []float32, candidates [][]float32, lambda float64, k int) ([]int, error) {
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}
	if len(candidates) <= k {
		return identityIndices(len(candidates)), nil
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}

	query, err := l2Normalize(queryVec)
	if err != nil {
		return nil, domain.WrapError(domain.ErrDiversifierFailure, "normalize query vector", err)
	}

	normalized := make([][]float32, len(candidates))
	for i, vec := range candidates {
		if len(vec) != len(queryVec) {
			return nil, domain.WrapError(
				domain.ErrDiversifierFailure,
				"normalize candidate vector",
				fmt.Errorf("candidate %d has dimension %d, query has %d", i, len(vec), len(queryVec)),
			)
		}
		normalized[i], err = l2Normalize(vec)
		if err != nil {
			return nil, domain.WrapError(domain.ErrDiversifierFailure, "normalize candidate vector", err)
		}
	}

	relevance := make([]float64, len(normalized))
	for i, vec := range normalized {
		relevance[i] = dot(query, vec)
	}

	selected := make([]int, 0, k)
	// maxSim[i] tracks similarity to the closest already-selected candidate.
	maxSim := make([]float64, len(normalized))
	picked := make([]bool, len(normalized))

	first := argmax(relevance, picked)
	selected = append(selected, first)
	picked[first] = true
	for i := range maxSim {
		maxSim[i] = dot(normalized[first], normalized[i])
	}

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range normalized {
			if picked[i] {
				continue
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim[i]
			if score > bestScore {
				bestScore = score
				best = i
			}
		}
		if best < 0 {
			break
		}
		selected = append(selected, best)
		picked[best] = true
		for i := range maxSim {
			if sim := dot(normalized[best], normalized[i]); sim > maxSim[i] {
				maxSim[i] = sim
			}
		}
	}

	return selected, nil
}

func identityIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func argmax(values []float64, skip []bool) int {
	best := 0
	bestValue := math.Inf(-1)
	for i, v := range values {
		if skip[i] {
			continue
		}
		if v > bestValue {
			bestValue = v
			best = i
		}
	}
	return best
}

func l2Normalize(vec []float32) ([]float32, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, fmt.Errorf("embedding has invalid norm")
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
