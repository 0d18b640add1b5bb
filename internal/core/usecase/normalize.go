package usecase

import "math"

// normalizeScore maps a raw relevance score onto [0,1]. Scores already in
// (0,1] pass through unchanged (cosine similarities, provider sentinels of
// 1.0); anything else is squashed with the logistic function, which keeps
// moderately-relevant-but-negative cross-encoder logits in play instead of
// discarding them. Pure function, no side effects.
func normalizeScore(raw float64) float64 {
	if raw > 0 && raw <= 1 {
		return raw
	}
	return 1.0 / (1.0 + math.Exp(-raw))
}
