package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
)

const truncationMarker = "… [truncated]"

type assemblerConfig struct {
	MinScore          float64
	MinChunkChars     int
	MaxContextTokens  int
	ExpansionMaxChars int
}

// contextAssembler packs scored chunks into a token budget with stable
// SOURCE markers. It never fails: empty or fully-filtered input yields the
// no-context sentinel.
type contextAssembler struct {
	cfg      assemblerConfig
	fulltext ports.FullTextLoader
	catalog  ports.SourceCatalog
}

// Assemble returns the formatted context and the number of chunks kept.
func (a *contextAssembler) Assemble(ctx context.Context, chunks []domain.ScoredChunk) (string, int) {
	kept := make([]domain.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Normalized < a.cfg.MinScore {
			continue
		}
		if len(strings.TrimSpace(chunk.Text)) < a.cfg.MinChunkChars {
			continue
		}
		kept = append(kept, chunk)
	}
	if len(kept) == 0 {
		return domain.NoRelevantContext, 0
	}

	var b strings.Builder
	budget := a.cfg.MaxContextTokens
	used := 0
	written := 0
	for _, chunk := range kept {
		text := a.expand(ctx, chunk)
		header := fmt.Sprintf("[SOURCE %d: %s]\n", written+1, a.sourceLabel(ctx, chunk))
		overhead := estimateTokens(header)
		tokens := overhead + estimateTokens(text)

		truncated := false
		if used+tokens > budget {
			text = truncateToSentences(text, budget-used-overhead)
			if text == "" {
				break
			}
			tokens = overhead + estimateTokens(text)
			truncated = true
		}

		if written > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(header)
		b.WriteString(text)
		used += tokens
		written++

		if truncated {
			break
		}
	}

	if written == 0 {
		return domain.NoRelevantContext, 0
	}
	return b.String(), written
}

// expand swaps a structured summary for its full dataset text, capped to bound
// memory use. Load failures keep the summary; retrieval must not fail because
// an expansion did.
func (a *contextAssembler) expand(ctx context.Context, chunk domain.ScoredChunk) string {
	if !chunk.IsStructured || a.fulltext == nil || chunk.SourceID == "" {
		return chunk.Text
	}

	full, err := a.fulltext.LoadFullText(ctx, chunk.SourceID)
	if err != nil {
		slog.Warn("full_text_expansion_failed", "source_id", chunk.SourceID, "error", err)
		return chunk.Text
	}
	if full == "" {
		return chunk.Text
	}
	if a.cfg.ExpansionMaxChars > 0 && len(full) > a.cfg.ExpansionMaxChars {
		// Cap on a rune boundary so the cut never emits invalid UTF-8.
		if runes := []rune(full); len(runes) > a.cfg.ExpansionMaxChars {
			full = string(runes[:a.cfg.ExpansionMaxChars]) + truncationMarker
		}
	}
	return full
}

func (a *contextAssembler) sourceLabel(ctx context.Context, chunk domain.ScoredChunk) string {
	if a.catalog != nil && chunk.SourceID != "" {
		label, err := a.catalog.GetSourceLabel(ctx, chunk.SourceID)
		if err == nil && label != "" {
			return label
		}
	}
	if chunk.Metadata.Filename != "" {
		return chunk.Metadata.Filename
	}
	if chunk.SourceID != "" {
		return chunk.SourceID
	}
	return "unknown"
}

// estimateTokens approximates token count as one token per four characters.
// Exact tokenization belongs to the model layer.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncateToSentences keeps the longest sentence prefix fitting maxTokens.
// Returns "" when not even the first sentence fits.
func truncateToSentences(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	sentences := splitSentences(text)

	var b strings.Builder
	used := 0
	for _, sentence := range sentences {
		tokens := estimateTokens(sentence)
		if used+tokens > maxTokens {
			break
		}
		b.WriteString(sentence)
		used += tokens
	}
	return strings.TrimSpace(b.String())
}

// splitSentences is boundary-aware rather than a naive split on ".": a
// terminator only closes a sentence when followed by whitespace and an
// upper-case letter, a digit, or end of text, which keeps abbreviations and
// decimals intact. Delimiters stay attached to their sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	sentences := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && isAbbreviation(precedingWord(runes, i)) {
			continue
		}
		end := i + 1
		for end < len(runes) && (runes[end] == '.' || runes[end] == '!' || runes[end] == '?') {
			end++
		}
		if !sentenceBoundary(runes, end) {
			i = end - 1
			continue
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		sentences = append(sentences, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

var abbreviations = map[string]struct{}{
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {}, "st": {},
	"vs": {}, "etc": {}, "fig": {}, "no": {}, "approx": {},
}

func isAbbreviation(word string) bool {
	if len(word) == 0 {
		return false
	}
	if len([]rune(word)) == 1 {
		// Initials like "J. Smith".
		return true
	}
	_, ok := abbreviations[strings.ToLower(word)]
	return ok
}

func precedingWord(runes []rune, i int) string {
	start := i
	for start > 0 && unicode.IsLetter(runes[start-1]) {
		start--
	}
	return string(runes[start:i])
}

func sentenceBoundary(runes []rune, end int) bool {
	if end >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[end]) {
		return false
	}
	for i := end; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		return unicode.IsUpper(runes[i]) || unicode.IsDigit(runes[i]) || unicode.IsPunct(runes[i])
	}
	return true
}
