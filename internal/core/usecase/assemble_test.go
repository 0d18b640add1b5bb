package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

type fullTextFake struct {
	text  string
	err   error
	calls int
}

func (f *fullTextFake) LoadFullText(context.Context, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type catalogFake struct {
	labels map[string]string
}

func (f *catalogFake) GetSourceLabel(_ context.Context, sourceID string) (string, error) {
	if label, ok := f.labels[sourceID]; ok {
		return label, nil
	}
	return "", domain.ErrSourceNotFound
}

func newAssembler() *contextAssembler {
	return &contextAssembler{
		cfg: assemblerConfig{
			MinScore:          0.3,
			MinChunkChars:     5,
			MaxContextTokens:  1000,
			ExpansionMaxChars: 100,
		},
	}
}

func assembledChunk(id, sourceID, text string, normalized float64) domain.ScoredChunk {
	return domain.ScoredChunk{
		Chunk:      domain.Chunk{ID: id, Text: text, OwnerID: "u1", SourceID: sourceID},
		Score:      normalized,
		Normalized: normalized,
	}
}

func TestAssembleEmptyInputReturnsSentinel(t *testing.T) {
	a := newAssembler()
	text, kept := a.Assemble(context.Background(), nil)
	if text != domain.NoRelevantContext {
		t.Fatalf("expected sentinel, got %q", text)
	}
	if kept != 0 {
		t.Fatalf("expected 0 kept, got %d", kept)
	}
}

func TestAssembleDropsLowQualityAndSignalsNoContext(t *testing.T) {
	a := newAssembler()
	chunks := []domain.ScoredChunk{
		assembledChunk("c1", "docA", "long enough but irrelevant", 0.05),
		assembledChunk("c2", "docA", "tiny", 0.9),
	}
	text, kept := a.Assemble(context.Background(), chunks)
	if text != domain.NoRelevantContext || kept != 0 {
		t.Fatalf("expected sentinel when everything is filtered, got %q kept=%d", text, kept)
	}
}

func TestAssembleFormatsSourceMarkers(t *testing.T) {
	a := newAssembler()
	a.catalog = &catalogFake{labels: map[string]string{"docA": "report.pdf"}}

	chunks := []domain.ScoredChunk{
		assembledChunk("c1", "docA", "The quarterly numbers improved.", 0.9),
		assembledChunk("c2", "docB", "Revenue grew in all regions.", 0.8),
	}
	text, kept := a.Assemble(context.Background(), chunks)
	if kept != 2 {
		t.Fatalf("expected 2 kept, got %d", kept)
	}
	if !strings.Contains(text, "[SOURCE 1: report.pdf]") {
		t.Fatalf("expected labelled marker, got:\n%s", text)
	}
	if !strings.Contains(text, "[SOURCE 2: docB]") {
		t.Fatalf("expected source-id fallback marker, got:\n%s", text)
	}
}

func TestAssembleRespectsTokenBudget(t *testing.T) {
	a := newAssembler()
	a.cfg.MaxContextTokens = 30

	big := strings.Repeat("Sentence number one is here. ", 20)
	chunks := []domain.ScoredChunk{
		assembledChunk("c1", "docA", big, 0.9),
		assembledChunk("c2", "docA", big, 0.8),
	}
	text, kept := a.Assemble(context.Background(), chunks)
	if kept != 1 {
		t.Fatalf("expected truncation to keep 1 chunk, got %d", kept)
	}
	if estimateTokens(text) > a.cfg.MaxContextTokens+estimateTokens(big) {
		t.Fatalf("budget exceeded beyond truncation slack: %d tokens", estimateTokens(text))
	}
	if !strings.Contains(text, "Sentence number one is here.") {
		t.Fatalf("expected sentence-truncated content, got:\n%s", text)
	}
}

func TestAssembleStopsWhenNothingFits(t *testing.T) {
	a := newAssembler()
	a.cfg.MaxContextTokens = 60

	fits := "This sentence fits into the budget easily."
	noRoom := strings.Repeat("An extremely long unbroken clause without terminators ", 40)
	chunks := []domain.ScoredChunk{
		assembledChunk("c1", "docA", fits, 0.9),
		assembledChunk("c2", "docA", noRoom, 0.8),
	}
	text, kept := a.Assemble(context.Background(), chunks)
	if kept != 1 {
		t.Fatalf("expected packing to stop at 1 chunk, got %d", kept)
	}
	if !strings.Contains(text, fits) {
		t.Fatalf("expected first chunk kept, got:\n%s", text)
	}
}

func TestAssembleExpandsStructuredChunksWithCap(t *testing.T) {
	a := newAssembler()
	loader := &fullTextFake{text: strings.Repeat("x", 500)}
	a.fulltext = loader

	chunk := assembledChunk("c1", "docA", "summary of the dataset rows", 0.9)
	chunk.IsStructured = true

	text, kept := a.Assemble(context.Background(), []domain.ScoredChunk{chunk})
	if kept != 1 {
		t.Fatalf("expected 1 kept, got %d", kept)
	}
	if loader.calls != 1 {
		t.Fatalf("expected one expansion call, got %d", loader.calls)
	}
	if !strings.Contains(text, truncationMarker) {
		t.Fatalf("expected truncation marker on capped expansion, got:\n%s", text)
	}
	if strings.Contains(text, strings.Repeat("x", 101)) {
		t.Fatalf("expansion exceeded cap")
	}
}

func TestAssembleExpansionCapKeepsValidUTF8(t *testing.T) {
	a := newAssembler()
	a.fulltext = &fullTextFake{text: strings.Repeat("é", 200)}

	chunk := assembledChunk("c1", "docA", "summary of the dataset rows", 0.9)
	chunk.IsStructured = true

	text, kept := a.Assemble(context.Background(), []domain.ScoredChunk{chunk})
	if kept != 1 {
		t.Fatalf("expected 1 kept, got %d", kept)
	}
	if !utf8.ValidString(text) {
		t.Fatalf("capped expansion produced invalid UTF-8:\n%q", text)
	}
	if got := strings.Count(text, "é"); got != 100 {
		t.Fatalf("expected cap at 100 runes, got %d", got)
	}
	if !strings.Contains(text, truncationMarker) {
		t.Fatalf("expected truncation marker, got:\n%s", text)
	}
}

func TestAssembleKeepsSummaryWhenExpansionFails(t *testing.T) {
	a := newAssembler()
	a.fulltext = &fullTextFake{err: errors.New("pg down")}

	chunk := assembledChunk("c1", "docA", "summary of the dataset rows", 0.9)
	chunk.IsStructured = true

	text, kept := a.Assemble(context.Background(), []domain.ScoredChunk{chunk})
	if kept != 1 {
		t.Fatalf("expected summary kept on expansion failure, got %d", kept)
	}
	if !strings.Contains(text, "summary of the dataset rows") {
		t.Fatalf("expected summary text, got:\n%s", text)
	}
}

func TestSplitSentencesBoundaryAware(t *testing.T) {
	text := "Dr. Smith measured 3.14 today. The result was stable! Was it repeatable? Yes."
	sentences := splitSentences(text)
	if len(sentences) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %q", len(sentences), sentences)
	}
	if !strings.HasPrefix(sentences[0], "Dr. Smith measured 3.14 today.") {
		t.Fatalf("abbreviation or decimal split too early: %q", sentences[0])
	}
}

func TestTruncateToSentencesNothingFits(t *testing.T) {
	if got := truncateToSentences("one long sentence that does not fit.", 2); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
