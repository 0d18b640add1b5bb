package domain

import "time"

// NoRelevantContext is the sentinel returned when retrieval finds nothing worth
// assembling. Callers display it as a normal outcome, not a failure.
const NoRelevantContext = "no relevant context"

// ChunkMetadata carries the known optional fields plus a string-keyed side
// table for provider-specific extras.
type ChunkMetadata struct {
	Filename string            `json:"filename,omitempty"`
	Section  string            `json:"section,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Chunk is one immutable unit of retrievable text.
type Chunk struct {
	ID           string        `json:"id"`
	Text         string        `json:"text"`
	Embedding    []float32     `json:"-"`
	OwnerID      string        `json:"owner_id"`
	SourceID     string        `json:"source_id"`
	CollectionID string        `json:"collection_id,omitempty"`
	IsStructured bool          `json:"is_structured,omitempty"`
	Metadata     ChunkMetadata `json:"metadata,omitempty"`
}

// ScoredChunk pairs a chunk with its provider-specific raw score and, after
// normalization, a score in [0,1]. Request-scoped, never persisted.
type ScoredChunk struct {
	Chunk
	Score      float64 `json:"score"`
	Normalized float64 `json:"normalized_score"`
}

// Query is the per-request retrieval input.
type Query struct {
	Tenant       string   `json:"tenant"`
	Text         string   `json:"query"`
	SourceIDs    []string `json:"source_ids,omitempty"`
	CollectionID string   `json:"collection_id,omitempty"`
	Diversify    bool     `json:"diversify"`
	Rerank       bool     `json:"rerank"`
}

// PassageScore is one reranker output row: passage text with a raw score in a
// provider-specific range (cross-encoder logits may be negative).
type PassageScore struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// OwnershipLeakEvent records a chunk that matched the store filter but belongs
// to another tenant. The query excerpt is bounded; leaked text is never carried.
type OwnershipLeakEvent struct {
	Tenant         string    `json:"tenant"`
	OffendingOwner string    `json:"offending_owner"`
	ChunkID        string    `json:"chunk_id"`
	QueryExcerpt   string    `json:"query_excerpt"`
	OccurredAt     time.Time `json:"occurred_at"`
}
