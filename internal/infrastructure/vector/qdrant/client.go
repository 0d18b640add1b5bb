package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Client talks to qdrant over its HTTP API. Every search carries the caller's
// filter verbatim; the client refuses to send a query without a valid tenant
// clause.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Query runs a vector search scoped by filter. Vectors come back with the
// payload so downstream diversification can reuse them.
func (c *Client) Query(
	ctx context.Context,
	queryVector []float32,
	n int,
	filter domain.RetrievalFilter,
) ([]domain.ScoredChunk, error) {
	if err := filter.Validate(); err != nil {
		return nil, domain.WrapError(domain.ErrTenantIsolation, "qdrant search", err)
	}

	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        n,
		"with_payload": true,
		"with_vector":  true,
		"filter":       filterJSON(filter),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant search status: %s", resp.Status)
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := domain.Chunk{
			ID:           fmt.Sprintf("%v", r.ID),
			Text:         getStringPayload(r.Payload, "text"),
			Embedding:    r.Vector,
			OwnerID:      getStringPayload(r.Payload, "owner_id"),
			SourceID:     getStringPayload(r.Payload, "source_id"),
			CollectionID: getStringPayload(r.Payload, "collection_id"),
			IsStructured: getBoolPayload(r.Payload, "is_structured"),
			Metadata: domain.ChunkMetadata{
				Filename: getStringPayload(r.Payload, "filename"),
				Section:  getStringPayload(r.Payload, "section"),
			},
		}
		out = append(out, domain.ScoredChunk{Chunk: chunk, Score: r.Score})
	}
	return out, nil
}

// Count returns the exact number of points in the collection. A missing
// collection reads as empty rather than an error.
func (c *Client) Count(ctx context.Context) (int, error) {
	body, err := json.Marshal(map[string]any{"exact": true})
	if err != nil {
		return 0, fmt.Errorf("marshal count body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/count", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create count request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant count request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant count status: %s", resp.Status)
	}

	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, fmt.Errorf("decode count response: %w", err)
	}
	return countResp.Result.Count, nil
}

func filterJSON(filter domain.RetrievalFilter) map[string]any {
	must := make([]map[string]any, 0, len(filter.Must))
	for _, clause := range filter.Must {
		if len(clause.Values) > 0 {
			must = append(must, map[string]any{
				"key":   clause.Key,
				"match": map[string]any{"any": clause.Values},
			})
			continue
		}
		must = append(must, map[string]any{
			"key":   clause.Key,
			"match": map[string]any{"value": clause.Value},
		})
	}
	return map[string]any{"must": must}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getBoolPayload(payload map[string]any, key string) bool {
	v, ok := payload[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}
