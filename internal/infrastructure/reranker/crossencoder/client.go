package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

// Client scores query/passage pairs against an external cross-encoder
// service. The service returns rows ordered by its own relevance judgement;
// callers realign them against their candidate set.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Score(ctx context.Context, query string, passages []string) ([]domain.PassageScore, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model":    c.model,
		"query":    query,
		"passages": passages,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, formatRerankHTTPError(resp)
	}

	var rerankResp struct {
		Results []struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	out := make([]domain.PassageScore, 0, len(rerankResp.Results))
	for _, r := range rerankResp.Results {
		out = append(out, domain.PassageScore{Text: r.Text, Score: r.Score})
	}
	return out, nil
}

func formatRerankHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("rerank status: %s", resp.Status)
	}
	return fmt.Errorf("rerank status: %s: %s", resp.Status, msg)
}
