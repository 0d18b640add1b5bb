package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

type retrieverFake struct {
	contextText string
	passages    []string
	err         error
	lastQuery   domain.Query
	lastK       int
}

func (f *retrieverFake) RetrieveContext(_ context.Context, q domain.Query) (string, error) {
	f.lastQuery = q
	if f.err != nil {
		return "", f.err
	}
	return f.contextText, nil
}

func (f *retrieverFake) RetrieveRaw(_ context.Context, q domain.Query, k int) ([]string, error) {
	f.lastQuery = q
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

func newTestHandler(fake *retrieverFake) http.Handler {
	return NewRouter(fake, TrafficPolicy{}, nil, nil).Handler()
}

func TestRetrieveEndpoint(t *testing.T) {
	fake := &retrieverFake{contextText: "[SOURCE 1: report.pdf]\nSome context."}
	handler := newTestHandler(fake)

	body := `{"tenant":"u1","query":"refund policy","source_ids":["docA"],"rerank":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["context"] != fake.contextText {
		t.Fatalf("unexpected context %q", resp["context"])
	}
	if fake.lastQuery.Tenant != "u1" || !fake.lastQuery.Rerank {
		t.Fatalf("request not mapped to query: %+v", fake.lastQuery)
	}
}

func TestRetrieveEndpointRejectsEmptyQuery(t *testing.T) {
	handler := newTestHandler(&retrieverFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"tenant":"u1","query":"  "}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetrieveEndpointMapsTenantIsolationTo403(t *testing.T) {
	fake := &retrieverFake{err: domain.WrapError(domain.ErrTenantIsolation, "build filter", errors.New("empty tenant"))}
	handler := newTestHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"tenant":"","query":"q"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestRetrieveEndpointMapsTemporaryTo503(t *testing.T) {
	fake := &retrieverFake{err: domain.WrapError(domain.ErrTemporary, "query store", errors.New("qdrant down"))}
	handler := newTestHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader(`{"tenant":"u1","query":"q"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestRetrieveRawEndpoint(t *testing.T) {
	fake := &retrieverFake{passages: []string{"alpha", "beta"}}
	handler := newTestHandler(fake)

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve/raw", strings.NewReader(`{"tenant":"u1","query":"q","k":2}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var resp struct {
		Passages []string `json:"passages"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Passages) != 2 || resp.Passages[0] != "alpha" {
		t.Fatalf("unexpected passages %v", resp.Passages)
	}
	if fake.lastK != 2 {
		t.Fatalf("expected k=2 forwarded, got %d", fake.lastK)
	}
}

func TestRetrieveEndpointMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(&retrieverFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(&retrieverFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}
