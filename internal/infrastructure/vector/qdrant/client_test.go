package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
)

func tenantFilter(owner string) domain.RetrievalFilter {
	return domain.RetrievalFilter{
		Must: []domain.FilterClause{{Key: domain.FilterKeyOwner, Value: owner}},
	}
}

func TestQuerySendsFilterAndParsesResult(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"id":     "p1",
					"score":  0.92,
					"vector": []float32{0.6, 0.8},
					"payload": map[string]any{
						"text":          "retrieved passage",
						"owner_id":      "u1",
						"source_id":     "docA",
						"filename":      "report.pdf",
						"is_structured": true,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "chunks")
	chunks, err := client.Query(context.Background(), []float32{1, 0}, 5, tenantFilter("u1"))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if gotBody["with_vector"] != true || gotBody["with_payload"] != true {
		t.Fatalf("expected with_vector and with_payload, got %v", gotBody)
	}
	filter, _ := gotBody["filter"].(map[string]any)
	must, _ := filter["must"].([]any)
	if len(must) != 1 {
		t.Fatalf("expected 1 must clause, got %v", filter)
	}
	clause := must[0].(map[string]any)
	if clause["key"] != "owner_id" {
		t.Fatalf("expected owner_id clause, got %v", clause)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.ID != "p1" || got.OwnerID != "u1" || got.SourceID != "docA" {
		t.Fatalf("unexpected chunk identity: %+v", got.Chunk)
	}
	if !got.IsStructured || got.Metadata.Filename != "report.pdf" {
		t.Fatalf("payload not mapped: %+v", got.Chunk)
	}
	if got.Score != 0.92 || len(got.Embedding) != 2 {
		t.Fatalf("score or vector not mapped: %+v", got)
	}
}

func TestQuerySerializesMembershipClause(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer srv.Close()

	filter := tenantFilter("u1")
	filter.Must = append(filter.Must, domain.FilterClause{
		Key:    domain.FilterKeySource,
		Values: []string{"docA", "docB"},
	})

	client := New(srv.URL, "chunks")
	if _, err := client.Query(context.Background(), []float32{1, 0}, 5, filter); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	must := gotBody["filter"].(map[string]any)["must"].([]any)
	if len(must) != 2 {
		t.Fatalf("expected 2 clauses, got %v", must)
	}
	match := must[1].(map[string]any)["match"].(map[string]any)
	anyList, ok := match["any"].([]any)
	if !ok || len(anyList) != 2 {
		t.Fatalf("expected match any with 2 values, got %v", match)
	}
}

func TestQueryRejectsFilterWithoutTenant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request must reach the server")
	}))
	defer srv.Close()

	client := New(srv.URL, "chunks")
	_, err := client.Query(context.Background(), []float32{1, 0}, 5, domain.RetrievalFilter{})
	if !domain.IsKind(err, domain.ErrTenantIsolation) {
		t.Fatalf("expected ErrTenantIsolation, got %v", err)
	}
}

func TestQueryErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, "chunks")
	if _, err := client.Query(context.Background(), []float32{1, 0}, 5, tenantFilter("u1")); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestCountExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/count" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["exact"] != true {
			t.Errorf("expected exact count request, got %v", body)
		}
		_, _ = w.Write([]byte(`{"result":{"count":42}}`))
	}))
	defer srv.Close()

	client := New(srv.URL, "chunks")
	count, err := client.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 42 {
		t.Fatalf("expected 42, got %d", count)
	}
}

func TestCountMissingCollectionReadsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := New(srv.URL, "chunks")
	count, err := client.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for missing collection, got %d", count)
	}
}
