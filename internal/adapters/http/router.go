package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/retrieval-engine/internal/core/domain"
	"github.com/kirillkom/retrieval-engine/internal/core/ports"
	"github.com/kirillkom/retrieval-engine/internal/observability/metrics"
)

// TrafficPolicy bounds how much load the API accepts before shedding.
type TrafficPolicy struct {
	RateLimitRPS   int
	RateLimitBurst int
	MaxInFlight    int
	RequestTimeout time.Duration
}

type Router struct {
	retriever      ports.Retriever
	traffic        TrafficPolicy
	serverMetrics  *metrics.HTTPServerMetrics
	metricsHandler http.Handler
}

func NewRouter(
	retriever ports.Retriever,
	traffic TrafficPolicy,
	serverMetrics *metrics.HTTPServerMetrics,
	metricsHandler http.Handler,
) *Router {
	return &Router{
		retriever:      retriever,
		traffic:        traffic,
		serverMetrics:  serverMetrics,
		metricsHandler: metricsHandler,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}
	mux.HandleFunc("/v1/retrieve", rt.retrieveContext)
	mux.HandleFunc("/v1/retrieve/raw", rt.retrieveRaw)

	var handler http.Handler = mux
	if rt.serverMetrics != nil {
		handler = rt.serverMetrics.Middleware("retrieval-engine", handler)
	}
	if rt.traffic.RequestTimeout > 0 {
		handler = timeoutMiddleware(handler, rt.traffic.RequestTimeout)
	}
	if rt.traffic.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.traffic.MaxInFlight, 50*time.Millisecond)
	}
	if rt.traffic.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Tenant       string   `json:"tenant"`
	Query        string   `json:"query"`
	SourceIDs    []string `json:"source_ids"`
	CollectionID string   `json:"collection_id"`
	Diversify    bool     `json:"diversify"`
	Rerank       bool     `json:"rerank"`
	K            int      `json:"k"`
}

func (req retrieveRequest) toQuery() domain.Query {
	return domain.Query{
		Tenant:       req.Tenant,
		Text:         req.Query,
		SourceIDs:    req.SourceIDs,
		CollectionID: req.CollectionID,
		Diversify:    req.Diversify,
		Rerank:       req.Rerank,
	}
}

func (rt *Router) retrieveContext(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}

	text, err := rt.retriever.RetrieveContext(r.Context(), req.toQuery())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": text})
}

func (rt *Router) retrieveRaw(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRetrieveRequest(w, r)
	if !ok {
		return
	}

	passages, err := rt.retriever.RetrieveRaw(r.Context(), req.toQuery(), req.K)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if passages == nil {
		passages = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"passages": passages})
}

func decodeRetrieveRequest(w http.ResponseWriter, r *http.Request) (retrieveRequest, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return retrieveRequest{}, false
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return retrieveRequest{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return retrieveRequest{}, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
