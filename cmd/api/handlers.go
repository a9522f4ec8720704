package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	"github.com/anarkh-ai/faq-retrieval/engine/embed"
	"github.com/anarkh-ai/faq-retrieval/engine/retrieval"
	"github.com/anarkh-ai/faq-retrieval/pkg/metrics"
)

// faqService is the slice of the orchestrator the HTTP layer needs.
type faqService interface {
	InitializeFull(ctx context.Context, recreate bool) retrieval.ReindexResult
	AddFAQ(ctx context.Context, f domain.FAQ) retrieval.AddResult
	Search(ctx context.Context, query string, limit int, threshold float32) retrieval.SearchOutcome
	ListPoints(ctx context.Context) retrieval.ListResult
	Status(ctx context.Context) retrieval.SystemStatus
	ModelInfo() embed.Info
}

type server struct {
	svc    faqService
	logger *slog.Logger
}

func newServer(svc faqService, logger *slog.Logger) *server {
	return &server{svc: svc, logger: logger}
}

// routes builds the mux. Versioned paths under /api/v1 plus the legacy
// unprefixed aliases the previous deployment exposed.
func (s *server) routes(reg *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("POST /api/v1/faqs/initialize", s.handleInitialize)
	mux.HandleFunc("POST /api/v1/faqs", s.handleAddFAQ)
	mux.HandleFunc("POST /api/v1/faqs/search", s.handleSearch)
	mux.HandleFunc("GET /api/v1/faqs", s.handleList)
	mux.HandleFunc("GET /api/v1/model/info", s.handleModelInfo)

	// Legacy aliases.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("GET /list-all", s.handleList)

	if reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.svc.Status(r.Context())
	code := http.StatusOK
	if !status.Success {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// InitializeRequest is the JSON body for POST /api/v1/faqs/initialize.
// An empty body is accepted and means recreate_collection=true.
type InitializeRequest struct {
	RecreateCollection *bool `json:"recreate_collection"`
}

func (s *server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recreate := true
	if req.RecreateCollection != nil {
		recreate = *req.RecreateCollection
	}

	s.logger.Info("starting full initialization", "recreate_collection", recreate)
	result := s.svc.InitializeFull(r.Context(), recreate)

	code := http.StatusOK
	if !result.Success {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, result)
}

// AddFAQRequest is the JSON body for POST /api/v1/faqs.
type AddFAQRequest struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *server) handleAddFAQ(w http.ResponseWriter, r *http.Request) {
	var req AddFAQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body is required")
		return
	}
	if req.ID == "" || req.Question == "" || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "id, question, and answer are required fields")
		return
	}

	s.logger.Info("adding faq", "faq_id", req.ID)
	result := s.svc.AddFAQ(r.Context(), domain.FAQ{ID: req.ID, Question: req.Question, Answer: req.Answer})

	code := http.StatusCreated
	if !result.Success {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, result)
}

// SearchRequest is the JSON body for POST /api/v1/faqs/search. Limit and
// Similarity are pointers so that absent and zero are distinguishable.
type SearchRequest struct {
	Text       string   `json:"text"`
	Limit      *int     `json:"limit"`
	Similarity *float64 `json:"similarity"`
}

// SearchResponse wraps the ranked results for the legacy response shape.
type SearchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Request body is required")
		return
	}

	query := strings.TrimSpace(req.Text)
	if query == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return
	}
	limit := domain.DefaultSearchLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < domain.MinSearchLimit || limit > domain.MaxSearchLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 50")
		return
	}
	threshold := 0.0
	if req.Similarity != nil {
		threshold = *req.Similarity
	}
	if threshold < domain.MinScoreThreshold || threshold > domain.MaxScoreThreshold {
		writeError(w, http.StatusBadRequest, "similarity must be between 0.0 and 1.0")
		return
	}

	s.logger.Info("searching faqs", "query", query, "limit", limit)
	outcome := s.svc.Search(r.Context(), query, limit, float32(threshold))
	if !outcome.Success {
		writeError(w, http.StatusInternalServerError, outcome.Message)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: outcome.Results})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	result := s.svc.ListPoints(r.Context())
	if !result.Success {
		writeError(w, http.StatusInternalServerError, result.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ModelInfoResponse is the JSON response for GET /api/v1/model/info.
type ModelInfoResponse struct {
	Success   bool       `json:"success"`
	ModelInfo embed.Info `json:"model_info"`
}

func (s *server) handleModelInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ModelInfoResponse{Success: true, ModelInfo: s.svc.ModelInfo()})
}

func (s *server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "Endpoint not found")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}
