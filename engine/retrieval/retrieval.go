// Package retrieval orchestrates the FAQ pipeline across the three external
// collaborators: the embedding runtime, the relational faq table, and the
// Qdrant collection. It implements full reindex, incremental add, similarity
// search, and system status.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/anarkh-ai/faq-retrieval/engine/domain"
	"github.com/anarkh-ai/faq-retrieval/engine/embed"
	"github.com/anarkh-ai/faq-retrieval/pkg/fn"
	"github.com/anarkh-ai/faq-retrieval/pkg/metrics"
)

// Embedder abstracts the embedding provider.
type Embedder interface {
	Load(ctx context.Context) error
	Loaded() bool
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	Info() embed.Info
}

// FAQStore abstracts the relational source of truth.
type FAQStore interface {
	All(ctx context.Context) ([]domain.FAQ, error)
	Upsert(ctx context.Context, f domain.FAQ) error
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// VectorIndex abstracts the Qdrant collection.
type VectorIndex interface {
	Connect(ctx context.Context) error
	EnsureCollection(ctx context.Context, dims int) error
	RecreateCollection(ctx context.Context, dims int) error
	UpsertBatch(ctx context.Context, faqs []domain.FAQ, vectors [][]float32) error
	UpsertOne(ctx context.Context, f domain.FAQ, vector []float32) error
	Search(ctx context.Context, vector []float32, limit int, scoreThreshold float32) []domain.SearchResult
	AllPoints(ctx context.Context) ([]domain.Point, error)
	Info(ctx context.Context) *domain.CollectionInfo
}

// Options configures the orchestrator.
type Options struct {
	// EmbedBatchSize is passed through to the embedder.
	EmbedBatchSize int
}

// Service coordinates the three accessors.
type Service struct {
	embedder Embedder
	store    FAQStore
	index    VectorIndex
	opts     Options
	logger   *slog.Logger
	reg      *metrics.Registry
}

// New creates the orchestrator. reg may be nil when metrics are not wanted.
func New(embedder Embedder, store FAQStore, index VectorIndex, opts Options, logger *slog.Logger, reg *metrics.Registry) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = embed.DefaultBatchSize
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		index:    index,
		opts:     opts,
		logger:   logger,
		reg:      reg,
	}
}

// ReindexResult reports the outcome of a full reindex.
type ReindexResult struct {
	Success        bool       `json:"success"`
	Message        string     `json:"message"`
	ProcessedCount int        `json:"processed_count"`
	TotalCount     int        `json:"total_count"`
	ExecutionTime  float64    `json:"execution_time"`
	ModelInfo      embed.Info `json:"model_info"`
}

// AddResult reports the outcome of a single FAQ add.
type AddResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	FAQID         string     `json:"faq_id"`
	ExecutionTime float64    `json:"execution_time"`
	ModelInfo     embed.Info `json:"model_info"`
}

// SearchOutcome reports the outcome of a similarity search.
type SearchOutcome struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	Query         string                `json:"query"`
	Results       []domain.SearchResult `json:"results"`
	ExecutionTime float64               `json:"execution_time"`
}

// ListResult carries every point currently in the index.
type ListResult struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	TotalPoints int            `json:"total_points"`
	Points      []domain.Point `json:"points"`
}

// DatabaseStatus is the relational half of SystemStatus.
type DatabaseStatus struct {
	Connected bool `json:"connected"`
	FAQCount  int  `json:"faq_count"`
}

// IndexStatus is the vector half of SystemStatus.
type IndexStatus struct {
	Connected      bool                   `json:"connected"`
	CollectionInfo *domain.CollectionInfo `json:"collection_info"`
}

// SystemStatus aggregates independent health signals.
type SystemStatus struct {
	Success  bool           `json:"success"`
	Database DatabaseStatus `json:"database"`
	Qdrant   IndexStatus    `json:"qdrant"`
	Model    embed.Info     `json:"model"`
}

// InitializeFull loads every qualifying FAQ, embeds the questions in one
// pass, and replaces or extends the vector collection depending on recreate.
// Zero rows is a successful no-op. Execution time is recorded on every path.
func (s *Service) InitializeFull(ctx context.Context, recreate bool) ReindexResult {
	start := time.Now()
	result := ReindexResult{ModelInfo: s.embedder.Info()}
	defer func() { result.ExecutionTime = elapsed(start) }()
	defer s.reg.Histogram("faq_reindex_duration_seconds", "Full reindex duration.", nil).Since(start)

	if err := s.ensureModel(ctx); err != nil {
		result.Message = "Failed to load embedding model"
		return result
	}
	result.ModelInfo = s.embedder.Info()

	s.logger.Info("loading faqs from database")
	faqs, err := s.store.All(ctx)
	if err != nil {
		s.logger.Error("load faqs failed", "err", err)
		result.Message = fmt.Sprintf("Failed to load FAQs: %v", err)
		return result
	}
	result.TotalCount = len(faqs)

	if len(faqs) == 0 {
		result.Success = true
		result.Message = "No FAQ data found in database"
		return result
	}

	questions := fn.Map(faqs, func(f domain.FAQ) string { return f.Question })
	s.logger.Info("generating embeddings", "count", len(questions))
	vectors, err := s.embedder.Embed(ctx, questions, s.opts.EmbedBatchSize)
	if err != nil {
		s.logger.Error("embedding failed", "err", err)
		result.Message = "Failed to generate embeddings"
		return result
	}

	dims := len(vectors[0])
	if recreate {
		if err := s.index.RecreateCollection(ctx, dims); err != nil {
			s.logger.Error("recreate collection failed", "err", err)
			result.Message = "Failed to recreate collection"
			return result
		}
	} else {
		if err := s.index.EnsureCollection(ctx, dims); err != nil {
			s.logger.Error("ensure collection failed", "err", err)
			result.Message = "Failed to ensure collection exists"
			return result
		}
	}

	if err := s.index.UpsertBatch(ctx, faqs, vectors); err != nil {
		s.logger.Error("upsert batch failed", "err", err)
		result.Message = fmt.Sprintf("Failed to upsert data to index: %v", err)
		return result
	}

	s.reg.Counter("faq_reindexed_total", "FAQs written by full reindexes.").Add(int64(len(faqs)))
	result.ProcessedCount = len(faqs)
	result.Success = true
	result.Message = fmt.Sprintf("Successfully initialized %d FAQs", len(faqs))
	return result
}

// AddFAQ validates, persists, embeds, and indexes a single FAQ. The
// relational write strictly precedes the vector write, so a failure midway
// can only leave the source of truth ahead of the index.
func (s *Service) AddFAQ(ctx context.Context, f domain.FAQ) AddResult {
	start := time.Now()
	result := AddResult{FAQID: f.ID, ModelInfo: s.embedder.Info()}
	defer func() { result.ExecutionTime = elapsed(start) }()

	if err := domain.ValidateFAQ(f); err != nil {
		result.Message = "FAQ ID, question, and answer are required"
		return result
	}

	if err := s.ensureModel(ctx); err != nil {
		result.Message = "Failed to load embedding model"
		return result
	}
	result.ModelInfo = s.embedder.Info()

	if err := s.store.Upsert(ctx, f); err != nil {
		s.logger.Error("database upsert failed", "id", f.ID, "err", err)
		result.Message = "Failed to add FAQ to database"
		return result
	}

	vectors, err := s.embedder.Embed(ctx, []string{f.Question}, s.opts.EmbedBatchSize)
	if err != nil || len(vectors) == 0 {
		s.logger.Error("embedding failed", "id", f.ID, "err", err)
		result.Message = "Failed to generate embedding"
		return result
	}

	if err := s.index.EnsureCollection(ctx, len(vectors[0])); err != nil {
		s.logger.Error("ensure collection failed", "err", err)
		result.Message = "Failed to ensure collection exists"
		return result
	}

	if err := s.index.UpsertOne(ctx, f, vectors[0]); err != nil {
		s.logger.Error("index upsert failed", "id", f.ID, "err", err)
		result.Message = "Failed to add FAQ to index"
		return result
	}

	s.reg.Counter("faq_added_total", "Single FAQs added.").Inc()
	result.Success = true
	result.Message = fmt.Sprintf("Successfully added FAQ: %s", f.ID)
	return result
}

// Search embeds the query and delegates ranking and thresholding to the
// index. Results are passed through verbatim.
func (s *Service) Search(ctx context.Context, query string, limit int, threshold float32) SearchOutcome {
	start := time.Now()
	result := SearchOutcome{Query: query, Results: []domain.SearchResult{}}
	defer func() { result.ExecutionTime = elapsed(start) }()
	defer s.reg.Histogram("faq_search_duration_seconds", "Similarity search duration.", nil).Since(start)

	if err := domain.ValidateSearch(query, limit, threshold); err != nil {
		result.Message = err.Error()
		return result
	}

	if err := s.ensureModel(ctx); err != nil {
		result.Message = "Failed to load embedding model"
		return result
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, s.opts.EmbedBatchSize)
	if err != nil || len(vectors) == 0 {
		s.logger.Error("query embedding failed", "err", err)
		result.Message = "Failed to generate query embedding"
		return result
	}

	result.Results = s.index.Search(ctx, vectors[0], limit, threshold)
	s.reg.Counter("faq_searches_total", "Similarity searches served.").Inc()
	result.Success = true
	result.Message = fmt.Sprintf("Found %d similar FAQs", len(result.Results))
	return result
}

// ListPoints returns every point in the index.
func (s *Service) ListPoints(ctx context.Context) ListResult {
	points, err := s.index.AllPoints(ctx)
	if err != nil {
		s.logger.Error("list points failed", "err", err)
		return ListResult{Message: fmt.Sprintf("Failed to get FAQs: %v", err), Points: []domain.Point{}}
	}
	if points == nil {
		points = []domain.Point{}
	}
	return ListResult{Success: true, TotalPoints: len(points), Points: points}
}

// Status checks each subsystem independently; one failing subsystem never
// suppresses the report of the others.
func (s *Service) Status(ctx context.Context) SystemStatus {
	status := SystemStatus{Success: true, Model: s.embedder.Info()}

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("database unreachable", "err", err)
	} else {
		status.Database.Connected = true
		if n, err := s.store.Count(ctx); err == nil {
			status.Database.FAQCount = n
		}
	}

	if err := s.index.Connect(ctx); err != nil {
		s.logger.Warn("qdrant unreachable", "err", err)
	} else {
		status.Qdrant.Connected = true
		status.Qdrant.CollectionInfo = s.index.Info(ctx)
	}

	return status
}

// ModelInfo reports the embedding model metadata without forcing a load.
func (s *Service) ModelInfo() embed.Info {
	return s.embedder.Info()
}

// ensureModel lazily loads the embedding model on first use.
func (s *Service) ensureModel(ctx context.Context) error {
	if s.embedder.Loaded() {
		return nil
	}
	s.logger.Info("model not loaded, loading now")
	return s.embedder.Load(ctx)
}

// elapsed returns seconds since start rounded to two decimals, matching the
// execution_time field's wire format.
func elapsed(start time.Time) float64 {
	return math.Round(time.Since(start).Seconds()*100) / 100
}
