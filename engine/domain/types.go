// Package domain defines core domain types, constants, and validation for the
// FAQ retrieval pipeline. It acts as the validation gate at pipeline entry points.
package domain

// FAQ is a question/answer pair keyed by a stable caller-assigned id.
// The relational store is the source of truth for FAQ content; the vector
// index holds a derived copy.
type FAQ struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SearchResult is a single similarity hit returned from the vector index,
// ordered by descending score.
type SearchResult struct {
	FAQID    string  `json:"faq_id"`
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float32 `json:"score"`
}

// Point is a stored vector index entry, payload only.
type Point struct {
	ID       uint64 `json:"id"`
	FAQID    string `json:"faq_id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CollectionInfo describes the state of the vector collection.
type CollectionInfo struct {
	Name            string `json:"name"`
	VectorsCount    uint64 `json:"vectors_count"`
	PointsCount     uint64 `json:"points_count"`
	Status          string `json:"status"`
	OptimizerStatus string `json:"optimizer_status"`
}

// Search parameter bounds enforced at the API boundary.
const (
	MinSearchLimit = 1
	MaxSearchLimit = 50

	DefaultSearchLimit    = 5
	DefaultScoreThreshold = 0.0
	MinScoreThreshold     = 0.0
	MaxScoreThreshold     = 1.0
)
