package domain

import (
	"fmt"
	"strings"
)

// ValidateFAQ checks that all three FAQ fields are present.
func ValidateFAQ(f FAQ) error {
	if strings.TrimSpace(f.ID) == "" {
		return NewValidationError("id", f.ID, ErrMissingField)
	}
	if strings.TrimSpace(f.Question) == "" {
		return NewValidationError("question", f.Question, ErrMissingField)
	}
	if strings.TrimSpace(f.Answer) == "" {
		return NewValidationError("answer", f.Answer, ErrMissingField)
	}
	return nil
}

// ValidateSearch checks a search request. The query must be non-empty after
// trimming; limit and threshold must sit inside their allowed ranges.
func ValidateSearch(query string, limit int, threshold float32) error {
	if strings.TrimSpace(query) == "" {
		return NewValidationError("text", query, ErrEmptyQuery)
	}
	if limit < MinSearchLimit || limit > MaxSearchLimit {
		return NewValidationError("limit", fmt.Sprintf("%d", limit), ErrLimitOutOfRange)
	}
	if threshold < MinScoreThreshold || threshold > MaxScoreThreshold {
		return NewValidationError("similarity", fmt.Sprintf("%g", threshold), ErrThresholdOutOfRange)
	}
	return nil
}
