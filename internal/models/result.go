package models

import (
	"net/http"
	"time"
)

// RunnerResult is the normalized outcome of a successful operation call
type RunnerResult struct {
	OperationID string
	StatusCode  int
	Header      http.Header
	ContentType string
	Body        []byte
	// Content is the body decoded according to ContentType: JSON becomes
	// maps/slices/scalars, text becomes a string, anything else stays nil.
	Content  any
	Duration time.Duration
}

// Text returns the raw body as a string
func (r *RunnerResult) Text() string {
	return string(r.Body)
}

// ValidationError represents a specific validation failure
type ValidationError struct {
	Field   string
	Message string
}
