// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package models

import (
	"time"
)

// APIResponse is the standardized response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError carries structured error details in an error response.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// SearchResult describes one completed reconciliation pass. It is published
// on the event bus after every pass, success or failure, and is the payload
// of the WebSocket "search_result" message.
type SearchResult struct {
	// Generation is the pass generation token that produced this result.
	Generation uint64 `json:"generation"`

	// PassID is a unique identifier for the pass, for log correlation.
	PassID string `json:"pass_id"`

	Origin       Coordinate `json:"origin"`
	RadiusMeters float64    `json:"radius_meters"`

	// Venues is the new working set. Empty on failure.
	Venues []Venue `json:"venues,omitempty"`

	// Truncated is set when the POI provider hit its per-category result cap,
	// advising the UI to suggest a narrower radius. Advisory, not an error.
	Truncated bool `json:"truncated,omitempty"`

	// DegradedCategories lists POI category terms whose queries failed and
	// contributed zero results.
	DegradedCategories []string `json:"degraded_categories,omitempty"`

	// Err is the error descriptor when the pass failed; empty on success.
	Err string `json:"error,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// Failed reports whether the pass ended in error.
func (r *SearchResult) Failed() bool {
	return r.Err != ""
}
