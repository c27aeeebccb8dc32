// Package external holds clients for third-party APIs used by tools.
package external

import (
	"context"
	"time"
)

// SearchClient is the interface for external web search APIs.
// Implementations include Tavily, Brave, Serper, etc.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}

// SearchOptions configures search behavior.
type SearchOptions struct {
	MaxResults int    // Maximum number of results to return
	SearchType string // "basic" or "advanced" (provider-specific)
	Topic      string // Search category: "general", "news", "finance"
}

// SearchResponse contains search results from an external API.
type SearchResponse struct {
	Results   []SearchResult
	Query     string
	Timestamp time.Time
}

// SearchResult is a single web search result.
type SearchResult struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt *time.Time
	Score       float64
}
