package chat

import "context"

// SearchHit is one internal document matched by full-text search.
type SearchHit struct {
	DocumentID string
	Title      string
	Excerpt    string
	Rank       float32
}

// SearchBackend queries the user's internal document corpus.
type SearchBackend interface {
	Search(ctx context.Context, userID, query string, limit int) ([]SearchHit, error)
}
