package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	chatsvc "sibyl/internal/domain/services/chat"
	"sibyl/internal/repository/postgres"
)

// PostgresSearchBackend implements full-text document search with
// websearch_to_tsquery over the documents table.
type PostgresSearchBackend struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewSearchBackend creates a new PostgresSearchBackend
func NewSearchBackend(config *postgres.RepositoryConfig) chatsvc.SearchBackend {
	return &PostgresSearchBackend{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// Search runs a ranked full-text query over the user's documents.
// ts_headline produces the excerpt shown to the model.
func (r *PostgresSearchBackend) Search(ctx context.Context, userID, query string, limit int) ([]chatsvc.SearchHit, error) {
	sql := fmt.Sprintf(`
		SELECT id,
		       title,
		       ts_headline('english', content, websearch_to_tsquery('english', $2),
		                   'MaxFragments=2, MaxWords=40, MinWords=10') AS excerpt,
		       ts_rank(search_vector, websearch_to_tsquery('english', $2)) AS rank
		FROM %s
		WHERE user_id = $1
		  AND search_vector @@ websearch_to_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3
	`, r.tables.Documents)

	rows, err := r.pool.Query(ctx, sql, userID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var hits []chatsvc.SearchHit
	for rows.Next() {
		var hit chatsvc.SearchHit
		if err := rows.Scan(&hit.DocumentID, &hit.Title, &hit.Excerpt, &hit.Rank); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}

	return hits, nil
}
