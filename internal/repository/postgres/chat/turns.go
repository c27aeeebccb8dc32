// Package chat implements the chat repositories on PostgreSQL.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"sibyl/internal/domain"
	"sibyl/internal/domain/models/chat"
	chatrepo "sibyl/internal/domain/repositories/chat"
	"sibyl/internal/repository/postgres"
)

// PostgresTurnStore implements the TurnStore interface using PostgreSQL.
// Turn state is stored as one JSONB row per turn, upserted on every save.
type PostgresTurnStore struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewTurnStore creates a new PostgresTurnStore
func NewTurnStore(config *postgres.RepositoryConfig) chatrepo.TurnStore {
	return &PostgresTurnStore{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateTurn inserts a new turn row
func (r *PostgresTurnStore) CreateTurn(ctx context.Context, turn *chat.Turn) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, user_id, model, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.Turns)

	_, err := r.pool.Exec(ctx, query,
		turn.ID,
		turn.ChatID,
		turn.UserID,
		turn.Model,
		turn.Status,
		turn.CreatedAt,
	)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return fmt.Errorf("turn %s: %w", turn.ID, domain.ErrConflict)
		}
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", turn.ChatID, domain.ErrNotFound)
		}
		return fmt.Errorf("create turn: %w", err)
	}

	return nil
}

// GetTurn loads one turn by id
func (r *PostgresTurnStore) GetTurn(ctx context.Context, turnID string) (*chat.Turn, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, user_id, model, status, error, created_at, completed_at
		FROM %s
		WHERE id = $1
	`, r.tables.Turns)

	var turn chat.Turn
	err := r.pool.QueryRow(ctx, query, turnID).Scan(
		&turn.ID,
		&turn.ChatID,
		&turn.UserID,
		&turn.Model,
		&turn.Status,
		&turn.Error,
		&turn.CreatedAt,
		&turn.CompletedAt,
	)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get turn: %w", err)
	}

	return &turn, nil
}

// SaveTurnState upserts the turn's state snapshot
func (r *PostgresTurnStore) SaveTurnState(ctx context.Context, turnID string, state *chat.TurnState) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (turn_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (turn_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, r.tables.TurnStates)

	_, err := r.pool.Exec(ctx, query, turnID, state, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save turn state: %w", err)
	}

	return nil
}

// UpdateTurnStatus sets the turn's lifecycle status, stamping completion
// time on terminal states
func (r *PostgresTurnStore) UpdateTurnStatus(ctx context.Context, turnID string, status chat.TurnStatus) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2,
		    completed_at = CASE WHEN $2 IN ('complete', 'error', 'interrupted') THEN $3 ELSE completed_at END
		WHERE id = $1
	`, r.tables.Turns)

	tag, err := r.pool.Exec(ctx, query, turnID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update turn status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	return nil
}

// UpdateTurnError marks the turn failed and records the message
func (r *PostgresTurnStore) UpdateTurnError(ctx context.Context, turnID string, message string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1
	`, r.tables.Turns)

	tag, err := r.pool.Exec(ctx, query, turnID, chat.TurnError, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update turn error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("turn %s: %w", turnID, domain.ErrNotFound)
	}

	return nil
}
