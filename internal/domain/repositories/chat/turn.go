// Package chat defines the repository contracts of the chat domain.
package chat

import (
	"context"

	"sibyl/internal/domain/models/chat"
)

// TurnStore persists assistant turns and their accumulated state.
type TurnStore interface {
	CreateTurn(ctx context.Context, turn *chat.Turn) error
	GetTurn(ctx context.Context, turnID string) (*chat.Turn, error)

	// SaveTurnState upserts the turn's state snapshot. Called with partial
	// state on interrupt and error paths, and with final state on completion.
	SaveTurnState(ctx context.Context, turnID string, state *chat.TurnState) error

	UpdateTurnStatus(ctx context.Context, turnID string, status chat.TurnStatus) error
	UpdateTurnError(ctx context.Context, turnID string, message string) error
}
