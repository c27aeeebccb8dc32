// Package chat orchestrates assistant turns: it creates the turn, starts
// the agent loop on a background goroutine, and hands the bridge to the
// SSE handler.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sibyl/internal/domain"
	"sibyl/internal/domain/models/chat"
	chatrepo "sibyl/internal/domain/repositories/chat"
	chatsvc "sibyl/internal/domain/services/chat"
	"sibyl/internal/service/chat/turn"
)

// DefaultSystemPrompt frames the assistant when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful research assistant. Use the available tools to " +
	"ground your answers, and cite the documents you rely on."

// Options tunes the chat service.
type Options struct {
	DefaultModel string
	SystemPrompt string
	PollInterval time.Duration
	MaxRounds    int

	// TokenCeilings maps model names to context limits. Missing models
	// fall back to DefaultCeiling.
	TokenCeilings  map[string]int
	DefaultCeiling int
}

// Service runs assistant turns and tracks the in-flight ones.
type Service struct {
	store    chatrepo.TurnStore
	provider chatsvc.Provider
	tools    turn.ToolResolver
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*activeTurn
}

type activeTurn struct {
	userID string
	bridge *turn.Bridge
	cancel context.CancelFunc
}

// NewService creates the chat service.
func NewService(store chatrepo.TurnStore, provider chatsvc.Provider, tools turn.ToolResolver, opts Options, logger *slog.Logger) *Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = turn.DefaultPollInterval
	}
	return &Service{
		store:    store,
		provider: provider,
		tools:    tools,
		opts:     opts,
		logger:   logger,
		active:   make(map[string]*activeTurn),
	}
}

// StartTurnParams describes one new assistant turn.
type StartTurnParams struct {
	ChatID     string
	UserID     string
	Model      string
	Message    string
	History    []chat.Message
	ShouldCite bool
}

// StartTurn creates the turn record and launches the agent loop in the
// background. The stream is attached separately.
func (s *Service) StartTurn(ctx context.Context, params StartTurnParams) (*chat.Turn, error) {
	model := params.Model
	if model == "" {
		model = s.opts.DefaultModel
	}

	t := &chat.Turn{
		ID:        uuid.NewString(),
		ChatID:    params.ChatID,
		UserID:    params.UserID,
		Model:     model,
		Status:    chat.TurnStreaming,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTurn(ctx, t); err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}

	emitter := turn.NewEmitter()
	tctx := turn.NewContext(params.ChatID, t.ID, params.UserID, model)
	tctx.ShouldCite = params.ShouldCite
	tctx.Emitter = emitter
	tctx.Provider = s.provider
	tctx.Store = s.store
	tctx.ToolDefs = s.tools.Definitions()

	history := make([]chat.Message, 0, len(params.History)+2)
	history = append(history, chat.SystemMessage{Content: s.opts.SystemPrompt})
	history = append(history, params.History...)
	history = append(history, chat.UserMessage{Content: params.Message})

	loop := turn.NewLoop(tctx, s.tools, turn.NewStateContainer(), history, turn.LoopConfig{
		MaxRounds:    s.opts.MaxRounds,
		TokenCeiling: s.ceilingFor(model),
	}, s.logger)

	bridge := turn.NewBridge(emitter, s.logger, turn.WithPollInterval(s.opts.PollInterval))

	// The producer outlives the HTTP request that created it. Interruption
	// goes through the stored cancel func, never through request contexts.
	runCtx, cancel := context.WithCancel(context.Background())
	bridge.Start(runCtx, loop.Run)

	s.mu.Lock()
	s.active[t.ID] = &activeTurn{userID: params.UserID, bridge: bridge, cancel: cancel}
	s.mu.Unlock()

	go func() {
		<-bridge.Done()
		cancel()
	}()

	s.logger.Info("turn started", "turn_id", t.ID, "chat_id", params.ChatID, "model", model)
	return t, nil
}

// Stream returns the bridge for an in-flight turn. The bridge is single
// consumer; a second attach gets ErrBridgeConsumed from Run.
func (s *Service) Stream(turnID, userID string) (*turn.Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.active[turnID]
	if !ok {
		return nil, domain.ErrTurnNotActive
	}
	if at.userID != userID {
		return nil, domain.ErrForbidden
	}
	return at.bridge, nil
}

// Interrupt cancels the producer of an in-flight turn. The loop persists
// its partial state and marks the turn interrupted.
func (s *Service) Interrupt(turnID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.active[turnID]
	if !ok {
		return domain.ErrTurnNotActive
	}
	if at.userID != userID {
		return domain.ErrForbidden
	}
	at.cancel()
	s.logger.Info("turn interrupted", "turn_id", turnID)
	return nil
}

// Release drops a turn from the in-flight registry once its stream has
// been consumed.
func (s *Service) Release(turnID string) {
	s.mu.Lock()
	delete(s.active, turnID)
	s.mu.Unlock()
}

// GetTurn loads a turn record.
func (s *Service) GetTurn(ctx context.Context, turnID, userID string) (*chat.Turn, error) {
	t, err := s.store.GetTurn(ctx, turnID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return t, nil
}

func (s *Service) ceilingFor(model string) int {
	if c, ok := s.opts.TokenCeilings[model]; ok {
		return c
	}
	return s.opts.DefaultCeiling
}
