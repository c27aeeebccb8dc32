package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sibyl/internal/domain"
	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// DefaultMaxRounds bounds the LLM rounds per turn. A model still asking
// for tools after this many rounds gets cut off.
const DefaultMaxRounds = 5

// LoopConfig tunes one agent loop.
type LoopConfig struct {
	// MaxRounds caps the number of LLM calls per turn. Zero means
	// DefaultMaxRounds.
	MaxRounds int

	// TokenCeiling is the model's context limit in tokens. Zero disables
	// the budget check.
	TokenCeiling int
}

// Loop is the turn producer: rounds of provider call, translation, tool
// execution, and citation assignment until the model stops asking for
// tools. Run is a bridge Producer.
type Loop struct {
	tctx    *Context
	tools   ToolResolver
	state   *StateContainer
	history []chat.Message
	cfg     LoopConfig
	logger  *slog.Logger
}

// NewLoop returns a loop over the given starting history (system prompt,
// prior conversation, and the new user message).
func NewLoop(tctx *Context, tools ToolResolver, state *StateContainer, history []chat.Message, cfg LoopConfig, logger *slog.Logger) *Loop {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Loop{
		tctx:    tctx,
		tools:   tools,
		state:   state,
		history: history,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run drives the turn to completion. It always emits a terminal event
// (Stop on success, Exception on failure) and persists the accumulated
// state on every exit path, including cancellation.
func (l *Loop) Run(ctx context.Context) error {
	err := l.run(ctx)
	if err != nil {
		l.tctx.Emitter.Emit(chat.Exception{TurnIndex: l.tctx.RunStep, Err: err})
		l.persist(ctx, err)
		return err
	}
	l.tctx.Emitter.Emit(chat.Stop{TurnIndex: l.tctx.RunStep})
	l.persist(ctx, nil)
	return nil
}

func (l *Loop) run(ctx context.Context) error {
	msgs := append([]chat.Message(nil), l.history...)

	for round := 0; round < l.cfg.MaxRounds; round++ {
		l.tctx.RunStep = round

		l.tctx.InputTokens = EstimateMessageTokens(msgs)
		if l.cfg.TokenCeiling > 0 && l.tctx.InputTokens > l.cfg.TokenCeiling {
			return fmt.Errorf("%w: estimated %d tokens, ceiling %d for model %s",
				domain.ErrTokenBudget, l.tctx.InputTokens, l.cfg.TokenCeiling, l.tctx.Model)
		}

		stream, err := l.tctx.Provider.StreamResponse(ctx, &chatsvc.GenerateRequest{
			Model:    l.tctx.Model,
			Messages: msgs,
			Tools:    l.tctx.ToolDefs,
		})
		if err != nil {
			return fmt.Errorf("start generation: %w", err)
		}

		res, err := NewTranslator(l.tctx, l.tools, l.logger).Run(ctx, stream)
		if res != nil {
			l.state.AppendReasoning(res.Reasoning)
			l.state.AppendAnswer(res.Content)
			l.state.AddToolCalls(res.ToolCalls)
			l.state.AddUsage(res.Usage)
			l.state.SetStopReason(res.FinishReason)
		}
		if err != nil {
			return err
		}

		if len(res.ToolCalls) == 0 || res.FinishReason != chatsvc.FinishToolCalls {
			return nil
		}

		refs := make([]chat.ToolCallRef, len(res.ToolCalls))
		for i, rec := range res.ToolCalls {
			refs[i] = chat.ToolCallRef{ID: rec.CallID, Name: rec.Name, Arguments: rec.Arguments}
		}
		msgs = append(msgs, chat.AssistantMessage{Content: res.Content, ToolCalls: refs})
		for _, rec := range res.ToolCalls {
			msgs = append(msgs, chat.ToolOutputMessage{CallID: rec.CallID, Name: rec.Name, Payload: rec.Output})
		}

		if l.tctx.ShouldCite {
			msgs = l.assignCitations(msgs)
		}
	}

	l.logger.Warn("max rounds reached, completing turn",
		"turn_id", l.tctx.TurnID, "rounds", l.cfg.MaxRounds)
	return nil
}

// assignCitations numbers any newly fetched documents and emits citation
// events for them.
func (l *Loop) assignCitations(msgs []chat.Message) []chat.Message {
	before := len(l.tctx.Citations)
	updated, newDocs, _ := AssignCitations(msgs, l.tctx)
	if newDocs == 0 {
		return updated
	}

	if before == 0 {
		l.tctx.Emitter.Emit(chat.CitationStart{TurnIndex: l.tctx.RunStep})
	}
	for _, c := range l.tctx.Citations[before:] {
		l.tctx.Emitter.Emit(chat.CitationDelta{TurnIndex: l.tctx.RunStep, Number: c.Number, Document: c.Document})
		l.state.AddCitation(c)
	}
	return updated
}

// persist saves the turn state and final status. Runs detached from the
// producer context so an interrupt still gets its partial save.
func (l *Loop) persist(ctx context.Context, runErr error) {
	if l.tctx.Store == nil {
		return
	}
	saveCtx := context.WithoutCancel(ctx)

	if err := l.tctx.Store.SaveTurnState(saveCtx, l.tctx.TurnID, l.state.Snapshot()); err != nil {
		l.logger.Error("failed to save turn state", "turn_id", l.tctx.TurnID, "error", err)
	}

	switch {
	case runErr == nil:
		if err := l.tctx.Store.UpdateTurnStatus(saveCtx, l.tctx.TurnID, chat.TurnComplete); err != nil {
			l.logger.Error("failed to update turn status", "turn_id", l.tctx.TurnID, "error", err)
		}
	case errors.Is(runErr, context.Canceled):
		if err := l.tctx.Store.UpdateTurnStatus(saveCtx, l.tctx.TurnID, chat.TurnInterrupted); err != nil {
			l.logger.Error("failed to update turn status", "turn_id", l.tctx.TurnID, "error", err)
		}
	default:
		if err := l.tctx.Store.UpdateTurnError(saveCtx, l.tctx.TurnID, runErr.Error()); err != nil {
			l.logger.Error("failed to record turn error", "turn_id", l.tctx.TurnID, "error", err)
		}
	}
}
