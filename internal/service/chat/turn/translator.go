package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"sibyl/internal/domain"
	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// RoundResult is what one translated LLM round produced.
type RoundResult struct {
	Content      string
	Reasoning    string
	ToolCalls    []chat.ToolCallRecord
	FinishReason string
	Usage        *chatsvc.Usage
}

// toolCallAccumulator collects the fragments of one streamed tool call.
// ID and name overwrite on arrival; argument fragments concatenate.
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// Translator turns a provider delta stream into turn events and executes
// the tool calls the model requests. One translator per LLM round.
type Translator struct {
	tctx   *Context
	tools  ToolResolver
	logger *slog.Logger
}

// NewTranslator returns a translator bound to the turn context.
func NewTranslator(tctx *Context, tools ToolResolver, logger *slog.Logger) *Translator {
	return &Translator{tctx: tctx, tools: tools, logger: logger}
}

// Run consumes the stream to completion. Tool execution is synchronous and
// in ascending slot order. Errors (provider failures, malformed tool
// arguments, tool failures) abort the round and are fatal for the turn;
// the partial result accumulated so far is still returned so it can be
// persisted.
func (t *Translator) Run(ctx context.Context, stream <-chan chatsvc.StreamEvent) (*RoundResult, error) {
	var (
		step             = t.tctx.RunStep
		reasoningStarted bool
		messageStarted   bool
		reasoning        strings.Builder
		content          strings.Builder
		accs             = make(map[int]*toolCallAccumulator)
		res              RoundResult
	)
	finish := func() *RoundResult {
		res.Reasoning = reasoning.String()
		res.Content = content.String()
		return &res
	}

	for ev := range stream {
		if ev.Err != nil {
			return finish(), fmt.Errorf("provider stream: %w", ev.Err)
		}
		if ev.Usage != nil {
			res.Usage = ev.Usage
			continue
		}
		if ev.Delta == nil {
			continue
		}
		d := ev.Delta

		if d.Reasoning != "" {
			if !reasoningStarted {
				t.tctx.Emitter.Emit(chat.ReasoningStart{TurnIndex: step})
				reasoningStarted = true
			}
			reasoning.WriteString(d.Reasoning)
			t.tctx.Emitter.Emit(chat.ReasoningDelta{TurnIndex: step, Text: d.Reasoning})
		}

		if d.Content != "" {
			if !messageStarted {
				t.tctx.Emitter.Emit(chat.MessageStart{TurnIndex: step})
				messageStarted = true
			}
			content.WriteString(d.Content)
			t.tctx.Emitter.Emit(chat.MessageDelta{TurnIndex: step, Text: d.Content})
		}

		if len(d.ToolCalls) > 0 {
			// Tool-call fragments close whichever stream is open. A model
			// that emitted no content yet is still mid-reasoning, so the
			// reasoning stream closes only when no message has started.
			if messageStarted {
				t.tctx.Emitter.Emit(chat.MessageDone{TurnIndex: step})
				messageStarted = false
			} else if reasoningStarted {
				t.tctx.Emitter.Emit(chat.ReasoningDone{TurnIndex: step})
				reasoningStarted = false
			}

			for _, f := range d.ToolCalls {
				acc, ok := accs[f.Index]
				if !ok {
					acc = &toolCallAccumulator{}
					accs[f.Index] = acc
				}
				if f.ID != "" {
					acc.id = f.ID
				}
				if f.Name != "" {
					acc.name = f.Name
				}
				if f.ArgsFragment != "" {
					acc.args.WriteString(f.ArgsFragment)
					t.tctx.Emitter.Emit(chat.ToolCallArgsDelta{TurnIndex: step, Slot: f.Index, Fragment: f.ArgsFragment})
				}
			}
		}

		if d.FinishReason != "" {
			res.FinishReason = d.FinishReason
			if reasoningStarted {
				t.tctx.Emitter.Emit(chat.ReasoningDone{TurnIndex: step})
				reasoningStarted = false
			}
			if messageStarted {
				t.tctx.Emitter.Emit(chat.MessageDone{TurnIndex: step})
				messageStarted = false
			}
			if d.FinishReason == chatsvc.FinishToolCalls && len(accs) > 0 {
				if err := t.dispatch(ctx, accs, &res); err != nil {
					return finish(), err
				}
			}
		}
	}

	return finish(), nil
}

// dispatch runs the accumulated tool calls in ascending slot order.
func (t *Translator) dispatch(ctx context.Context, accs map[int]*toolCallAccumulator, res *RoundResult) error {
	step := t.tctx.RunStep

	slots := make([]int, 0, len(accs))
	for slot := range accs {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	for _, slot := range slots {
		acc := accs[slot]

		tool, ok := t.tools.Resolve(acc.name)
		if !ok {
			// The model hallucinated a tool name. Skip the call entirely;
			// the loop continues with the remaining calls.
			t.logger.Warn("skipping unknown tool", "tool", acc.name, "call_id", acc.id)
			continue
		}

		t.tctx.Emitter.Emit(chat.ToolCallStart{TurnIndex: step, CallID: acc.id, Name: acc.name})
		tool.EmitStart(step, t.tctx)

		raw := acc.args.String()
		args := make(map[string]any)
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return fmt.Errorf("%w: tool %s slot %d: %v", domain.ErrMalformedToolArgs, acc.name, slot, err)
			}
		}

		resp, err := tool.Run(ctx, step, t.tctx, args)
		if err != nil {
			return fmt.Errorf("tool %s: %w", acc.name, err)
		}

		t.tctx.Emitter.Emit(chat.ToolCallOutput{TurnIndex: step, CallID: acc.id, Name: acc.name, Output: resp.Text})
		res.ToolCalls = append(res.ToolCalls, chat.ToolCallRecord{
			CallID:    acc.id,
			Name:      acc.name,
			Arguments: raw,
			Output:    resp.Text,
			Artifact:  resp.Artifact,
		})
	}

	return nil
}
