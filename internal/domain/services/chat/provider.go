// Package chat defines the service-layer contracts of the chat domain:
// the LLM provider stream and the internal document search backend.
package chat

import (
	"context"

	"sibyl/internal/domain/models/chat"
)

// Finish reasons reported by providers.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// Provider streams one LLM generation. StreamResponse returns immediately
// with a channel of events; the channel is closed when the generation ends.
type Provider interface {
	StreamResponse(ctx context.Context, req *GenerateRequest) (<-chan StreamEvent, error)
}

// GenerateRequest describes one LLM call of a turn.
type GenerateRequest struct {
	Model     string
	Messages  []chat.Message
	Tools     []chat.ToolDefinition
	MaxTokens int
}

// StreamEvent is one element of a provider stream. Exactly one of Delta,
// Usage, or Err is set.
type StreamEvent struct {
	Delta *Delta
	Usage *Usage
	Err   error
}

// Delta is one incremental chunk of a streamed generation.
type Delta struct {
	Reasoning    string
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// ToolCallDelta is one fragment of a streamed tool call. Index is the slot
// the fragment belongs to; ID and Name arrive on the first fragment of a
// slot, ArgsFragment pieces concatenate into the argument JSON.
type ToolCallDelta struct {
	Index        int
	ID           string
	Name         string
	ArgsFragment string
}

// Usage reports token consumption for one generation.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
