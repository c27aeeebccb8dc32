package chat

import "time"

// TurnStatus tracks the lifecycle of an assistant turn.
type TurnStatus string

const (
	TurnStreaming   TurnStatus = "streaming"
	TurnComplete    TurnStatus = "complete"
	TurnError       TurnStatus = "error"
	TurnInterrupted TurnStatus = "interrupted"
)

// Turn is one assistant turn of a chat.
type Turn struct {
	ID          string
	ChatID      string
	UserID      string
	Model       string
	Status      TurnStatus
	Error       *string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TurnState is the persistable accumulation of a turn: everything the
// client needs to re-render the turn after the stream is gone. Saved
// partially on interrupt and error, fully on completion.
type TurnState struct {
	Answer       string           `json:"answer"`
	Reasoning    string           `json:"reasoning,omitempty"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	Citations    []Citation       `json:"citations,omitempty"`
	StopReason   string           `json:"stop_reason,omitempty"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
}

// ToolCallRecord is one executed tool call as persisted with the turn.
type ToolCallRecord struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output,omitempty"`
	Artifact  any    `json:"artifact,omitempty"`
}
