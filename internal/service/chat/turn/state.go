package turn

import (
	"strings"

	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// StateContainer accumulates the persistable shape of a turn as the agent
// loop runs. It is always in a saveable state, so interrupt and error
// paths can persist whatever was produced so far. Written only by the
// producer goroutine.
type StateContainer struct {
	answer     strings.Builder
	reasoning  strings.Builder
	toolCalls  []chat.ToolCallRecord
	citations  []chat.Citation
	stopReason string
	usage      chatsvc.Usage
}

// NewStateContainer returns an empty container.
func NewStateContainer() *StateContainer {
	return &StateContainer{}
}

func (s *StateContainer) AppendAnswer(text string)    { s.answer.WriteString(text) }
func (s *StateContainer) AppendReasoning(text string) { s.reasoning.WriteString(text) }

func (s *StateContainer) AddToolCalls(records []chat.ToolCallRecord) {
	s.toolCalls = append(s.toolCalls, records...)
}

func (s *StateContainer) AddCitation(c chat.Citation) {
	s.citations = append(s.citations, c)
}

func (s *StateContainer) SetStopReason(reason string) { s.stopReason = reason }

func (s *StateContainer) AddUsage(u *chatsvc.Usage) {
	if u == nil {
		return
	}
	s.usage.InputTokens += u.InputTokens
	s.usage.OutputTokens += u.OutputTokens
}

// Snapshot returns the current persistable state.
func (s *StateContainer) Snapshot() *chat.TurnState {
	return &chat.TurnState{
		Answer:       s.answer.String(),
		Reasoning:    s.reasoning.String(),
		ToolCalls:    append([]chat.ToolCallRecord(nil), s.toolCalls...),
		Citations:    append([]chat.Citation(nil), s.citations...),
		StopReason:   s.stopReason,
		InputTokens:  s.usage.InputTokens,
		OutputTokens: s.usage.OutputTokens,
	}
}
