package turn

import (
	"context"

	"sibyl/internal/domain/models/chat"
	chatrepo "sibyl/internal/domain/repositories/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// DocumentEntry is one fetched document in the turn's cache. Citation is
// nil until the citation engine assigns a number; once set it never changes.
type DocumentEntry struct {
	Ref      chat.DocumentRef
	Citation *int
}

// Context carries the mutable state of one in-flight assistant turn.
// It is written only by the producer goroutine running the agent loop;
// tools receive it by pointer and mutate it from that same goroutine.
type Context struct {
	ChatID string
	TurnID string
	UserID string
	Model  string

	// RunStep is the current LLM round within the turn, stamped onto
	// every emitted event.
	RunStep int

	// ShouldCite enables citation assignment for this turn.
	ShouldCite bool

	// Documents caches every document fetched during the turn, keyed by
	// source key. Citations is the ledger of assigned numbers in order.
	Documents map[string]*DocumentEntry
	Citations []chat.Citation

	// DocumentsProcessed and ToolCallsProcessed are the citation engine's
	// prefix counters: how many documents have been numbered and how many
	// tool-output messages have already been scanned.
	DocumentsProcessed int
	ToolCallsProcessed int

	// InputTokens is the running estimate for the next request.
	InputTokens int

	ToolDefs []chat.ToolDefinition

	Emitter  *Emitter
	Provider chatsvc.Provider
	Store    chatrepo.TurnStore
}

// NewContext returns a turn context with an empty document cache.
func NewContext(chatID, turnID, userID, model string) *Context {
	return &Context{
		ChatID:    chatID,
		TurnID:    turnID,
		UserID:    userID,
		Model:     model,
		Documents: make(map[string]*DocumentEntry),
	}
}

// RegisterDocument records a fetched document in the cache if its source
// key is new. Returns the cache entry either way.
func (c *Context) RegisterDocument(sourceKey string, ref chat.DocumentRef) *DocumentEntry {
	if entry, ok := c.Documents[sourceKey]; ok {
		return entry
	}
	entry := &DocumentEntry{Ref: ref}
	c.Documents[sourceKey] = entry
	return entry
}

// ToolResponse is what a tool returns from Run. Text is the payload fed
// back to the model; Artifact is an optional rich object persisted with
// the turn (image descriptors, execution results).
type ToolResponse struct {
	Text     string
	Artifact any
}

// Tool is one invocable capability of the agent loop. Run executes on the
// producer goroutine and may emit progress events through the turn context.
type Tool interface {
	Definition() chat.ToolDefinition
	EmitStart(turnIndex int, tc *Context)
	Run(ctx context.Context, turnIndex int, tc *Context, args map[string]any) (ToolResponse, error)
}

// ToolResolver maps model-facing tool names to tools.
type ToolResolver interface {
	Resolve(name string) (Tool, bool)
	Definitions() []chat.ToolDefinition
}

// EstimateTokens approximates the token count of a string. Four bytes per
// token tracks close enough to real tokenizers for budget enforcement.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateMessageTokens approximates the prompt size of a message history,
// including a small per-message framing overhead.
func EstimateMessageTokens(msgs []chat.Message) int {
	total := 0
	for _, m := range msgs {
		total += 4
		switch msg := m.(type) {
		case chat.SystemMessage:
			total += EstimateTokens(msg.Content)
		case chat.UserMessage:
			total += EstimateTokens(msg.Content)
		case chat.AssistantMessage:
			total += EstimateTokens(msg.Content)
			for _, tc := range msg.ToolCalls {
				total += EstimateTokens(tc.Name) + EstimateTokens(tc.Arguments)
			}
		case chat.ToolOutputMessage:
			total += EstimateTokens(msg.Payload)
		}
	}
	return total
}
