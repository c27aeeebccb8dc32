package chat

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one entry of the conversation history sent to the provider.
type Message interface {
	Role() MessageRole
}

// SystemMessage carries the system prompt.
type SystemMessage struct {
	Content string
}

// UserMessage carries one user turn.
type UserMessage struct {
	Content string
}

// AssistantMessage carries one assistant turn, including any tool calls
// the model requested during it.
type AssistantMessage struct {
	Content   string
	ToolCalls []ToolCallRef
}

// ToolOutputMessage carries the payload a tool returned for one call.
// Payload is the string fed back to the model; for citeable tools it is a
// JSON array of citeable results.
type ToolOutputMessage struct {
	CallID  string
	Name    string
	Payload string
}

// ToolCallRef records one tool call as it appeared in an assistant message.
type ToolCallRef struct {
	ID        string
	Name      string
	Arguments string
}

func (m SystemMessage) Role() MessageRole     { return RoleSystem }
func (m UserMessage) Role() MessageRole       { return RoleUser }
func (m AssistantMessage) Role() MessageRole  { return RoleAssistant }
func (m ToolOutputMessage) Role() MessageRole { return RoleTool }
