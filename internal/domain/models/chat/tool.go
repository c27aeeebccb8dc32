package chat

// ToolDefinition is the provider-facing description of one tool. Parameters
// is a JSON Schema object describing the arguments.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}
