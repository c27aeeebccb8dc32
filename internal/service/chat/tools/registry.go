// Package tools implements the agent's invocable tools and their registry.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/service/chat/turn"
)

// Registry holds the tools available to the agent loop, keyed by their
// model-facing names. It is thread-safe. Registered tools are wrapped with
// JSON Schema validation of their arguments.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]turn.Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]turn.Tool)}
}

// Register adds a tool. The tool's parameter schema is compiled eagerly so
// a broken definition fails at startup, not mid-turn. Re-registering a
// name replaces the previous tool.
func (r *Registry) Register(tool turn.Tool) error {
	def := tool.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool has no name")
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = &validatedTool{Tool: tool, schema: schema}
	return nil
}

// Resolve implements turn.ToolResolver.
func (r *Registry) Resolve(name string) (turn.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions implements turn.ToolResolver, in registration order.
func (r *Registry) Definitions() []chat.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]chat.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func compileSchema(def chat.ToolDefinition) (*jsonschema.Schema, error) {
	params := def.Parameters
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal parameter schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	url := def.Name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add parameter schema: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return schema, nil
}

// validatedTool checks arguments against the tool's schema before running
// the wrapped tool. Violations surface as tool errors.
type validatedTool struct {
	turn.Tool
	schema *jsonschema.Schema
}

func (v *validatedTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	if err := v.schema.Validate(args); err != nil {
		return turn.ToolResponse{}, fmt.Errorf("invalid arguments: %w", err)
	}
	return v.Tool.Run(ctx, turnIndex, tc, args)
}
