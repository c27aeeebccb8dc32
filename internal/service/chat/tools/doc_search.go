package tools

import (
	"context"
	"fmt"
	"log/slog"

	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
	"sibyl/internal/service/chat/turn"
)

const (
	docSearchDefaultLimit = 5
	docSearchMaxLimit     = 20
)

// DocSearchTool searches the user's internal document corpus. Results are
// citeable: each hit is registered in the turn's document cache under its
// document id.
type DocSearchTool struct {
	backend chatsvc.SearchBackend
	logger  *slog.Logger
}

// NewDocSearchTool creates the internal search tool.
func NewDocSearchTool(backend chatsvc.SearchBackend, logger *slog.Logger) *DocSearchTool {
	return &DocSearchTool{backend: backend, logger: logger}
}

func (t *DocSearchTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "doc_search",
		Description: "Search the user's documents. Returns matching excerpts ranked by relevance.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Full-text search query",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default 5)",
				},
			},
			"required": []any{"query"},
		},
	}
}

func (t *DocSearchTool) EmitStart(turnIndex int, tc *turn.Context) {
	t.logger.Debug("doc_search starting", "turn_id", tc.TurnID, "turn_index", turnIndex)
}

func (t *DocSearchTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return turn.ToolResponse{}, fmt.Errorf("query is required")
	}

	limit := docSearchDefaultLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	if limit > docSearchMaxLimit {
		limit = docSearchMaxLimit
	}

	hits, err := t.backend.Search(ctx, tc.UserID, query, limit)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("document search: %w", err)
	}

	if len(hits) == 0 {
		return turn.ToolResponse{Text: "[]"}, nil
	}

	results := make([]chat.CiteableResult, len(hits))
	for i, hit := range hits {
		key := "doc:" + hit.DocumentID
		results[i] = chat.CiteableResult{
			Type:      chat.ResultInternalSearch,
			Title:     hit.Title,
			Excerpt:   hit.Excerpt,
			SourceKey: key,
		}
		tc.RegisterDocument(key, results[i].Ref())
	}

	payload, err := chat.EncodeCiteableResults(results)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("encode results: %w", err)
	}
	return turn.ToolResponse{Text: payload}, nil
}
