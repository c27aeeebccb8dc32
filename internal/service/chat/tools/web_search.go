package tools

import (
	"context"
	"fmt"
	"log/slog"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/service/chat/tools/external"
	"sibyl/internal/service/chat/turn"
)

// WebSearchTool searches the web through an external search API. Results
// are citeable, keyed by URL.
type WebSearchTool struct {
	client external.SearchClient
	logger *slog.Logger
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(client external.SearchClient, logger *slog.Logger) *WebSearchTool {
	return &WebSearchTool{client: client, logger: logger}
}

func (t *WebSearchTool) Definition() chat.ToolDefinition {
	return chat.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web. Returns result titles, URLs, and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results (default 5)",
				},
				"topic": map[string]any{
					"type":        "string",
					"description": "Search category: general, news, or finance",
					"enum":        []any{"general", "news", "finance"},
				},
			},
			"required": []any{"query"},
		},
	}
}

func (t *WebSearchTool) EmitStart(turnIndex int, tc *turn.Context) {
	t.logger.Debug("web_search starting", "turn_id", tc.TurnID, "turn_index", turnIndex)
}

func (t *WebSearchTool) Run(ctx context.Context, turnIndex int, tc *turn.Context, args map[string]any) (turn.ToolResponse, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return turn.ToolResponse{}, fmt.Errorf("query is required")
	}

	opts := external.SearchOptions{}
	if v, ok := args["max_results"].(float64); ok && v > 0 {
		opts.MaxResults = int(v)
	}
	if v, ok := args["topic"].(string); ok {
		opts.Topic = v
	}

	resp, err := t.client.Search(ctx, query, opts)
	if err != nil {
		return turn.ToolResponse{}, fmt.Errorf("web search: %w", err)
	}

	if len(resp.Results) == 0 {
		return turn.ToolResponse{Text: "[]"}, nil
	}

	results := make([]chat.CiteableResult, len(resp.Results))
	for i, hit := range resp.Results {
		key := "url:" + hit.URL
		results[i] = chat.CiteableResult{
			Type:      chat.ResultWebSearch,
			Title:     hit.Title,
			URL:       hit.URL,
			Snippet:   hit.Snippet,
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
