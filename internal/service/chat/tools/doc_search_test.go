package tools

import (
	"context"
	"errors"
	"testing"

	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

type mockSearchBackend struct {
	hits    []chatsvc.SearchHit
	err     error
	gotUser string
	gotQ    string
	gotLim  int
}

func (m *mockSearchBackend) Search(ctx context.Context, userID, query string, limit int) ([]chatsvc.SearchHit, error) {
	m.gotUser = userID
	m.gotQ = query
	m.gotLim = limit
	return m.hits, m.err
}

func TestDocSearchReturnsCiteableResults(t *testing.T) {
	backend := &mockSearchBackend{hits: []chatsvc.SearchHit{
		{DocumentID: "d1", Title: "Doc One", Excerpt: "first match"},
		{DocumentID: "d2", Title: "Doc Two", Excerpt: "second match"},
	}}
	tool := NewDocSearchTool(backend, testLogger())
	tc := testTurnContext()

	resp, err := tool.Run(context.Background(), 0, tc, map[string]any{"query": "match"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.gotUser != "user-1" || backend.gotQ != "match" || backend.gotLim != docSearchDefaultLimit {
		t.Errorf("backend called with user=%q q=%q limit=%d", backend.gotUser, backend.gotQ, backend.gotLim)
	}

	results := chat.DecodeCiteableResults(resp.Text)
	if len(results) != 2 {
		t.Fatalf("decoded %d results, want 2", len(results))
	}
	if results[0].Type != chat.ResultInternalSearch || results[0].SourceKey != "doc:d1" {
		t.Errorf("first result: %+v", results[0])
	}
	if results[0].CitationNumber != nil {
		t.Error("tool output must not carry citation numbers")
	}

	// Both documents are registered in the turn cache.
	if len(tc.Documents) != 2 {
		t.Errorf("cached %d documents, want 2", len(tc.Documents))
	}
	if entry, ok := tc.Documents["doc:d2"]; !ok || entry.Ref.Title != "Doc Two" {
		t.Errorf("doc:d2 cache entry: %+v", entry)
	}
}

func TestDocSearchEmptyAndErrors(t *testing.T) {
	t.Run("no hits yields empty array", func(t *testing.T) {
		tool := NewDocSearchTool(&mockSearchBackend{}, testLogger())
		resp, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{"query": "nothing"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Text != "[]" {
			t.Errorf("got %q, want []", resp.Text)
		}
	})

	t.Run("missing query errors", func(t *testing.T) {
		tool := NewDocSearchTool(&mockSearchBackend{}, testLogger())
		if _, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("backend error propagates", func(t *testing.T) {
		boom := errors.New("db down")
		tool := NewDocSearchTool(&mockSearchBackend{err: boom}, testLogger())
		_, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{"query": "x"})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want wrapped backend error", err)
		}
	})

	t.Run("limit is clamped", func(t *testing.T) {
		backend := &mockSearchBackend{}
		tool := NewDocSearchTool(backend, testLogger())
		if _, err := tool.Run(context.Background(), 0, testTurnContext(), map[string]any{"query": "x", "limit": 100.0}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backend.gotLim != docSearchMaxLimit {
			t.Errorf("limit: got %d, want %d", backend.gotLim, docSearchMaxLimit)
		}
	})
}
