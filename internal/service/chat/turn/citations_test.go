package turn

import (
	"strings"
	"testing"

	"sibyl/internal/domain/models/chat"
)

func citeablePayload(t *testing.T, results []chat.CiteableResult) string {
	t.Helper()
	payload, err := chat.EncodeCiteableResults(results)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return payload
}

func TestAssignCitationsNumbersNewDocuments(t *testing.T) {
	tc := testContext()
	payload := citeablePayload(t, []chat.CiteableResult{
		{Type: chat.ResultInternalSearch, Title: "Doc A", Excerpt: "...", SourceKey: "doc:a"},
		{Type: chat.ResultInternalSearch, Title: "Doc B", Excerpt: "...", SourceKey: "doc:b"},
	})
	msgs := []chat.Message{
		chat.UserMessage{Content: "question"},
		chat.AssistantMessage{ToolCalls: []chat.ToolCallRef{{ID: "c1", Name: "doc_search"}}},
		chat.ToolOutputMessage{CallID: "c1", Name: "doc_search", Payload: payload},
	}

	updated, newDocs, scanned := AssignCitations(msgs, tc)
	if newDocs != 2 {
		t.Errorf("newDocs: got %d, want 2", newDocs)
	}
	if scanned != 1 {
		t.Errorf("scanned: got %d, want 1", scanned)
	}

	tom := updated[2].(chat.ToolOutputMessage)
	results := chat.DecodeCiteableResults(tom.Payload)
	if len(results) != 2 {
		t.Fatalf("decoded %d results, want 2", len(results))
	}
	if results[0].CitationNumber == nil || *results[0].CitationNumber != 1 {
		t.Errorf("first result number: got %v, want 1", results[0].CitationNumber)
	}
	if results[1].CitationNumber == nil || *results[1].CitationNumber != 2 {
		t.Errorf("second result number: got %v, want 2", results[1].CitationNumber)
	}
	if strings.Contains(tom.Payload, "source_key") {
		t.Error("source_key must be stripped from the stamped payload")
	}

	if len(tc.Citations) != 2 {
		t.Fatalf("ledger has %d entries, want 2", len(tc.Citations))
	}
	if tc.Citations[0].Document.Title != "Doc A" {
		t.Errorf("ledger[0]: got %q, want Doc A", tc.Citations[0].Document.Title)
	}
}

func TestAssignCitationsIsIdempotent(t *testing.T) {
	tc := testContext()
	payload := citeablePayload(t, []chat.CiteableResult{
		{Type: chat.ResultWebSearch, Title: "Page", URL: "https://example.com", SourceKey: "url:https://example.com"},
	})
	msgs := []chat.Message{
		chat.ToolOutputMessage{CallID: "c1", Name: "web_search", Payload: payload},
	}

	first, newDocs, _ := AssignCitations(msgs, tc)
	if newDocs != 1 {
		t.Fatalf("first pass newDocs: got %d, want 1", newDocs)
	}

	second, newDocs, scanned := AssignCitations(first, tc)
	if newDocs != 0 || scanned != 0 {
		t.Errorf("second pass: got newDocs=%d scanned=%d, want 0 0", newDocs, scanned)
	}
	a := first[0].(chat.ToolOutputMessage)
	b := second[0].(chat.ToolOutputMessage)
	if a.Payload != b.Payload {
		t.Error("second pass must leave payloads byte-identical")
	}
}

func TestAssignCitationsReusesNumberForSameDocument(t *testing.T) {
	tc := testContext()

	// Round 1 cites example.com.
	p1 := citeablePayload(t, []chat.CiteableResult{
		{Type: chat.ResultWebSearch, URL: "https://example.com", SourceKey: "url:https://example.com"},
	})
	msgs := []chat.Message{
		chat.ToolOutputMessage{CallID: "c1", Name: "web_search", Payload: p1},
	}
	msgs, _, _ = AssignCitations(msgs, tc)

	// Round 2 fetches the same URL plus a new one.
	p2 := citeablePayload(t, []chat.CiteableResult{
		{Type: chat.ResultOpenURL, URL: "https://example.com", SourceKey: "url:https://example.com"},
		{Type: chat.ResultOpenURL, URL: "https://other.org", SourceKey: "url:https://other.org"},
	})
	msgs = append(msgs, chat.ToolOutputMessage{CallID: "c2", Name: "open_url", Payload: p2})

	msgs, newDocs, _ := AssignCitations(msgs, tc)
	if newDocs != 1 {
		t.Fatalf("newDocs: got %d, want 1 (example.com already numbered)", newDocs)
	}

	results := chat.DecodeCiteableResults(msgs[1].(chat.ToolOutputMessage).Payload)
	if *results[0].CitationNumber != 1 {
		t.Errorf("repeated document: got %d, want reused number 1", *results[0].CitationNumber)
	}
	if *results[1].CitationNumber != 2 {
		t.Errorf("new document: got %d, want 2", *results[1].CitationNumber)
	}
	if tc.DocumentsProcessed != 2 {
		t.Errorf("DocumentsProcessed: got %d, want 2", tc.DocumentsProcessed)
	}
}

func TestAssignCitationsSameDocumentTwiceInOneBatch(t *testing.T) {
	tc := testContext()
	payload := citeablePayload(t, []chat.CiteableResult{
		{Type: chat.ResultWebSearch, URL: "https://example.com", SourceKey: "url:https://example.com"},
		{Type: chat.ResultWebSearch, URL: "https://example.com", SourceKey: "url:https://example.com"},
	})
	msgs := []chat.Message{
		chat.ToolOutputMessage{CallID: "c1", Name: "web_search", Payload: payload},
	}

	msgs, newDocs, _ := AssignCitations(msgs, tc)
	if newDocs != 1 {
		t.Fatalf("newDocs: got %d, want 1", newDocs)
	}
	results := chat.DecodeCiteableResults(msgs[0].(chat.ToolOutputMessage).Payload)
	if *results[0].CitationNumber != 1 || *results[1].CitationNumber != 1 {
		t.Errorf("duplicate entries: got %d and %d, want 1 and 1",
			*results[0].CitationNumber, *results[1].CitationNumber)
	}
}

func TestAssignCitationsMalformedPayloadIgnored(t *testing.T) {
	tc := testContext()
	msgs := []chat.Message{
		chat.ToolOutputMessage{CallID: "c1", Name: "run_code", Payload: "exit code 0\nhello"},
	}

	updated, newDocs, scanned := AssignCitations(msgs, tc)
	if newDocs != 0 {
		t.Errorf("newDocs: got %d, want 0", newDocs)
	}
	if scanned != 1 {
		t.Errorf("scanned: got %d, want 1 (malformed payloads still count as processed)", scanned)
	}
	if updated[0].(chat.ToolOutputMessage).Payload != "exit code 0\nhello" {
		t.Error("non-citeable payload must be left untouched")
	}
}

func TestAssignCitationsRepairsTruncatedJSON(t *testing.T) {
	tc := testContext()
	// Truncated array: repair closes the brackets.
	payload := `[{"type":"web_search","url":"https://example.com","source_key":"url:https://example.com"`
	msgs := []chat.Message{
		chat.ToolOutputMessage{CallID: "c1", Name: "web_search", Payload: payload},
	}

	_, newDocs, _ := AssignCitations(msgs, tc)
	if newDocs != 1 {
		t.Errorf("newDocs: got %d, want 1 via repair", newDocs)
	}
}
