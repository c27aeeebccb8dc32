package chat

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// Result types for citeable tool outputs.
const (
	ResultInternalSearch = "internal_search"
	ResultWebSearch      = "web_search"
	ResultOpenURL        = "open_url"
)

// DocumentRef is the client-facing identity of a cited document.
type DocumentRef struct {
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Citation pairs a stable 1-based citation number with its document.
type Citation struct {
	Number   int         `json:"number"`
	Document DocumentRef `json:"document"`
}

// CiteableResult is one entry of a citeable tool-output payload. The zero
// CitationNumber pointer means "not yet assigned" and the field is omitted
// from the serialized form. SourceKey is the stable per-document cache key
// (document id or normalized URL); the citation engine strips it before the
// payload re-enters the model context.
type CiteableResult struct {
	Type           string            `json:"type"`
	CitationNumber *int              `json:"document_citation_number,omitempty"`
	Title          string            `json:"title,omitempty"`
	URL            string            `json:"url,omitempty"`
	Excerpt        string            `json:"excerpt,omitempty"`
	Snippet        string            `json:"snippet,omitempty"`
	Content        string            `json:"content,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SourceKey      string            `json:"source_key,omitempty"`
}

// Ref derives the client-facing document reference for this result.
func (r *CiteableResult) Ref() DocumentRef {
	return DocumentRef{Type: r.Type, Title: r.Title, URL: r.URL}
}

// DecodeCiteableResults parses a tool-output payload into citeable results.
// Decoding is best-effort: invalid JSON goes through a repair pass first,
// and anything still unparseable yields nil rather than an error, since a
// payload that cannot be decoded simply carries nothing to cite.
func DecodeCiteableResults(payload string) []CiteableResult {
	var results []CiteableResult
	if err := json.Unmarshal([]byte(payload), &results); err == nil {
		return results
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(repaired), &results); err != nil {
		return nil
	}
	return results
}

// EncodeCiteableResults serializes results back into a tool-output payload.
func EncodeCiteableResults(results []CiteableResult) (string, error) {
	data, err := json.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
