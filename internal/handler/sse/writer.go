// Package sse serializes turn events as server-sent event frames.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"sibyl/internal/domain/models/chat"
)

// Writer streams turn events to one SSE client.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher

	// debugIDs adds incrementing SSE ids to frames, useful when watching
	// streams with curl.
	debugIDs bool
	nextID   int
}

// NewWriter prepares an SSE response on w. Returns an error if the
// ResponseWriter cannot flush.
func NewWriter(w http.ResponseWriter, debugIDs bool) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w, flusher: flusher, debugIDs: debugIDs}, nil
}

// WriteEvent writes one event frame and flushes it.
func (s *Writer) WriteEvent(ev chat.Event) error {
	data, err := json.Marshal(payload(ev))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if s.debugIDs {
		if _, err := fmt.Fprintf(s.w, "id: %d\n", s.nextID); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		s.nextID++
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Kind(), data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// KeepAlive writes an SSE comment frame. A failed write means the client
// is gone.
func (s *Writer) KeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	s.flusher.Flush()

	// Zero-byte write to detect closed connections.
	if _, err := s.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}
	return nil
}

func payload(ev chat.Event) any {
	base := map[string]any{"turn_index": ev.Turn()}
	switch e := ev.(type) {
	case chat.MessageDelta:
		base["text"] = e.Text
	case chat.ReasoningDelta:
		base["text"] = e.Text
	case chat.ToolCallStart:
		base["call_id"] = e.CallID
		base["name"] = e.Name
	case chat.ToolCallArgsDelta:
		base["slot"] = e.Slot
		base["fragment"] = e.Fragment
	case chat.ToolCallOutput:
		base["call_id"] = e.CallID
		base["name"] = e.Name
		base["output"] = e.Output
	case chat.CitationDelta:
		base["number"] = e.Number
		base["document"] = e.Document
	case chat.Exception:
		if e.Err != nil {
			base["error"] = e.Err.Error()
		}
	}
	return base
}
