package turn

import (
	"sibyl/internal/domain/models/chat"
)

// AssignCitations walks the tool-output messages of the history and stamps
// citation numbers onto citeable results that do not have one yet.
//
// The engine is incremental and idempotent: tc.ToolCallsProcessed counts
// the tool-output messages already scanned on earlier invocations, so only
// the new suffix is examined. Numbers are 1-based, assigned in encounter
// order, and never reassigned; a document seen again (by source key) reuses
// its existing number. Stamped payloads are re-serialized with source keys
// stripped.
//
// Returns the updated history plus the counts of newly numbered documents
// and newly scanned tool-output messages.
func AssignCitations(msgs []chat.Message, tc *Context) ([]chat.Message, int, int) {
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)

	var (
		toolMsgIndex int
		newDocs      int
		newScanned   int
	)

	for i, m := range msgs {
		tom, ok := m.(chat.ToolOutputMessage)
		if !ok {
			continue
		}
		idx := toolMsgIndex
		toolMsgIndex++
		if idx < tc.ToolCallsProcessed {
			continue
		}
		newScanned++

		results := chat.DecodeCiteableResults(tom.Payload)
		if len(results) == 0 {
			continue
		}

		stamped := false
		for j := range results {
			r := &results[j]
			if r.CitationNumber != nil || r.SourceKey == "" {
				continue
			}

			entry := tc.RegisterDocument(r.SourceKey, r.Ref())
			if entry.Citation == nil {
				n := tc.DocumentsProcessed + newDocs + 1
				entry.Citation = &n
				newDocs++
				tc.Citations = append(tc.Citations, chat.Citation{Number: n, Document: entry.Ref})
			}

			n := *entry.Citation
			r.CitationNumber = &n
			r.SourceKey = ""
			stamped = true
		}

		if !stamped {
			continue
		}
		payload, err := chat.EncodeCiteableResults(results)
		if err != nil {
			// Leave the original payload in place; nothing was lost.
			continue
		}
		tom.Payload = payload
		out[i] = tom
	}

	tc.DocumentsProcessed += newDocs
	tc.ToolCallsProcessed += newScanned
	return out, newDocs, newScanned
}
