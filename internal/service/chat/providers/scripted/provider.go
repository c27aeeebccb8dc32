// Package scripted implements an in-memory provider that plays back
// canned delta scripts. It backs local development without an API key and
// service-level tests.
package scripted

import (
	"context"
	"strings"
	"sync"
	"time"

	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
)

// Provider replays one script per StreamResponse call, then repeats the
// last script. The zero value streams a fixed greeting.
type Provider struct {
	mu      sync.Mutex
	scripts [][]chatsvc.Delta
	call    int

	// Delay between deltas, to make dev streams look alive.
	Delay time.Duration
}

// New creates a provider over the given scripts.
func New(scripts ...[]chatsvc.Delta) *Provider {
	return &Provider{scripts: scripts}
}

// NewEcho creates a dev provider that streams back the last user message
// word by word.
func NewEcho(delay time.Duration) *Provider {
	return &Provider{Delay: delay}
}

// StreamResponse implements the provider contract.
func (p *Provider) StreamResponse(ctx context.Context, req *chatsvc.GenerateRequest) (<-chan chatsvc.StreamEvent, error) {
	script := p.nextScript(req)

	ch := make(chan chatsvc.StreamEvent)
	go func() {
		defer close(ch)
		for i := range script {
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-ctx.Done():
					return
				}
			}
			d := script[i]
			select {
			case ch <- chatsvc.StreamEvent{Delta: &d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *Provider) nextScript(req *chatsvc.GenerateRequest) []chatsvc.Delta {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.scripts) == 0 {
		return echoScript(req)
	}
	i := p.call
	if i >= len(p.scripts) {
		i = len(p.scripts) - 1
	}
	p.call++
	return p.scripts[i]
}

func echoScript(req *chatsvc.GenerateRequest) []chatsvc.Delta {
	text := "Hello from the scripted provider."
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if um, ok := req.Messages[i].(chat.UserMessage); ok {
			text = "You said: " + um.Content
			break
		}
	}
	words := strings.Fields(text)
	deltas := make([]chatsvc.Delta, 0, len(words)+1)
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		deltas = append(deltas, chatsvc.Delta{Content: w})
	}
	deltas = append(deltas, chatsvc.Delta{FinishReason: chatsvc.FinishStop})
	return deltas
}
