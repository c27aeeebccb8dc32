// Package turn implements the streaming core of an assistant turn: the
// event emitter, the provider-delta translator, citation assignment, the
// producer/consumer bridge, and the agent loop that drives them.
package turn

import (
	"sync"
	"time"

	"sibyl/internal/domain/models/chat"
)

// Emitter is an unbounded ordered event queue written by the turn producer
// (and by tools running on the producer goroutine) and drained by a single
// consumer. Emit never blocks.
type Emitter struct {
	mu     sync.Mutex
	queue  []chat.Event
	notify chan struct{}
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{notify: make(chan struct{}, 1)}
}

// Emit appends an event to the queue and wakes the consumer.
func (e *Emitter) Emit(ev chat.Event) {
	e.mu.Lock()
	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Next pops the oldest event, waiting up to timeout for one to arrive.
// Returns (nil, false) on timeout. Single consumer only.
func (e *Emitter) Next(timeout time.Duration) (chat.Event, bool) {
	if ev, ok := e.pop(); ok {
		return ev, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-e.notify:
			if ev, ok := e.pop(); ok {
				return ev, true
			}
		case <-timer.C:
			// One last look: an Emit may have raced the notify drain.
			return e.pop()
		}
	}
}

// Len reports the number of queued events.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Emitter) pop() (chat.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil, false
	}
	ev := e.queue[0]
	e.queue = e.queue[1:]
	return ev, true
}
