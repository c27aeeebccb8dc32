package turn

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"sibyl/internal/domain/models/chat"
)

func TestEmitterFIFOOrder(t *testing.T) {
	e := NewEmitter()

	for i := 0; i < 5; i++ {
		e.Emit(chat.MessageDelta{TurnIndex: 0, Text: fmt.Sprintf("chunk-%d", i)})
	}

	for i := 0; i < 5; i++ {
		ev, ok := e.Next(10 * time.Millisecond)
		if !ok {
			t.Fatalf("event %d: expected an event, got timeout", i)
		}
		delta, ok := ev.(chat.MessageDelta)
		if !ok {
			t.Fatalf("event %d: expected MessageDelta, got %T", i, ev)
		}
		want := fmt.Sprintf("chunk-%d", i)
		if delta.Text != want {
			t.Errorf("event %d: got %q, want %q", i, delta.Text, want)
		}
	}
}

func TestEmitterNextTimesOutWhenEmpty(t *testing.T) {
	e := NewEmitter()

	start := time.Now()
	ev, ok := e.Next(20 * time.Millisecond)
	if ok {
		t.Fatalf("expected timeout, got event %T", ev)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("Next returned after %v, expected it to wait for the timeout", elapsed)
	}
}

func TestEmitterNextWakesOnEmit(t *testing.T) {
	e := NewEmitter()

	go func() {
		time.Sleep(10 * time.Millisecond)
		e.Emit(chat.Stop{TurnIndex: 0})
	}()

	ev, ok := e.Next(500 * time.Millisecond)
	if !ok {
		t.Fatal("expected an event before the timeout")
	}
	if _, ok := ev.(chat.Stop); !ok {
		t.Fatalf("expected Stop, got %T", ev)
	}
}

func TestEmitterConcurrentProducers(t *testing.T) {
	e := NewEmitter()

	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				e.Emit(chat.MessageDelta{TurnIndex: 0, Text: "x"})
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, ok := e.Next(10 * time.Millisecond)
		if !ok {
			break
		}
		count++
	}
	if count != producers*perProducer {
		t.Errorf("drained %d events, want %d", count, producers*perProducer)
	}
}
