package turn

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"sibyl/internal/domain/models/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBridgeForwardsEventsAndStop(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(20*time.Millisecond))

	b.Start(context.Background(), func(ctx context.Context) error {
		e.Emit(chat.MessageStart{TurnIndex: 0})
		e.Emit(chat.MessageDelta{TurnIndex: 0, Text: "hi"})
		e.Emit(chat.MessageDone{TurnIndex: 0})
		e.Emit(chat.Stop{TurnIndex: 0})
		return nil
	})

	var got []chat.Event
	err := b.Run(func() bool { return true }, func(ev chat.Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	requireKinds(t, got, []chat.EventKind{
		chat.KindMessageStart,
		chat.KindMessageDelta,
		chat.KindMessageDone,
		chat.KindStop,
	})
}

func TestBridgeAbandonsProducerOnDisconnect(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	release := make(chan struct{})
	b.Start(context.Background(), func(ctx context.Context) error {
		e.Emit(chat.MessageStart{TurnIndex: 0})
		e.Emit(chat.MessageDelta{TurnIndex: 0, Text: "one"})
		e.Emit(chat.MessageDelta{TurnIndex: 0, Text: "two"})
		<-release // producer stays busy past the disconnect
		e.Emit(chat.Stop{TurnIndex: 0})
		return nil
	})

	consumed := 0
	err := b.Run(
		func() bool { return consumed < 3 }, // client gone after three events
		func(ev chat.Event) error {
			consumed++
			return nil
		},
	)
	if err != nil {
		t.Fatalf("disconnect must not surface an error, got %v", err)
	}
	if consumed != 3 {
		t.Errorf("consumed %d events, want 3", consumed)
	}

	// The producer was abandoned, not killed: it still finishes.
	close(release)
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("producer did not run to completion after abandonment")
	}
}

func TestBridgeConvertsExceptionToError(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	boom := errors.New("provider exploded")
	b.Start(context.Background(), func(ctx context.Context) error {
		e.Emit(chat.MessageStart{TurnIndex: 0})
		e.Emit(chat.Exception{TurnIndex: 0, Err: boom})
		return boom
	})

	var got []chat.Event
	err := b.Run(func() bool { return true }, func(ev chat.Event) error {
		got = append(got, ev)
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the producer error", err)
	}
	requireKinds(t, got, []chat.EventKind{chat.KindMessageStart})
}

func TestBridgeReturnsProducerErrorWhenNoTerminalEvent(t *testing.T) {
	// A producer that dies without emitting Stop or Exception still
	// surfaces its error once the queue drains.
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	boom := errors.New("silent death")
	b.Start(context.Background(), func(ctx context.Context) error {
		return boom
	})

	err := b.Run(func() bool { return true }, func(ev chat.Event) error { return nil })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want producer error", err)
	}
}

func TestBridgeRecoversProducerPanic(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	b.Start(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})

	err := b.Run(func() bool { return true }, func(ev chat.Event) error { return nil })
	if err == nil {
		t.Fatal("expected an error from the panicking producer")
	}
}

func TestBridgeSinglePass(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	b.Start(context.Background(), func(ctx context.Context) error {
		e.Emit(chat.Stop{TurnIndex: 0})
		return nil
	})

	if err := b.Run(func() bool { return true }, func(chat.Event) error { return nil }); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := b.Run(func() bool { return true }, func(chat.Event) error { return nil }); !errors.Is(err, ErrBridgeConsumed) {
		t.Fatalf("second run: got %v, want ErrBridgeConsumed", err)
	}
}

func TestBridgeHandleErrorAbandonsProducer(t *testing.T) {
	e := NewEmitter()
	b := NewBridge(e, testLogger(), WithPollInterval(10*time.Millisecond))

	b.Start(context.Background(), func(ctx context.Context) error {
		e.Emit(chat.MessageStart{TurnIndex: 0})
		e.Emit(chat.Stop{TurnIndex: 0})
		return nil
	})

	writeErr := errors.New("client write failed")
	err := b.Run(func() bool { return true }, func(ev chat.Event) error {
		return writeErr
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("got %v, want the handle error", err)
	}

	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("producer did not finish")
	}
}
