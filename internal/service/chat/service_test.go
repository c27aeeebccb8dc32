package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"sibyl/internal/domain"
	"sibyl/internal/domain/models/chat"
	chatsvc "sibyl/internal/domain/services/chat"
	"sibyl/internal/service/chat/providers/scripted"
	"sibyl/internal/service/chat/turn"
)

type memTurnStore struct {
	mu     sync.Mutex
	turns  map[string]*chat.Turn
	states map[string]*chat.TurnState
}

func newMemTurnStore() *memTurnStore {
	return &memTurnStore{turns: make(map[string]*chat.Turn), states: make(map[string]*chat.TurnState)}
}

func (s *memTurnStore) CreateTurn(ctx context.Context, t *chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[t.ID] = t
	return nil
}

func (s *memTurnStore) GetTurn(ctx context.Context, turnID string) (*chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[turnID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *memTurnStore) SaveTurnState(ctx context.Context, turnID string, state *chat.TurnState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[turnID] = state
	return nil
}

func (s *memTurnStore) UpdateTurnStatus(ctx context.Context, turnID string, status chat.TurnStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[turnID]; ok {
		t.Status = status
	}
	return nil
}

func (s *memTurnStore) UpdateTurnError(ctx context.Context, turnID string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[turnID]; ok {
		t.Status = chat.TurnError
		t.Error = &message
	}
	return nil
}

func (s *memTurnStore) status(turnID string) chat.TurnStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.turns[turnID]; ok {
		return t.Status
	}
	return ""
}

type emptyResolver struct{}

func (emptyResolver) Resolve(name string) (turn.Tool, bool)    { return nil, false }
func (emptyResolver) Definitions() []chat.ToolDefinition       { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServiceTurnLifecycle(t *testing.T) {
	store := newMemTurnStore()
	provider := scripted.New([]chatsvc.Delta{
		{Content: "Hello"},
		{Content: " there"},
		{FinishReason: chatsvc.FinishStop},
	})
	svc := NewService(store, provider, emptyResolver{}, Options{
		DefaultModel: "test-model",
		PollInterval: 10 * time.Millisecond,
	}, testLogger())

	created, err := svc.StartTurn(context.Background(), StartTurnParams{
		ChatID:  "chat-1",
		UserID:  "user-1",
		Message: "hi",
	})
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	if created.Model != "test-model" {
		t.Errorf("model: got %q", created.Model)
	}

	bridge, err := svc.Stream(created.ID, "user-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text string
	err = bridge.Run(func() bool { return true }, func(ev chat.Event) error {
		if d, ok := ev.(chat.MessageDelta); ok {
			text += d.Text
		}
		return nil
	})
	if err != nil {
		t.Fatalf("bridge run: %v", err)
	}
	svc.Release(created.ID)

	if text != "Hello there" {
		t.Errorf("streamed text: got %q", text)
	}
	if got := store.status(created.ID); got != chat.TurnComplete {
		t.Errorf("status: got %s, want complete", got)
	}
	if _, err := svc.Stream(created.ID, "user-1"); !errors.Is(err, domain.ErrTurnNotActive) {
		t.Errorf("after release: got %v, want ErrTurnNotActive", err)
	}
}

func TestServiceStreamOwnership(t *testing.T) {
	store := newMemTurnStore()
	svc := NewService(store, scripted.New(), emptyResolver{}, Options{
		DefaultModel: "test-model",
		PollInterval: 10 * time.Millisecond,
	}, testLogger())

	created, err := svc.StartTurn(context.Background(), StartTurnParams{
		ChatID: "chat-1", UserID: "user-1", Message: "hi",
	})
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}
	defer svc.Release(created.ID)

	if _, err := svc.Stream(created.ID, "someone-else"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
	if err := svc.Interrupt(created.ID, "someone-else"); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("interrupt: got %v, want ErrForbidden", err)
	}
}

// stallingProvider streams one delta, then holds the stream open until
// the producer context is cancelled.
type stallingProvider struct{}

func (stallingProvider) StreamResponse(ctx context.Context, req *chatsvc.GenerateRequest) (<-chan chatsvc.StreamEvent, error) {
	ch := make(chan chatsvc.StreamEvent, 2)
	go func() {
		defer close(ch)
		d := chatsvc.Delta{Content: "partial answer"}
		ch <- chatsvc.StreamEvent{Delta: &d}
		<-ctx.Done()
		ch <- chatsvc.StreamEvent{Err: ctx.Err()}
	}()
	return ch, nil
}

func TestServiceInterruptPersistsPartialState(t *testing.T) {
	store := newMemTurnStore()

	svc := NewService(store, stallingProvider{}, emptyResolver{}, Options{
		DefaultModel: "test-model",
		PollInterval: 10 * time.Millisecond,
	}, testLogger())

	created, err := svc.StartTurn(context.Background(), StartTurnParams{
		ChatID: "chat-1", UserID: "user-1", Message: "hi",
	})
	if err != nil {
		t.Fatalf("start turn: %v", err)
	}

	bridge, err := svc.Stream(created.ID, "user-1")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if err := svc.Interrupt(created.ID, "user-1"); err != nil {
		t.Fatalf("interrupt: %v", err)
	}

	select {
	case <-bridge.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not exit after interrupt")
	}
	svc.Release(created.ID)

	if got := store.status(created.ID); got != chat.TurnInterrupted {
		t.Errorf("status: got %s, want interrupted", got)
	}
	store.mu.Lock()
	state := store.states[created.ID]
	store.mu.Unlock()
	if state == nil || state.Answer != "partial answer" {
		t.Errorf("partial state: got %+v", state)
	}
}
