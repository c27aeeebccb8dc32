package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sibyl/internal/domain/models/chat"
)

// DefaultPollInterval is how long the bridge consumer waits on an empty
// queue before re-checking producer liveness.
const DefaultPollInterval = 300 * time.Millisecond

// ErrBridgeConsumed is returned when Run is called a second time.
var ErrBridgeConsumed = errors.New("bridge already consumed")

// Producer is the turn-producing routine the bridge runs on its own
// goroutine. It must emit a Stop or Exception event before returning.
type Producer func(ctx context.Context) error

// Bridge connects one producer goroutine to one consumer through an
// Emitter. The consumer polls with a bounded timeout so it can notice a
// dead client; a disconnected consumer abandons the producer, which runs
// to natural completion in the background and persists its partial state.
type Bridge struct {
	emitter *Emitter
	poll    time.Duration
	logger  *slog.Logger

	done     chan struct{}
	prodErr  error // written before done closes
	consumed bool
}

// BridgeOption configures a bridge.
type BridgeOption func(*Bridge)

// WithPollInterval overrides the consumer poll timeout.
func WithPollInterval(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.poll = d
		}
	}
}

// NewBridge returns a bridge draining the given emitter.
func NewBridge(emitter *Emitter, logger *slog.Logger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		emitter: emitter,
		poll:    DefaultPollInterval,
		logger:  logger,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the producer on its own goroutine. The producer keeps
// running even after the consumer walks away; interruption happens only
// through ctx.
func (b *Bridge) Start(ctx context.Context, produce Producer) {
	go func() {
		defer close(b.done)
		defer func() {
			if r := recover(); r != nil {
				b.prodErr = fmt.Errorf("turn producer panic: %v", r)
				b.logger.Error("turn producer panicked", "panic", r)
			}
		}()
		b.prodErr = produce(ctx)
	}()
}

// Done is closed when the producer has returned.
func (b *Bridge) Done() <-chan struct{} { return b.done }

// Run drains events to handle until the turn ends. Single pass, single
// consumer. Exit paths:
//
//   - Stop event: forwarded to handle once, then the producer is joined.
//   - Exception event: converted into the returned error; the producer is
//     joined (producers terminate right after emitting Exception).
//   - alive() false on an idle poll: the producer is abandoned without a
//     join and Run returns nil.
//   - handle error (e.g. a failed write to a gone client): returned as-is,
//     producer abandoned.
//
// When the producer has returned and the queue is drained, Run returns the
// producer's error, if any.
func (b *Bridge) Run(alive func() bool, handle func(chat.Event) error) error {
	if b.consumed {
		return ErrBridgeConsumed
	}
	b.consumed = true

	for {
		ev, ok := b.emitter.Next(b.poll)
		if !ok {
			select {
			case <-b.done:
				if b.emitter.Len() == 0 {
					return b.prodErr
				}
				continue
			default:
			}
			if !alive() {
				b.logger.Debug("consumer gone, abandoning turn producer")
				return nil
			}
			continue
		}

		switch e := ev.(type) {
		case chat.Stop:
			if err := handle(e); err != nil {
				return err
			}
			<-b.done
			return b.prodErr
		case chat.Exception:
			<-b.done
			if e.Err != nil {
				return e.Err
			}
			if b.prodErr != nil {
				return b.prodErr
			}
			return errors.New("turn failed")
		default:
			if err := handle(ev); err != nil {
				return err
			}
		}
	}
}
