package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDeliveryTimeout bounds one background delivery.
const DefaultDeliveryTimeout = 10 * time.Second

// Async decouples emission from delivery with a bounded buffer. Send
// never blocks: when the buffer is full the event is dropped and logged.
type Async struct {
	next    Sink
	events  chan *Event
	timeout time.Duration
	logger  *slog.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts a delivery goroutine in front of next.
func NewAsync(next Sink, buffer int, logger *slog.Logger) *Async {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:    next,
		events:  make(chan *Event, buffer),
		timeout: DefaultDeliveryTimeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Send enqueues e. It always returns nil.
func (a *Async) Send(_ context.Context, e *Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(e, "sink closed")
		return nil
	}
	select {
	case a.events <- e:
	default:
		a.drop(e, "buffer full")
	}
	return nil
}

// Dropped returns how many events were discarded.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits for the buffer to drain or ctx
// to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Send(ctx, e); err != nil {
			a.logger.Warn("notification delivery failed",
				slog.String("event_id", e.ID.String()),
				slog.String("type", string(e.Type)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

func (a *Async) drop(e *Event, reason string) {
	a.dropped.Add(1)
	a.logger.Warn("notification dropped",
		slog.String("event_id", e.ID.String()),
		slog.String("type", string(e.Type)),
		slog.String("reason", reason),
	)
}
