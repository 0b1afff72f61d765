package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/civicledger/civic-ledger/internal/lifecycle"
)

// Sink receives every published event. Deliver is called from a single
// goroutine, in publication order.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e lifecycle.Event) error
}

// Bus is a lifecycle.Notifier that hands events to its sinks on a separate
// goroutine, so a slow sink never stalls the command lane. Sink errors are
// logged and do not stop the chain.
type Bus struct {
	sinks   []Sink
	queue   chan lifecycle.Event
	onError func(sink string, err error)
	ctx     context.Context
	cancel  context.CancelFunc
	closed  chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closing bool
}

type BusOption func(*Bus)

// WithErrorHook is called for every failed delivery, after it is logged.
func WithErrorHook(fn func(sink string, err error)) BusOption {
	return func(b *Bus) { b.onError = fn }
}

func WithBuffer(n int) BusOption {
	return func(b *Bus) { b.queue = make(chan lifecycle.Event, n) }
}

func NewBus(sinks []Sink, opts ...BusOption) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		sinks:  sinks,
		queue:  make(chan lifecycle.Event, 1024),
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.drain()
	return b
}

// Notify queues e. It blocks only when the buffer is full. Events published
// after Close are dropped.
func (b *Bus) Notify(e lifecycle.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closing {
		slog.Warn("event dropped after bus close", "kind", e.Kind())
		return
	}
	b.queue <- e
}

func (b *Bus) drain() {
	defer close(b.closed)
	for e := range b.queue {
		for _, s := range b.sinks {
			if err := s.Deliver(b.ctx, e); err != nil {
				id, _ := ReportIDOf(e)
				slog.Error("event delivery failed", "sink", s.Name(), "kind", e.Kind(), "report_id", id, "error", err)
				if b.onError != nil {
					b.onError(s.Name(), err)
				}
			}
		}
	}
}

// Close stops accepting events and waits until queued ones are delivered or
// ctx expires. Sinks see a cancelled context once ctx expires.
func (b *Bus) Close(ctx context.Context) error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closing = true
		close(b.queue)
		b.mu.Unlock()
	})
	select {
	case <-b.closed:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

// LogSink writes each event as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Deliver(ctx context.Context, e lifecycle.Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"kind", e.Kind(), "occurred_at", e.OccurredAt()}
	switch ev := e.(type) {
	case lifecycle.ReportCreated:
		attrs = append(attrs, "report_id", ev.ID, "evidence", ev.EvidenceReference)
	case lifecycle.StatusChanged:
		attrs = append(attrs, "report_id", ev.ID, "from", ev.OldStatus.String(), "to", ev.NewStatus.String(), "actor", ev.Actor.String())
	case lifecycle.VoteCast:
		attrs = append(attrs, "report_id", ev.ID, "phase", ev.Phase.String(), "support", ev.Support, "status", ev.ResultingStatus.String())
	case lifecycle.CapabilityChanged:
		attrs = append(attrs, "principal", ev.Principal, "capability", ev.Capability.String(), "actor", ev.Actor.String())
	}
	logger.InfoContext(ctx, "lifecycle event", attrs...)
	return nil
}

// NotifierSink adapts a synchronous lifecycle.Notifier, such as the metrics
// event counter, into a Sink.
type NotifierSink struct {
	Label    string
	Notifier lifecycle.Notifier
}

func (s NotifierSink) Name() string { return s.Label }

func (s NotifierSink) Deliver(_ context.Context, e lifecycle.Event) error {
	s.Notifier.Notify(e)
	return nil
}
