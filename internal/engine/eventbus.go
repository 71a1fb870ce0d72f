package engine

import (
	"context"
	"sync/atomic"
)

// EventBus is an optional, non-blocking fan-out of worker Events to anyone
// watching (an admin console, an audit tailer). It is deliberately separate
// from FillSink: FillSink is the synchronous, mandatory fill contract the
// engine library exposes per its external interface; EventBus is best-effort
// and can be ignored entirely by callers who only care about fills.
type EventBus struct {
	ch      chan Event
	dropped uint64
}

func NewEventBus(size int) *EventBus {
	if size <= 0 {
		size = 1 << 12
	}
	return &EventBus{ch: make(chan Event, size)}
}

// TryPublish never blocks: a slow or absent consumer only costs a dropped
// counter, never a stalled worker.
func (b *EventBus) TryPublish(ev Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		atomic.AddUint64(&b.dropped, 1)
		return false
	}
}

func (b *EventBus) C() <-chan Event { return b.ch }
func (b *EventBus) Dropped() uint64 { return atomic.LoadUint64(&b.dropped) }

// Publish blocks until delivered or ctx is cancelled, for callers that want
// backpressure instead of best-effort dropping; the workers use TryPublish.
func (b *EventBus) Publish(ctx context.Context, ev Event) error {
	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
