package engine

import (
	"context"
	"testing"
	"time"

	"matchengine/internal/matching"
)

func drainEvents(t *testing.T, bus *EventBus, want int, timeout time.Duration) []Event {
	t.Helper()
	out := make([]Event, 0, want)
	deadline := time.After(timeout)
	for len(out) < want {
		select {
		case ev := <-bus.C():
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timeout waiting for events, got %d/%d", len(out), want)
		}
	}
	return out
}

func TestDispatcherCreatesWorkerLazily(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EventBusSize: 256})
	defer d.Shutdown(context.Background())

	ack := d.Submit("AAPL", Command{
		Type: CmdSubmitOrder, ReqID: 1, OrderID: 1, UserID: 1,
		Side: matching.Buy, Kind: matching.Limit, Price: 100, Qty: 10,
	})
	if ack != nil {
		t.Fatalf("expected nil error from Submit, got %v", ack)
	}
	events := drainEvents(t, d.bus, 2, 2*time.Second) // Accepted + Added
	if events[0].Type != EvAccepted {
		t.Fatalf("expected first event Accepted, got %v", events[0].Type)
	}
	if events[1].Type != EvAdded {
		t.Fatalf("expected second event Added, got %v", events[1].Type)
	}
}

func TestDispatcherRoutesBySymbolIndependently(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EventBusSize: 256})
	defer d.Shutdown(context.Background())

	d.Submit("AAPL", Command{Type: CmdSubmitOrder, ReqID: 1, OrderID: 1, UserID: 1, Side: matching.Buy, Kind: matching.Limit, Price: 100, Qty: 1})
	d.Submit("MSFT", Command{Type: CmdSubmitOrder, ReqID: 2, OrderID: 2, UserID: 1, Side: matching.Buy, Kind: matching.Limit, Price: 200, Qty: 1})

	events := drainEvents(t, d.bus, 4, 2*time.Second)
	seenOrders := map[uint64]bool{}
	for _, ev := range events {
		seenOrders[ev.OrderID] = true
	}
	if !seenOrders[1] || !seenOrders[2] {
		t.Fatalf("expected events for both order ids, got %+v", events)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		WorkerCfg: WorkerConfig{MailboxSize: 1, BatchMax: 1},
	})
	defer d.Shutdown(context.Background())

	var lastErr error
	for i := uint64(1); i <= 200; i++ {
		lastErr = d.Submit("AAPL", Command{
			Type: CmdSubmitOrder, ReqID: i, OrderID: i, UserID: 1,
			Side: matching.Buy, Kind: matching.Limit, Price: 1, Qty: 1,
		})
		if lastErr == ErrQueueFull {
			return
		}
	}
	t.Fatalf("expected ErrQueueFull under a 1-slot mailbox, last err=%v", lastErr)
}

func TestDispatcherShutdownDrainsBacklog(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{EventBusSize: 1024})

	for i := uint64(1); i <= 50; i++ {
		if err := d.Submit("AAPL", Command{
			Type: CmdSubmitOrder, ReqID: i, OrderID: i, UserID: 1,
			Side: matching.Buy, Kind: matching.Limit, Price: 100, Qty: 1,
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if err := d.Submit("AAPL", Command{Type: CmdSubmitOrder, ReqID: 999, OrderID: 999, UserID: 1, Side: matching.Buy, Kind: matching.Limit, Price: 1, Qty: 1}); err != ErrShuttingDown {
		t.Fatalf("expected ErrShuttingDown after Shutdown, got %v", err)
	}
}

func TestBookAdapterDepthSnapshotAfterFill(t *testing.T) {
	a := newBookAdapter("AAPL")
	emit := &logEmitter{symbol: "AAPL"}

	a.SubmitOrder(Command{Type: CmdSubmitOrder, OrderID: 1, Side: matching.Sell, Kind: matching.Limit, Price: 100, Qty: 10}, nil, emit)
	a.SubmitOrder(Command{Type: CmdSubmitOrder, OrderID: 2, Side: matching.Buy, Kind: matching.Limit, Price: 100, Qty: 4}, nil, emit)

	bids, asks := a.DepthSnapshot(10)
	if len(bids) != 0 {
		t.Fatalf("expected no resting bids after a fully-matched buy, got %+v", bids)
	}
	if len(asks) != 1 || asks[0].Price != 100 || asks[0].Volume != 6 {
		t.Fatalf("expected 6 remaining at 100, got %+v", asks)
	}
}
