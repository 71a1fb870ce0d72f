package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"matchengine/internal/matching"
)

// TestDispatcherConcurrentSubmitAndCancel fires many goroutines at
// Dispatcher.Submit/Cancel at once — some racing on one shared symbol's
// mailbox, some each owning a distinct symbol — and checks that the
// single-writer-per-symbol model actually holds under real concurrency: no
// submitted order goes missing or gets double-counted no matter how the
// goroutines interleave. Meant to be run with -race.
func TestDispatcherConcurrentSubmitAndCancel(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{WorkerCfg: WorkerConfig{MailboxSize: 4096, BatchMax: 64}})

	const goroutines = 32
	const perGoroutine = 50

	var nextID atomic.Uint64
	var sharedSubmitted atomic.Int64
	var sharedCancelled atomic.Int64
	ownSubmitted := make([]int64, goroutines)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			ownSymbol := fmt.Sprintf("SYM-%02d", g)

			for i := 0; i < perGoroutine; i++ {
				// All orders on the shared symbol are SELL limits at
				// unique, never-colliding prices, so they never cross each
				// other — every accepted one rests until cancelled.
				sharedID := nextID.Add(1)
				if err := d.Submit("SHARED", Command{
					Type: CmdSubmitOrder, ReqID: sharedID, OrderID: sharedID, UserID: uint64(g),
					Side: matching.Sell, Kind: matching.Limit, Price: int64(1_000_000 + sharedID), Qty: 1,
				}); err == nil {
					sharedSubmitted.Add(1)
				}

				ownID := nextID.Add(1)
				if err := d.Submit(ownSymbol, Command{
					Type: CmdSubmitOrder, ReqID: ownID, OrderID: ownID, UserID: uint64(g),
					Side: matching.Sell, Kind: matching.Limit, Price: int64(1_000_000 + ownID), Qty: 1,
				}); err == nil {
					ownSubmitted[g]++
				}

				// Every third order gets cancelled right back out, racing the
				// cancel against other goroutines' submits on the same worker.
				if i%3 == 0 {
					if err := d.Cancel("SHARED", Command{Type: CmdCancel, CancelOrder: sharedID}); err == nil {
						sharedCancelled.Add(1)
					}
				}
			}
		}()
	}
	wg.Wait()

	// Shutdown enqueues a CmdShutdown behind every worker's existing backlog
	// and waits for it, which is a clean way to guarantee every Submit/Cancel
	// above has actually been applied to its book before we inspect state.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	bids, asks, ok := d.DepthSnapshot("SHARED", 0)
	if !ok {
		t.Fatalf("expected SHARED worker to exist")
	}
	if len(bids) != 0 {
		t.Fatalf("SHARED book should have no resting bids, got %+v", bids)
	}
	var sharedRemaining int64
	for _, lv := range asks {
		sharedRemaining += lv.Volume
	}
	wantRemaining := sharedSubmitted.Load() - sharedCancelled.Load()
	if sharedRemaining != wantRemaining {
		t.Fatalf("SHARED remaining volume = %d, want %d (submitted=%d cancelled=%d) — an order was lost or double-counted under concurrent access",
			sharedRemaining, wantRemaining, sharedSubmitted.Load(), sharedCancelled.Load())
	}

	for g := 0; g < goroutines; g++ {
		ownSymbol := fmt.Sprintf("SYM-%02d", g)
		bids, asks, ok := d.DepthSnapshot(ownSymbol, 0)
		if !ok {
			t.Fatalf("expected worker for %s to exist", ownSymbol)
		}
		if len(bids) != 0 {
			t.Fatalf("%s should have no resting bids, got %+v", ownSymbol, bids)
		}
		var remaining int64
		for _, lv := range asks {
			remaining += lv.Volume
		}
		if remaining != ownSubmitted[g] {
			t.Fatalf("%s remaining volume = %d, want %d — a distinct symbol's book was corrupted by another goroutine's traffic",
				ownSymbol, remaining, ownSubmitted[g])
		}
	}

	if sharedSubmitted.Load() == 0 || sharedCancelled.Load() == 0 {
		t.Fatalf("test setup didn't exercise both submit and cancel contention: submitted=%d cancelled=%d",
			sharedSubmitted.Load(), sharedCancelled.Load())
	}
}

// TestDispatcherDepthSnapshotWhileSubmitting calls DepthSnapshot from its own
// goroutine while other goroutines are still submitting and cancelling on the
// same symbol's worker — unlike
// TestDispatcherConcurrentSubmitAndCancel, which only ever reads state after
// Shutdown has fully drained every worker. DepthSnapshot reads Book's
// bids/asks maps and bidHeap/askHeap slices, which carry no atomic
// publication of their own; routing the read through CmdQueryDepth on the
// worker's own mailbox, instead of calling into the Book directly from the
// reader's goroutine, is what keeps this from being a concurrent map
// read/write. Meant to be run with -race.
func TestDispatcherDepthSnapshotWhileSubmitting(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{WorkerCfg: WorkerConfig{MailboxSize: 4096, BatchMax: 64}})

	const symbol = "DEPTH-RACE"
	const writers = 16
	const perWriter = 200

	var nextID atomic.Uint64
	stop := make(chan struct{})

	// Create the worker synchronously before starting readers, so a reader
	// never sees "unknown symbol" just because it won the race to start
	// before any writer goroutine got scheduled.
	warmupID := nextID.Add(1)
	if err := d.Submit(symbol, Command{
		Type: CmdSubmitOrder, ReqID: warmupID, OrderID: warmupID,
		Side: matching.Sell, Kind: matching.Limit, Price: 2_000_000, Qty: 1,
	}); err != nil {
		t.Fatalf("warmup submit: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := nextID.Add(1)
				_ = d.Submit(symbol, Command{
					Type: CmdSubmitOrder, ReqID: id, OrderID: id, UserID: uint64(g),
					Side: matching.Sell, Kind: matching.Limit, Price: int64(2_000_000 + id), Qty: 1,
				})
				if i%2 == 0 {
					_ = d.Cancel(symbol, Command{Type: CmdCancel, CancelOrder: id})
				}
			}
		}()
	}

	// Hammer DepthSnapshot concurrently with the writers above. Each call
	// goes through CmdQueryDepth on the same worker mailbox, so it never
	// touches Book.bids/asks/bidHeap/askHeap from this goroutine directly —
	// if it did, this loop racing the writers above would be exactly the
	// concurrent map read/write the fix exists to prevent.
	var reads atomic.Uint64
	var readerWg sync.WaitGroup
	for r := 0; r < 4; r++ {
		readerWg.Add(1)
		go func() {
			defer readerWg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, _, ok := d.DepthSnapshot(symbol, 5); !ok {
					t.Errorf("DepthSnapshot(%s) reported unknown symbol while writers are active", symbol)
					return
				}
				reads.Add(1)
			}
		}()
	}

	wg.Wait()
	close(stop)
	readerWg.Wait()

	if reads.Load() == 0 {
		t.Fatalf("test setup didn't exercise any concurrent DepthSnapshot reads")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
