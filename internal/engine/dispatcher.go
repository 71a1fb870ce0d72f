package engine

import (
	"context"
	"sync"
	"time"

	"matchengine/pkg/metrics"
	"matchengine/pkg/safe"
)

// DispatcherConfig configures worker creation and lifetime.
type DispatcherConfig struct {
	WorkerCfg    WorkerConfig
	Sink         FillSink
	EventBusSize int           // 0 disables the bus; workers skip publishing entirely
	ShutdownWait time.Duration // bounds the whole Shutdown when the caller's ctx has no deadline; 0 means unbounded
}

// Dispatcher routes requests to per-symbol workers, creating them lazily on
// first use. It never touches a Book directly — that privilege belongs
// exclusively to the one SymbolWorker goroutine that owns it.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	workers  map[string]*SymbolWorker
	cfg      DispatcherConfig
	bus      *EventBus
	shutdown bool
	drained  bool // set once Shutdown has seen every worker exit
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	var bus *EventBus
	if cfg.EventBusSize > 0 {
		bus = NewEventBus(cfg.EventBusSize)
	}
	return &Dispatcher{
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*SymbolWorker, 64),
		cfg:     cfg,
		bus:     bus,
	}
}

// Events exposes the best-effort internal event stream; nil if the
// dispatcher was configured with EventBusSize<=0.
func (d *Dispatcher) Events() <-chan Event {
	if d.bus == nil {
		return nil
	}
	return d.bus.C()
}

func (d *Dispatcher) DroppedEvents() uint64 {
	if d.bus == nil {
		return 0
	}
	return d.bus.Dropped()
}

// getOrCreateWorker is the double-checked-locking pattern: a cheap RLock fast
// path for the common case of an already-running worker, falling back to a
// Lock+double-check slow path only the first time a symbol is seen.
func (d *Dispatcher) getOrCreateWorker(symbol string) (*SymbolWorker, error) {
	d.mu.RLock()
	w := d.workers[symbol]
	shuttingDown := d.shutdown
	d.mu.RUnlock()
	if shuttingDown {
		return nil, ErrShuttingDown
	}
	if w != nil {
		return w, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return nil, ErrShuttingDown
	}
	if w = d.workers[symbol]; w != nil {
		return w, nil
	}

	book := newBookAdapter(symbol)
	w = NewSymbolWorker(symbol, book, d.cfg.Sink, d.bus, d.cfg.WorkerCfg)
	d.workers[symbol] = w
	metrics.WorkersActive.WithLabelValues().Set(float64(len(d.workers)))

	safe.GoCtx(d.ctx, func(ctx context.Context) {
		w.Run(ctx)
	})
	return w, nil
}

// Submit performs cheap synchronous pre-validation (the checks spec §4.5
// assigns to the Dispatcher itself, before a request ever reaches a worker
// mailbox) and enqueues the rest. Deeper outcomes — duplicate ids, fills —
// surface later via FillSink/Emitter, not through this return value.
func (d *Dispatcher) Submit(symbol string, cmd Command) error {
	if cmd.Type != CmdSubmitOrder || cmd.OrderID == 0 || cmd.Qty <= 0 {
		return ErrBadCommand
	}
	w, err := d.getOrCreateWorker(symbol)
	if err != nil {
		return err
	}
	return w.TryEnqueue(cmd)
}

func (d *Dispatcher) Cancel(symbol string, cmd Command) error {
	if cmd.Type != CmdCancel || cmd.CancelOrder == 0 {
		return ErrBadCommand
	}
	w, err := d.getOrCreateWorker(symbol)
	if err != nil {
		return err
	}
	return w.TryEnqueue(cmd)
}

// depthQueryTimeout bounds how long DepthSnapshot waits for its CmdQueryDepth
// to come back off a worker's mailbox before giving up.
const depthQueryTimeout = 2 * time.Second

// DepthSnapshot reads a symbol's book. Book's own maps/heaps carry no
// release/acquire publication (only limit.totalVolume does), so per spec §5
// this cannot bypass the worker: it is enqueued as a CmdQueryDepth and
// answered by the same goroutine that owns the Book, exactly like
// Submit/Cancel, just with a result channel instead of fire-and-forget.
// After a Shutdown that saw every worker exit, no goroutine touches the
// Book any more, so the snapshot is read from it directly.
func (d *Dispatcher) DepthSnapshot(symbol string, levels int) (bids, asks []DepthLevel, ok bool) {
	d.mu.RLock()
	w, exists := d.workers[symbol]
	drained := d.drained
	d.mu.RUnlock()
	if !exists {
		return nil, nil, false
	}
	if drained {
		bids, asks = w.book.DepthSnapshot(levels)
		return bids, asks, true
	}

	result := make(chan DepthQueryResult, 1)
	if err := w.TryEnqueue(Command{Type: CmdQueryDepth, QueryLevels: levels, QueryResult: result}); err != nil {
		return nil, nil, false
	}

	select {
	case res := <-result:
		return res.Bids, res.Asks, true
	case <-time.After(depthQueryTimeout):
		return nil, nil, false
	}
}

// Shutdown stops accepting new requests and, for each live worker, enqueues
// a CmdShutdown so it drains whatever is already queued before exiting —
// then waits (bounded by ctx) for every worker to acknowledge.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && d.cfg.ShutdownWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.ShutdownWait)
		defer cancel()
	}

	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return nil
	}
	d.shutdown = true
	workers := make([]*SymbolWorker, 0, len(d.workers))
	for _, w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	dones := make([]chan struct{}, len(workers))
	for i, w := range workers {
		done := make(chan struct{})
		dones[i] = done
		// a worker whose mailbox is full of backlog still drains in FIFO
		// order, so the Shutdown command waits (bounded by ctx) for a free
		// slot and then its turn behind that backlog.
		select {
		case w.in <- Command{Type: CmdShutdown, Done: done}:
		case <-ctx.Done():
			d.cancel()
			return ctx.Err()
		}
	}

	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			d.cancel()
			return ctx.Err()
		}
	}
	d.mu.Lock()
	d.drained = true
	d.mu.Unlock()
	d.cancel()
	return nil
}
