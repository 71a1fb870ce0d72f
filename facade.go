// Package matchengine is a price-time-priority limit order book matching
// engine: one independent book per symbol, each owned exclusively by its own
// worker goroutine, reachable through a Dispatcher that routes requests by
// symbol and creates workers lazily on first use.
package matchengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"matchengine/internal/engine"
	"matchengine/internal/matching"
	"matchengine/pkg/xerr"
)

// Side and Kind are re-exported so callers never need to import the internal
// matching package directly.
type Side = matching.Side
type Kind = matching.Kind

const (
	Buy  = matching.Buy
	Sell = matching.Sell
)

const (
	LimitOrder  = matching.Limit
	MarketOrder = matching.Market
)

// OrderRequest is the public, decimal-denominated shape of a new order.
// OrderID is caller-assigned: the engine does not generate order identity,
// it only enforces that IDs are unique per symbol.
type OrderRequest struct {
	Symbol  string
	OrderID uint64
	UserID  uint64
	Side    Side
	Kind    Kind
	Price   decimal.Decimal // ignored for Kind==MarketOrder
	Qty     decimal.Decimal
}

// CancelRequest targets a previously submitted order by id.
type CancelRequest struct {
	Symbol  string
	OrderID uint64
}

// Ack is the synchronous, cheap-validation-only result of Submit/Cancel.
// A true Accepted means the request was queued for matching, not that it
// has matched or rested yet — those outcomes surface later via FillSink.
type Ack struct {
	Accepted bool
	ReqID    uint64
	Reason   string
}

// FillSink receives one callback per fill, synchronously, from inside the
// symbol worker that produced it: (symbol, price, qty, takerSideSign), where
// takerSideSign is +1 for a BUY taker and -1 for a SELL taker.
type FillSink func(symbol string, price, qty decimal.Decimal, takerSideSign int8)

// Dispatcher is the public facade over the internal per-symbol worker pool.
// It owns the decimal<->tick conversion boundary: everything below it
// (internal/engine, internal/matching) works exclusively in fixed-point
// ticks, per the engine's "IEEE-754 doubles are unsuitable as map keys"
// resolution.
type Dispatcher struct {
	inner *engine.Dispatcher

	mu        sync.RWMutex
	tickSizes map[string]decimal.Decimal
	defaultTS decimal.Decimal
}

// NewDispatcher builds a Dispatcher from an EngineConfig (see LoadEngineConfig)
// and a caller-supplied FillSink.
func NewDispatcher(cfg *EngineConfig, sink FillSink) (*Dispatcher, error) {
	defaultTS, err := decimal.NewFromString(cfg.DefaultTickSize)
	if err != nil {
		return nil, fmt.Errorf("matchengine: bad default_tick_size %q: %w", cfg.DefaultTickSize, err)
	}

	d := &Dispatcher{
		tickSizes: make(map[string]decimal.Decimal, len(cfg.TickSizes)),
		defaultTS: defaultTS,
	}
	for symbol, raw := range cfg.TickSizes {
		ts, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("matchengine: bad tick size %q for %s: %w", raw, symbol, err)
		}
		d.tickSizes[symbol] = ts
	}

	d.inner = engine.NewDispatcher(engine.DispatcherConfig{
		WorkerCfg:    engine.WorkerConfig{MailboxSize: cfg.MailboxSize, BatchMax: cfg.BatchMax},
		EventBusSize: cfg.EventBusSize,
		Sink:         d.wrapSink(sink),
	})
	return d, nil
}

func (d *Dispatcher) wrapSink(sink FillSink) engine.FillSink {
	if sink == nil {
		return nil
	}
	return func(symbol string, priceTicks, qtyTicks int64, takerSideSign int8) {
		ts := d.tickSize(symbol)
		sink(symbol, ticksToDecimal(priceTicks, ts), ticksToDecimal(qtyTicks, ts), takerSideSign)
	}
}

func (d *Dispatcher) tickSize(symbol string) decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if ts, ok := d.tickSizes[symbol]; ok {
		return ts
	}
	return d.defaultTS
}

// ticksToDecimal converts an internal fixed-point tick count back to a
// decimal price/qty by multiplying by the symbol's tick size.
func ticksToDecimal(ticks int64, tickSize decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(ticks).Mul(tickSize)
}

// decimalToTicks converts a decimal price/qty to an integer tick count,
// rejecting values that don't land on a tick boundary — the supplemental
// alignment check that the engine's fixed-point representation requires.
func decimalToTicks(value, tickSize decimal.Decimal) (int64, bool) {
	if tickSize.IsZero() {
		return 0, false
	}
	divided := value.Div(tickSize)
	rounded := divided.Round(0)
	if !divided.Sub(rounded).IsZero() {
		return 0, false
	}
	return rounded.IntPart(), true
}

// Submit validates and enqueues a new order. Validation failures (misaligned
// price, non-positive qty, malformed side/kind) are rejected synchronously
// and never reach a worker.
func (d *Dispatcher) Submit(req OrderRequest) Ack {
	reqID := newReqID()
	if req.OrderID == 0 || req.Qty.Sign() <= 0 {
		return Ack{Accepted: false, ReqID: reqID, Reason: xerr.MapErrMsg(xerr.ValidationError)}
	}
	if req.Side != matching.Buy && req.Side != matching.Sell {
		return Ack{Accepted: false, ReqID: reqID, Reason: xerr.MapErrMsg(xerr.ValidationError)}
	}
	if req.Kind != matching.Limit && req.Kind != matching.Market {
		return Ack{Accepted: false, ReqID: reqID, Reason: xerr.MapErrMsg(xerr.ValidationError)}
	}

	ts := d.tickSize(req.Symbol)
	qtyTicks, ok := decimalToTicks(req.Qty, ts)
	if !ok || qtyTicks <= 0 {
		return Ack{Accepted: false, ReqID: reqID, Reason: "qty not aligned to tick size"}
	}

	var priceTicks int64
	if req.Kind == matching.Limit {
		priceTicks, ok = decimalToTicks(req.Price, ts)
		if !ok || priceTicks <= 0 {
			return Ack{Accepted: false, ReqID: reqID, Reason: "price not aligned to tick size"}
		}
	}

	cmd := engine.Command{
		Type:    engine.CmdSubmitOrder,
		ReqID:   reqID,
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Side:    req.Side,
		Kind:    req.Kind,
		Price:   priceTicks,
		Qty:     qtyTicks,
	}

	err := d.inner.Submit(req.Symbol, cmd)
	if err != nil {
		return Ack{Accepted: false, ReqID: reqID, Reason: mapEngineErr(err)}
	}
	return Ack{Accepted: true, ReqID: reqID}
}

// mapEngineErr turns an internal/engine sentinel error into the xerr
// taxonomy's text so a caller sees the same rejection vocabulary regardless
// of whether the request was rejected by facade-level validation or by the
// dispatcher/worker underneath it.
func mapEngineErr(err error) string {
	switch err {
	case engine.ErrQueueFull:
		return xerr.MapErrMsg(xerr.QueueFull)
	case engine.ErrShuttingDown:
		return xerr.MapErrMsg(xerr.ShuttingDown)
	case engine.ErrUnknownSymbol:
		return xerr.MapErrMsg(xerr.UnknownTarget)
	case engine.ErrBadCommand:
		return xerr.MapErrMsg(xerr.ValidationError)
	default:
		return err.Error()
	}
}

// Cancel requests that a resting order be removed. Like Submit, a true Ack
// only means the request was queued — whether the order actually existed
// surfaces through the internal Emitter/log path, not this return value.
func (d *Dispatcher) Cancel(req CancelRequest) Ack {
	reqID := newReqID()
	if req.OrderID == 0 {
		return Ack{Accepted: false, ReqID: reqID, Reason: xerr.MapErrMsg(xerr.ValidationError)}
	}
	cmd := engine.Command{Type: engine.CmdCancel, ReqID: reqID, CancelOrder: req.OrderID}
	if err := d.inner.Cancel(req.Symbol, cmd); err != nil {
		return Ack{Accepted: false, ReqID: reqID, Reason: mapEngineErr(err)}
	}
	return Ack{Accepted: true, ReqID: reqID}
}

// DepthLevel is one price level of a read-only book snapshot.
type DepthLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// DepthSnapshot returns up to levels price levels per side for symbol. A
// symbol with no worker yet (never traded) reports ok=false rather than an
// empty-but-valid book, so callers can distinguish "no liquidity" from
// "never heard of this symbol". ok=false is also reported when the query
// cannot be queued on the symbol's full mailbox or gets no answer in time.
func (d *Dispatcher) DepthSnapshot(symbol string, levels int) (bids, asks []DepthLevel, ok bool) {
	rawBids, rawAsks, exists := d.inner.DepthSnapshot(symbol, levels)
	if !exists {
		return nil, nil, false
	}
	ts := d.tickSize(symbol)
	return convertDepth(rawBids, ts), convertDepth(rawAsks, ts), true
}

func convertDepth(src []engine.DepthLevel, ts decimal.Decimal) []DepthLevel {
	out := make([]DepthLevel, len(src))
	for i, lv := range src {
		out[i] = DepthLevel{Price: ticksToDecimal(lv.Price, ts), Volume: ticksToDecimal(lv.Volume, ts)}
	}
	return out
}

// Shutdown stops accepting new requests and waits for every live symbol
// worker to drain its queue and exit, bounded by ctx.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	return d.inner.Shutdown(ctx)
}

// Events exposes the best-effort internal observability stream (accepted,
// rejected, added, cancelled, trade) for monitoring/audit tooling. It is not
// part of the fill-delivery contract — use FillSink for that.
func (d *Dispatcher) Events() <-chan engine.Event { return d.inner.Events() }

func (d *Dispatcher) DroppedEvents() uint64 { return d.inner.DroppedEvents() }

func newReqID() uint64 {
	id := uuid.New()
	// keep the first 64 bits of the 128-bit uuid; collisions only weaken tracing
	// correlation, never correctness (ReqID is not used as a dedup key).
	hi := uint64(0)
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(id[i])
	}
	return hi
}
