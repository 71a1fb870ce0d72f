package engine

import (
	"matchengine/internal/matching"
	"matchengine/pkg/xerr"
)

// bookAdapter bridges a *matching.Book to the OrderBook interface the worker
// drives. It owns translating matching.Trade into both the external FillSink
// contract and the internal Emitter events.
type bookAdapter struct {
	symbol string
	book   *matching.Book
}

func newBookAdapter(symbol string) *bookAdapter {
	return &bookAdapter{symbol: symbol, book: matching.NewBook(symbol)}
}

func (a *bookAdapter) SubmitOrder(cmd Command, sink FillSink, emit Emitter) bool {
	order := matching.NewOrder(matching.OrderID(cmd.OrderID), a.symbol, cmd.Side, cmd.Kind, cmd.Price, cmd.Qty, cmd.UserID)

	emit.Accepted(cmd.ReqID, cmd.OrderID, cmd.UserID)

	accepted := a.book.AddOrder(order, func(t matching.Trade) {
		if sink != nil {
			sink(a.symbol, t.Price, t.Qty, t.TakerSide.Sign())
		}
		emit.Trade(cmd.ReqID, uint64(t.MakerOrderID), uint64(t.TakerOrderID), t.Price, t.Qty)
	})

	if !accepted {
		emit.Rejected(cmd.ReqID, cmd.OrderID, cmd.UserID, "invalid or duplicate order")
		return false
	}

	if order.Kind == matching.Limit && order.Active() && order.Remaining() > 0 {
		emit.Added(cmd.ReqID, cmd.OrderID, cmd.UserID)
	}
	return true
}

func (a *bookAdapter) Cancel(orderID uint64, emit Emitter) bool {
	ok := a.book.CancelOrder(matching.OrderID(orderID))
	if ok {
		emit.Cancelled(0, orderID)
	} else {
		emit.Rejected(0, orderID, 0, xerr.MapErrMsg(xerr.UnknownTarget))
	}
	return ok
}

func (a *bookAdapter) DepthSnapshot(levels int) (bids, asks []DepthLevel) {
	b, ak := a.book.DepthSnapshot(levels)
	return convertLevels(b), convertLevels(ak)
}

func (a *bookAdapter) BestBid() (int64, bool) { return a.book.BestBid() }
func (a *bookAdapter) BestAsk() (int64, bool) { return a.book.BestAsk() }

func convertLevels(src []matching.DepthLevel) []DepthLevel {
	if src == nil {
		return nil
	}
	out := make([]DepthLevel, len(src))
	for i, lv := range src {
		out[i] = DepthLevel{Price: lv.Price, Volume: lv.Volume}
	}
	return out
}
