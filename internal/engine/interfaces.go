package engine

// OrderBook 是 SymbolWorker 用来改写某个 symbol 簿的契约，由 bookAdapter 实现
// （它内部持有一个 *matching.Book）。worker 保证同一时刻只有一个 goroutine
// 调用这些方法——它们本身不做并发控制。
type OrderBook interface {
	SubmitOrder(cmd Command, sink FillSink, emit Emitter) bool
	Cancel(orderID uint64, emit Emitter) bool
	DepthSnapshot(levels int) (bids, asks []DepthLevel)
	BestBid() (price int64, ok bool)
	BestAsk() (price int64, ok bool)
}

// DepthLevel 是 OrderBook.DepthSnapshot 的一条记录,对外暴露时不带内部的 tick
// 表示细节（那层转换在根包的 facade 里完成）。
type DepthLevel struct {
	Price  int64
	Volume int64
}

// FillSink 对应 spec §6 的外部成交通知契约：(symbol, price, qty, takerSideSign)。
// 在 worker goroutine 里、由某条 Submit 命令触发的撮合过程中被同步调用，
// 调用方不得阻塞太久，否则会拖慢整个 worker。
type FillSink func(symbol string, price, qty int64, takerSideSign int8)

// Emitter 是 worker 内部产生可观测事件（accepted/rejected/added/cancelled/trade）
// 的出口，用于日志、metrics 和尽力而为的 EventBus，不是成交通知的契约。
type Emitter interface {
	Accepted(reqID, orderID, userID uint64)
	Rejected(reqID, orderID, userID uint64, reason string)
	Added(reqID, orderID, userID uint64)
	Cancelled(reqID, orderID uint64)
	Trade(reqID, makerOrderID, takerOrderID uint64, price, qty int64)
}
