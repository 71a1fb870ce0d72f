package matching

// 买卖方向 + 订单类型
// Side 和 Kind 用 uint8 而不是 string，保持跟价格/数量一样的值语义，
// 方便作为普通字段跟原子字段放在一起。

type Side uint8

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Sign 返回 taker_side_sign：BUY=+1，SELL=-1（用于 Fill 回调）。
func (s Side) Sign() int8 {
	if s == Buy {
		return 1
	}
	return -1
}

type Kind uint8

const (
	Limit Kind = iota + 1
	Market
	// StopLimit 保留给未来的止损单类型，永远不会被撮合——Book.AddOrder 直接拒绝它。
	StopLimit
)

func (k Kind) String() string {
	switch k {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderID 在进程范围内全局唯一，由调用方在构造 Order 时分配。
type OrderID uint64

// Trade 是一次撮合产生的成交：taker 吃掉 maker 的一部分或全部挂单量。
type Trade struct {
	TakerOrderID OrderID
	MakerOrderID OrderID
	TakerSide    Side
	Price        int64 // 成交价 = maker（resting order）的挂单价，体现 price improvement
	Qty          int64
}

// FillFunc 是 Book 撮合时的逐笔成交回调，对应 spec 里 (symbol, price, qty, side_sign) 的契约。
// Book 本身不知道 symbol，由调用方（engine 层）在回调里补上。
type FillFunc func(Trade)

// InvariantViolation is panicked by Book when a removal path finds state
// that B1-B4 should make unreachable. The one state checked is in
// CancelOrder: an id-index entry with no owning price level. It exists so
// the caller can recover, log the defect, and stop running that book's
// worker instead of continuing to mutate state that is already wrong.
type InvariantViolation struct{ Reason string }

func (e InvariantViolation) Error() string { return "book invariant violation: " + e.Reason }

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
