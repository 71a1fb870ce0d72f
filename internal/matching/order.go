package matching

import "sync/atomic"

// Order 是一条交易指令：不可变的身份信息 + 可变的成交/存活状态。
//
// filledQty/active 用 atomic.Int64/atomic.Bool 发布，不是因为 Book 内部需要并发写
// （Book 按设计是单写者），而是为了让 Book 之外的只读方（监控、快照、日志）在不经过
// worker 队列的情况下也能拿到一致的快照，详见 spec §5 的 release/acquire 要求。
type Order struct {
	ID          OrderID
	Symbol      string
	Side        Side
	Kind        Kind
	Price       int64 // 价格（tick），只有 Kind=Limit 时有意义
	StopPrice   int64 // 保留字段，当前未启用
	OriginalQty int64
	UserID      uint64

	filledQty atomic.Int64
	active    atomic.Bool
}

// NewOrder 构造一个处于 ACTIVE_ON_BOOK 起始状态的订单。originalQty 必须 > 0，
// 调用方负责校验；Book.AddOrder 会再做一次防御性校验。
func NewOrder(id OrderID, symbol string, side Side, kind Kind, price, originalQty int64, userID uint64) *Order {
	o := &Order{
		ID:          id,
		Symbol:      symbol,
		Side:        side,
		Kind:        kind,
		Price:       price,
		OriginalQty: originalQty,
		UserID:      userID,
	}
	o.active.Store(true)
	return o
}

// FilledQty 是目前已成交的数量，单调不减。
func (o *Order) FilledQty() int64 { return o.filledQty.Load() }

// Remaining 是还未成交的数量：original_qty - filled_qty。
func (o *Order) Remaining() int64 { return o.OriginalQty - o.filledQty.Load() }

// Active 报告该订单是否仍可被撮合/挂在簿上。
func (o *Order) Active() bool { return o.active.Load() }

// Fill 把 filled_qty 增加 amount；如果累计成交达到 original_qty 则转为非活跃。
// amount<=0 是编程错误的信号，直接忽略（调用方已经用 min64 裁剪过数量）。
func (o *Order) Fill(amount int64) {
	if amount <= 0 {
		return
	}
	filled := o.filledQty.Add(amount)
	if filled >= o.OriginalQty {
		o.active.Store(false)
	}
}

// Deactivate 用于撤单：无论是否成交完，直接把订单标记为非活跃终态。
func (o *Order) Deactivate() { o.active.Store(false) }
