package matching

import (
	"container/heap"
	"strconv"
	"sync"
)

// Book 是单个交易对（symbol）的限价订单簿：两个按价格索引的容器（bids 降序，
// asks 升序），外加一个 orderID -> 节点的索引，支撑 O(1) 撤单。
//
// Book 本身不做任何并发控制：spec 的设计是每个 symbol 只有一个 SymbolWorker
// 独占地改写它（single-writer），所以这里不需要锁。调用方（engine 包）负责
// 保证同一时刻只有一个 goroutine 在调用 Book 的方法。
type Book struct {
	Symbol string

	asks map[int64]*limit
	bids map[int64]*limit
	byID map[OrderID]*limitNode

	askHeap minPriceHeap
	bidHeap maxPriceHeap
}

// NewBook 构造一个空簿。
func NewBook(symbol string) *Book {
	b := &Book{
		Symbol: symbol,
		asks:   make(map[int64]*limit, 64),
		bids:   make(map[int64]*limit, 64),
		byID:   make(map[OrderID]*limitNode, 1024),
	}
	heap.Init(&b.askHeap)
	heap.Init(&b.bidHeap)
	return b
}

var limitNodePool = sync.Pool{New: func() any { return new(limitNode) }}

func getLimitNode(order *Order, lv *limit, side Side) *limitNode {
	n := limitNodePool.Get().(*limitNode)
	n.prev, n.next = nil, nil
	n.order = order
	n.lv = lv
	n.side = side
	return n
}

func putLimitNode(n *limitNode) {
	n.prev, n.next = nil, nil
	n.order = nil
	n.lv = nil
	n.side = 0
	limitNodePool.Put(n)
}

// BestBid 返回当前最高买价；簿为空时返回 (0, false)。
func (b *Book) BestBid() (price int64, ok bool) { return b.bestBidPrice() }

// BestAsk 返回当前最低卖价；簿为空时返回 (0, false)。
func (b *Book) BestAsk() (price int64, ok bool) { return b.bestAskPrice() }

func (b *Book) bestAskPrice() (int64, bool) {
	for b.askHeap.Len() > 0 {
		p := b.askHeap[0]
		lv := b.asks[p]
		if lv != nil && !lv.isEmpty() {
			return p, true
		}
		heap.Pop(&b.askHeap) // 价位已经空了，lazy deletion：丢弹堆顶继续找
	}
	return 0, false
}

func (b *Book) bestBidPrice() (int64, bool) {
	for b.bidHeap.Len() > 0 {
		p := b.bidHeap[0]
		lv := b.bids[p]
		if lv != nil && !lv.isEmpty() {
			return p, true
		}
		heap.Pop(&b.bidHeap)
	}
	return 0, false
}

// DepthLevel 是深度快照里的一条记录：一个价位 + 该价位的剩余总量。
type DepthLevel struct {
	Price  int64
	Volume int64
}

// DepthSnapshot 返回买卖两侧各至多 levels 个价位的只读快照，按价格优先排序
// （bids 从高到低，asks 从低到高）。这是 spec §9 建议的替代方案——不要像上游
// 渲染器那样用探测性下单去读深度，而是直接读一份不可变快照。
//
// Book 本身不对这次读做任何同步：bids/asks/askHeap/bidHeap 都是普通的 map 和
// slice，只有 limit.totalVolume 是原子发布的。调用方必须保证这次读和任何
// AddOrder/CancelOrder 不会并发发生——在这个引擎里，这条保证由
// internal/engine 的 CmdQueryDepth 提供：它把 DepthSnapshot 排进跟
// Submit/Cancel 同一条 worker 队列，而不是让外部 goroutine 直接调用这个方法
// (spec §5："否则此类查询必须作为 Query 请求排进 worker 的队列")。
func (b *Book) DepthSnapshot(levels int) (bids, asks []DepthLevel) {
	bids = collectLevels(b.bids, b.bidHeap, levels, true)
	asks = collectLevels(b.asks, b.askHeap, levels, false)
	return bids, asks
}

func collectLevels(side map[int64]*limit, prices []int64, levels int, desc bool) []DepthLevel {
	// 惰性删除的堆里同一个价格可能出现多次（价位清空后又在同价重新挂单），
	// 每个价位只报告一次。
	live := make([]int64, 0, len(prices))
	seen := make(map[int64]bool, len(prices))
	for _, p := range prices {
		if seen[p] {
			continue
		}
		seen[p] = true
		if lv := side[p]; lv != nil && !lv.isEmpty() {
			live = append(live, p)
		}
	}
	sortPrices(live, desc)
	if levels > 0 && len(live) > levels {
		live = live[:levels]
	}
	out := make([]DepthLevel, 0, len(live))
	for _, p := range live {
		out = append(out, DepthLevel{Price: p, Volume: side[p].volume()})
	}
	return out
}

func sortPrices(p []int64, desc bool) {
	// 价位数量一般很小（几十到几百档），插入排序足够，不值得为了深度快照引入
	// sort.Slice 的反射开销。
	for i := 1; i < len(p); i++ {
		for j := i; j > 0; j-- {
			less := p[j-1] < p[j]
			if desc {
				less = p[j-1] > p[j]
			}
			if less {
				break
			}
			p[j-1], p[j] = p[j], p[j-1]
		}
	}
}

// AddOrder 处理一条新订单：LIMIT 先尝试撮合，剩余部分挂到簿上；MARKET 只撮合，
// 任何剩余直接丢弃（market order 永不挂单）。返回 false 表示这是一次无效提交
// （order 为 nil/非活跃，qty<=0，id 重复，或 StopLimit——当前未实现触发逻辑），
// 此时簿状态不变。
func (b *Book) AddOrder(order *Order, sink FillFunc) bool {
	if order == nil || !order.Active() || order.OriginalQty <= 0 {
		return false
	}
	if order.Kind == StopLimit {
		return false
	}
	if _, exists := b.byID[order.ID]; exists {
		return false
	}

	switch order.Kind {
	case Market:
		b.match(order, sink)
		if order.Remaining() > 0 {
			order.Deactivate()
		}
		return true
	case Limit:
		b.match(order, sink)
		if order.Remaining() > 0 && order.Active() {
			b.rest(order)
		}
		return true
	default:
		return false
	}
}

// match 是内部撮合过程：按价格-时间优先消耗对手方，直到 taker 吃完，或者对手方
// 报价不再可接受（只对 LIMIT taker 生效），或者对手方没有流动性了。
func (b *Book) match(taker *Order, sink FillFunc) {
	if taker.Side == Buy {
		b.matchAgainst(taker, b.asks, sink)
	} else {
		b.matchAgainst(taker, b.bids, sink)
	}
}

// matchAgainst 消耗 opposite 边的流动性。bestOppositePrice 已经做了 lazy
// deletion（跳过堆顶那些已经空掉的价位），所以这里拿到的 lv 必然非空。
func (b *Book) matchAgainst(taker *Order, opposite map[int64]*limit, sink FillFunc) {
	for taker.Remaining() > 0 && taker.Active() {
		bestPrice, ok := b.bestOppositePrice(taker.Side)
		if !ok {
			break
		}
		if taker.Kind == Limit && !priceAcceptable(taker.Side, taker.Price, bestPrice) {
			break
		}
		lv := opposite[bestPrice]
		b.drainLevel(taker, lv, sink)
		if lv.isEmpty() {
			delete(opposite, lv.price)
		}
	}
}

func (b *Book) bestOppositePrice(takerSide Side) (int64, bool) {
	if takerSide == Buy {
		return b.bestAskPrice()
	}
	return b.bestBidPrice()
}

// priceAcceptable 判断 taker 的限价是否接受对手方在 bestPrice 上成交：
// BUY taker 不接受比自己限价更高的 ask；SELL taker 不接受比自己限价更低的 bid。
func priceAcceptable(takerSide Side, takerPrice, bestOppositePrice int64) bool {
	if takerSide == Buy {
		return bestOppositePrice <= takerPrice
	}
	return bestOppositePrice >= takerPrice
}

// drainLevel 在同一个价位桶内按 FIFO 顺序吃单，直到 taker 吃完或者桶空了。
func (b *Book) drainLevel(taker *Order, lv *limit, sink FillFunc) {
	for taker.Remaining() > 0 && !lv.isEmpty() {
		node := lv.front()
		maker := node.order
		exec := min64(taker.Remaining(), maker.Remaining())

		taker.Fill(exec)
		maker.Fill(exec)
		lv.reduceVolume(exec)

		if sink != nil {
			sink(Trade{
				TakerOrderID: taker.ID,
				MakerOrderID: maker.ID,
				TakerSide:    taker.Side,
				Price:        lv.price,
				Qty:          exec,
			})
		}

		if maker.Remaining() == 0 {
			lv.unlink(node)
			delete(b.byID, maker.ID)
			putLimitNode(node)
		}
	}
}

// rest 把一个还有剩余量的 LIMIT 订单挂到簿上，成为新的 maker。
func (b *Book) rest(order *Order) {
	var side map[int64]*limit
	if order.Side == Buy {
		side = b.bids
	} else {
		side = b.asks
	}

	lv := side[order.Price]
	if lv == nil {
		lv = newLimit(order.Price)
		side[order.Price] = lv
		if order.Side == Buy {
			heap.Push(&b.bidHeap, order.Price)
		} else {
			heap.Push(&b.askHeap, order.Price)
		}
	}

	node := getLimitNode(order, lv, order.Side)
	lv.pushBack(node)
	b.byID[order.ID] = node
}

// CancelOrder 撤销一个活跃订单。未知 id 返回 false，不改变状态；成功撤销会把
// 订单标记为非活跃、从它所在的价位桶和 id 索引里摘除，价位桶空了就整个丢弃。
func (b *Book) CancelOrder(id OrderID) bool {
	node, ok := b.byID[id]
	if !ok {
		return false
	}

	lv := node.lv
	if lv == nil {
		// byID says this order exists, but it points at no price level — B2/B3
		// are supposed to make this unreachable. Don't keep mutating a book
		// that's already inconsistent; let the caller log and abort instead.
		panic(InvariantViolation{Reason: "cancel: order " + strconv.FormatUint(uint64(id), 10) + " has an id-index entry but no owning limit"})
	}
	lv.reduceVolume(node.order.Remaining())
	lv.unlink(node)
	node.order.Deactivate()
	delete(b.byID, id)

	if lv.isEmpty() {
		if node.side == Buy {
			delete(b.bids, lv.price)
		} else {
			delete(b.asks, lv.price)
		}
	}
	putLimitNode(node)
	return true
}
