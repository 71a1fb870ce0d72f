package matching

import "sync/atomic"

// limit 是一个价位桶：同一价格的订单按到达顺序排成双向链表（FIFO = 时间优先）。
// totalVolume 是桶内所有订单剩余量的实时合计，必须和链表的增删同步更新——
// 读者看到增删之后的链表，就必须看到增删之后的 volume（spec §4.2）。
type limit struct {
	price       int64
	head, tail  *limitNode
	count       int
	totalVolume atomic.Int64
}

// limitNode 是 FIFO 链表里的一个节点，持有它所属的价位桶的反向指针，
// 使撤单可以在拿到节点后 O(1) 摘链，不需要重新按价格查桶。
type limitNode struct {
	prev, next *limitNode
	order      *Order
	lv         *limit
	side       Side
}

func newLimit(price int64) *limit {
	return &limit{price: price}
}

func (l *limit) isEmpty() bool { return l.count == 0 }

func (l *limit) front() *limitNode { return l.head }

func (l *limit) back() *limitNode { return l.tail }

func (l *limit) volume() int64 { return l.totalVolume.Load() }

// pushBack 把节点追加到队尾（新订单总是排在同价位所有现存订单之后），
// 并把订单当前的 remaining 计入 total_volume。
func (l *limit) pushBack(n *limitNode) {
	n.prev, n.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = n
	} else {
		l.head = n
	}
	l.tail = n
	l.count++
	l.totalVolume.Add(n.order.Remaining())
}

// reduceVolume 在撮合/撤单导致某个订单的 remaining 减少时调用，
// 和链表的增删分开，因为同一个节点在完全成交前可能被 reduceVolume 调用多次。
func (l *limit) reduceVolume(qty int64) {
	if qty == 0 {
		return
	}
	l.totalVolume.Add(-qty)
}

// unlink 把节点从链表中摘除。调用方必须已经通过 reduceVolume 把该订单的
// 剩余量从 total_volume 里扣掉（完全成交时剩余量已经是 0，扣 0 是安全的）。
func (l *limit) unlink(n *limitNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
	l.count--
}
