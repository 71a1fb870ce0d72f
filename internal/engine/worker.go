package engine

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"matchengine/internal/matching"
	"matchengine/pkg/logger"
	"matchengine/pkg/metrics"
	"matchengine/pkg/xerr"
)

// WorkerConfig 配置单个 symbol worker 的 mailbox 和批处理上限。
type WorkerConfig struct {
	MailboxSize int
	BatchMax    int
}

// SymbolWorker 独占地拥有一个 symbol 的 OrderBook：所有读写都从它的 Run
// goroutine 里发生，调用方只能通过 TryEnqueue 把 Command 投进 mailbox。
// 这个 single-writer 模型是 spec 并发设计的核心：book 本身不需要锁。
type SymbolWorker struct {
	symbol string
	book   OrderBook
	sink   FillSink
	bus    *EventBus
	in     chan Command
	cfg    WorkerConfig

	mailboxFull uint64 // 只在 Run 的 goroutine 外通过 TryEnqueue 原子递增
}

func NewSymbolWorker(symbol string, book OrderBook, sink FillSink, bus *EventBus, cfg WorkerConfig) *SymbolWorker {
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = 4096
	}
	if cfg.BatchMax <= 0 {
		cfg.BatchMax = 256
	}
	return &SymbolWorker{
		symbol: symbol,
		book:   book,
		sink:   sink,
		bus:    bus,
		in:     make(chan Command, cfg.MailboxSize),
		cfg:    cfg,
	}
}

// TryEnqueue 是非阻塞的：mailbox 满了就立刻返回 ErrQueueFull，不等待，
// 绝不阻塞提交方的调用栈。
func (w *SymbolWorker) TryEnqueue(cmd Command) error {
	select {
	case w.in <- cmd:
		metrics.QueueDepth.WithLabelValues(w.symbol).Set(float64(len(w.in)))
		return nil
	default:
		atomic.AddUint64(&w.mailboxFull, 1)
		metrics.RequestsTotal.WithLabelValues(w.symbol, cmdOpLabel(cmd.Type), "queue_full").Inc()
		return ErrQueueFull
	}
}

func cmdOpLabel(t CmdType) string {
	switch t {
	case CmdSubmitOrder:
		return "submit"
	case CmdCancel:
		return "cancel"
	case CmdQueryDepth:
		return "query"
	default:
		return "shutdown"
	}
}

// Run 批量从 mailbox 取命令并依次 apply 到 book 上。和 WAL 版本的 actor 相比，
// 这里没有两段式持久化：每条命令入队之后立即、同步地作用在 book 上——spec 的
// Non-goals 明确排除了持久化/崩溃恢复，所以不需要那道中间层。
func (w *SymbolWorker) Run(ctx context.Context) {
	batch := make([]Command, 0, w.cfg.BatchMax)
	emit := &logEmitter{symbol: w.symbol, bus: w.bus}

	for {
		var first Command
		select {
		case <-ctx.Done():
			return
		case first = <-w.in:
		}

		batch = batch[:0]
		batch = append(batch, first)
		for len(batch) < w.cfg.BatchMax {
			select {
			case cmd := <-w.in:
				batch = append(batch, cmd)
			default:
				goto PROCESS
			}
		}
	PROCESS:
		metrics.QueueDepth.WithLabelValues(w.symbol).Set(float64(len(w.in)))

		if w.processBatch(batch, emit) {
			return // CmdShutdown 处理完毕，或者遇到了 book 不一致，worker 退出
		}
		w.updateBookGauges()
	}
}

// updateBookGauges 在每一批命令处理完之后，把 best bid/ask 发布到 metrics——
// 这两个 gauge 跟 QueueDepth 一样只在 worker 自己的 goroutine 里写，读者
// (Prometheus 的抓取协程) 只读 gauge 本身的原子状态，不触碰 Book。
func (w *SymbolWorker) updateBookGauges() {
	if bid, ok := w.book.BestBid(); ok {
		metrics.BestBid.WithLabelValues(w.symbol).Set(float64(bid))
	} else {
		metrics.BestBid.WithLabelValues(w.symbol).Set(0)
	}
	if ask, ok := w.book.BestAsk(); ok {
		metrics.BestAsk.WithLabelValues(w.symbol).Set(float64(ask))
	} else {
		metrics.BestAsk.WithLabelValues(w.symbol).Set(0)
	}
}

// processBatch applies one drained batch to the book. If the book panics
// with an InvariantViolation (a removal path finding state B1-B4 should have
// made unreachable), this logs it and reports abort=true so Run stops
// calling into this book forever rather than risk corrupting it further.
// Any other panic is not ours to interpret — it's re-raised for safe.GoCtx's
// generic recovery to log.
func (w *SymbolWorker) processBatch(batch []Command, emit Emitter) (abort bool) {
	defer func() {
		if r := recover(); r != nil {
			iv, ok := r.(matching.InvariantViolation)
			if !ok {
				panic(r)
			}
			logger.Error(nil, xerr.MapErrMsg(xerr.InvariantViolation),
				zap.String("symbol", w.symbol), zap.String("reason", iv.Reason))
			abort = true
		}
	}()
	for _, cmd := range batch {
		if w.apply(cmd, emit) {
			return true
		}
	}
	return false
}

// apply 处理单条命令，返回 true 表示这是一条 Shutdown 命令且已经处理完，
// Run 应该退出循环。
func (w *SymbolWorker) apply(cmd Command, emit Emitter) bool {
	switch cmd.Type {
	case CmdSubmitOrder:
		if cmd.OrderID == 0 || cmd.Qty <= 0 || (cmd.Side != matching.Buy && cmd.Side != matching.Sell) {
			emit.Rejected(cmd.ReqID, cmd.OrderID, cmd.UserID, "bad submit")
			metrics.RequestsTotal.WithLabelValues(w.symbol, "submit", "rejected").Inc()
			return false
		}
		ok := w.book.SubmitOrder(cmd, w.sink, emit)
		outcome := "rejected"
		if ok {
			outcome = "accepted"
		}
		metrics.RequestsTotal.WithLabelValues(w.symbol, "submit", outcome).Inc()
	case CmdCancel:
		if cmd.CancelOrder == 0 {
			emit.Rejected(cmd.ReqID, 0, 0, "bad cancel")
			metrics.RequestsTotal.WithLabelValues(w.symbol, "cancel", "rejected").Inc()
			return false
		}
		ok := w.book.Cancel(cmd.CancelOrder, emit)
		outcome := "rejected"
		if ok {
			outcome = "accepted"
		}
		metrics.RequestsTotal.WithLabelValues(w.symbol, "cancel", outcome).Inc()
	case CmdQueryDepth:
		if cmd.QueryResult != nil {
			bids, asks := w.book.DepthSnapshot(cmd.QueryLevels)
			cmd.QueryResult <- DepthQueryResult{Bids: bids, Asks: asks}
		}
		metrics.RequestsTotal.WithLabelValues(w.symbol, "query", "accepted").Inc()
	case CmdShutdown:
		if cmd.Done != nil {
			close(cmd.Done)
		}
		return true
	default:
		emit.Rejected(cmd.ReqID, cmd.OrderID, cmd.UserID, "unknown command")
	}
	return false
}

// logEmitter 把 worker 内部事件落到结构化日志和 metrics 上，配置了 EventBus 时
// 也尽力而为地发布到那里（Dispatcher.Events）；成交通知不走这里，只走 FillSink。
type logEmitter struct {
	symbol string
	bus    *EventBus
}

func (e *logEmitter) publish(ev Event) {
	if e.bus != nil {
		e.bus.TryPublish(ev)
	}
}

func (e *logEmitter) Accepted(reqID, orderID, userID uint64) {
	logger.Debug(nil, "order accepted",
		zap.String("symbol", e.symbol), zap.Uint64("req_id", reqID), zap.Uint64("order_id", orderID))
	e.publish(Event{Type: EvAccepted, ReqID: reqID, OrderID: orderID, UserID: userID})
}

func (e *logEmitter) Rejected(reqID, orderID, userID uint64, reason string) {
	logger.Warn(nil, "order rejected",
		zap.String("symbol", e.symbol), zap.Uint64("req_id", reqID), zap.Uint64("order_id", orderID),
		zap.String("reason", reason))
	e.publish(Event{Type: EvRejected, ReqID: reqID, OrderID: orderID, UserID: userID, Reason: reason})
}

func (e *logEmitter) Added(reqID, orderID, userID uint64) {
	logger.Debug(nil, "order added to book",
		zap.String("symbol", e.symbol), zap.Uint64("req_id", reqID), zap.Uint64("order_id", orderID))
	e.publish(Event{Type: EvAdded, ReqID: reqID, OrderID: orderID, UserID: userID})
}

func (e *logEmitter) Cancelled(reqID, orderID uint64) {
	logger.Debug(nil, "order cancelled",
		zap.String("symbol", e.symbol), zap.Uint64("req_id", reqID), zap.Uint64("order_id", orderID))
	e.publish(Event{Type: EvCancelled, ReqID: reqID, OrderID: orderID})
}

func (e *logEmitter) Trade(reqID, makerOrderID, takerOrderID uint64, price, qty int64) {
	metrics.TradesTotal.WithLabelValues(e.symbol).Inc()
	metrics.TradedQtyTotal.WithLabelValues(e.symbol).Add(float64(qty))
	logger.Debug(nil, "trade",
		zap.String("symbol", e.symbol), zap.Uint64("req_id", reqID),
		zap.Uint64("maker_order_id", makerOrderID), zap.Uint64("taker_order_id", takerOrderID),
		zap.Int64("price", price), zap.Int64("qty", qty))
	e.publish(Event{
		Type: EvTrade, ReqID: reqID, MakerOrderID: makerOrderID, TakerOrderID: takerOrderID,
		Price: price, Qty: qty,
	})
}
