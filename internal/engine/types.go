package engine

import (
	"errors"

	"matchengine/internal/matching"
)

// CmdType 标识一条进入 SymbolWorker 请求队列的命令。Shutdown 本身也是一条命令
// （而不是单独的 channel/context 信号），这样它在队列里排在此前所有已入队的
// 请求之后处理，worker 退出前一定先把队列排空。
type CmdType uint8

const (
	CmdSubmitOrder CmdType = iota + 1
	CmdCancel
	CmdShutdown
	// CmdQueryDepth 是 spec §5 给只读快照规定的兜底路径：Book 的 map/heap 字段
	// 没有 release/acquire 发布，DepthSnapshot 不能绕开 worker 直接读，所以它
	// 跟 Submit/Cancel 一样排进同一条队列，由持有 Book 的那个 goroutine执行。
	CmdQueryDepth
)

// Command 是外部请求在跨过 Dispatcher 边界之后的内部表示：一次入队即返回，
// 真正的结果（accepted/rejected/trade）通过 Emitter 在 worker 的 goroutine 里
// 同步产生，不做跨 goroutine 的结果等待。CmdQueryDepth 是唯一的例外——它需要把
// 结果带回调用方，走 QueryResult 这个一次性 channel。
type Command struct {
	Type  CmdType
	ReqID uint64 // 由 Dispatcher 分配，贯穿本次请求的 Accepted/Rejected/Trade 事件

	OrderID     uint64
	UserID      uint64
	Side        matching.Side
	Kind        matching.Kind
	Price       int64
	Qty         int64
	CancelOrder uint64

	Done chan struct{} // 仅 CmdShutdown 使用：worker 处理完它之后关闭该 channel

	// 仅 CmdQueryDepth 使用。QueryResult 必须是带 1 个缓冲的 channel：worker
	// 写入一次就不再使用它，调用方即使来晚了也不会让 worker 阻塞在发送上。
	QueryLevels int
	QueryResult chan DepthQueryResult
}

// DepthQueryResult 是 CmdQueryDepth 的返回值。
type DepthQueryResult struct {
	Bids, Asks []DepthLevel
}

type EventType uint8

const (
	EvAccepted EventType = iota + 1
	EvRejected
	EvAdded
	EvCancelled
	EvTrade
)

// Event 是 worker 内部产生的观测事件，喂给日志/metrics 和尽力而为的
// EventBus（Dispatcher.Events），从不作为对外的成交通知路径——那条路径是
// DispatcherConfig.Sink 里配置的 FillSink，在 worker goroutine 里撮合发生的
// 同一次调用栈里被同步触发。
type Event struct {
	Type  EventType
	ReqID uint64

	OrderID uint64
	UserID  uint64

	MakerOrderID uint64
	TakerOrderID uint64
	Price        int64
	Qty          int64

	Reason string
}

var (
	// ErrQueueFull 对应 spec 的 QueueFull：worker 的请求队列已满，请求在入队阶段
	// 就被拒绝，未进入撮合路径，簿状态不变。
	ErrQueueFull = errors.New("engine: worker queue full")
	// ErrUnknownSymbol 表示 symbol 从未见过且 Dispatcher 配置不允许惰性创建
	// （目前实现里始终允许惰性创建，保留该错误用于未来的白名单模式）。
	ErrUnknownSymbol = errors.New("engine: unknown symbol")
	// ErrBadCommand 是编程错误的信号：Command 字段不满足其 Type 要求的前提。
	ErrBadCommand = errors.New("engine: bad command")
	// ErrShuttingDown 表示 Dispatcher 已经开始或完成关闭，不再接受新请求。
	ErrShuttingDown = errors.New("engine: dispatcher is shutting down")
)
