package xerr

// 错误码对应外部契约里可区分的拒绝原因。这一层只提供 code -> 文案的映射
// (MapErrMsg)，不提供一个携带 code 的 error 类型——Ack.Reason 和日志字段都是
// 纯字符串，没有调用方需要反过来从 error 里解出 code 编程判断。
const (
	OK                 = 0
	ValidationError    = 400 // 非法字段：qty<=0、价格未按 tick size 对齐等
	UnknownTarget      = 404 // 撤单目标不存在，或 symbol 不被允许
	QueueFull          = 429 // worker 队列已满，请求在入队阶段被拒绝
	InvariantViolation = 500 // Book 内部不一致，worker 已中止，需要人工介入
	ShuttingDown       = 503
)

func MapErrMsg(code int) string {
	switch code {
	case ValidationError:
		return "invalid request"
	case UnknownTarget:
		return "unknown order or symbol"
	case QueueFull:
		return "worker queue full"
	case InvariantViolation:
		return "book invariant violated"
	case ShuttingDown:
		return "dispatcher is shutting down"
	default:
		return "unknown error"
	}
}
