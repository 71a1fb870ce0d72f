package metrics

import "github.com/prometheus/client_golang/prometheus"

// 按 symbol 维度拆分的撮合引擎指标，标签和含义都面向撮合引擎自身的事件。
var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "requests_total",
			Help:      "Total number of submit/cancel/query requests handled, by outcome.",
		},
		[]string{"symbol", "op", "outcome"}, // op: submit|cancel|query, outcome: accepted|rejected|queue_full
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "trades_total",
			Help:      "Total number of fills produced by the matching engine.",
		},
		[]string{"symbol"},
	)

	TradedQtyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchengine",
			Name:      "traded_qty_total",
			Help:      "Total quantity matched, in ticks.",
		},
		[]string{"symbol"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchengine",
			Name:      "worker_queue_depth",
			Help:      "Number of commands currently buffered in a symbol worker's mailbox.",
		},
		[]string{"symbol"},
	)

	BestBid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchengine",
			Name:      "best_bid",
			Help:      "Current best bid price, in ticks (0 when the bid side is empty).",
		},
		[]string{"symbol"},
	)

	BestAsk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchengine",
			Name:      "best_ask",
			Help:      "Current best ask price, in ticks (0 when the ask side is empty).",
		},
		[]string{"symbol"},
	)

	WorkersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchengine",
			Name:      "workers_active",
			Help:      "Number of symbol workers created so far; not lowered when a worker exits.",
		},
		[]string{},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		RequestsTotal,
		TradesTotal,
		TradedQtyTotal,
		QueueDepth,
		BestBid,
		BestAsk,
		WorkersActive,
	)
}
