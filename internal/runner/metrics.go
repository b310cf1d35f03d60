package runner

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_cycles_total",
			Help: "Polling cycles by result (ok|error)",
		},
		[]string{"result"},
	)
	mtxEntryRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_entry_rejections_total",
			Help: "Entry evaluations rejected, by first failed guard",
		},
		[]string{"guard"},
	)
	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_orders_total",
			Help: "Orders acknowledged, by side and mode (live|dry_run)",
		},
		[]string{"side", "mode"},
	)
	mtxDailyPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dipbot_daily_pnl",
		Help: "Realized P&L since the last UTC daily reset",
	})
	mtxPositionSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dipbot_position_size",
		Help: "Open position size in coins",
	})
	mtxEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dipbot_position_entries",
		Help: "Lots in the current accumulation lineage",
	})
	mtxCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dipbot_cycle_seconds",
		Help:    "Wall time of one polling cycle",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		mtxCycles,
		mtxEntryRejections,
		mtxOrders,
		mtxDailyPnL,
		mtxPositionSize,
		mtxEntries,
		mtxCycleSeconds,
	)
}

func orderMode(simulated bool) string {
	if simulated {
		return "dry_run"
	}
	return "live"
}
