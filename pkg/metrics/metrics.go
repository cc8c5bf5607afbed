// Package metrics provides Prometheus instrumentation for the backtesting
// engine (§11 domain stack). The shape is adapted directly from this
// module's prior trading-metrics collector: one struct of registered
// CounterVec/GaugeVec/HistogramVec fields plus small Record*/Update*
// helper methods, only the label sets and metric names changed to fit
// scenarios, orders, and the broker simulator instead of a live trading
// workflow.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// BacktestMetrics collects and exposes Prometheus metrics for a batch run.
type BacktestMetrics struct {
	registry *prometheus.Registry

	OrdersTotal    *prometheus.CounterVec
	OrderRejected  *prometheus.CounterVec
	FillLatency    *prometheus.HistogramVec
	OpenPositions  *prometheus.GaugeVec

	RealizedPnL   *prometheus.CounterVec
	UnrealizedPnL *prometheus.GaugeVec
	Equity        *prometheus.GaugeVec
	DrawdownPct   *prometheus.GaugeVec

	WorkerComputeLatency *prometheus.HistogramVec
	ParallelTicks        *prometheus.CounterVec
	SerialTicks          *prometheus.CounterVec

	ScenariosTotal    *prometheus.CounterVec
	ScenarioDuration  *prometheus.HistogramVec
	TelemetryDropped  prometheus.Counter
}

// New creates a backtest metrics collector with its own registry, so a
// batch run can expose /metrics without colliding with any other
// registered collector in the same process.
func New() *BacktestMetrics {
	registry := prometheus.NewRegistry()

	m := &BacktestMetrics{
		registry: registry,

		OrdersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_orders_total",
				Help: "Total number of orders submitted to the broker simulator",
			},
			[]string{"symbol", "type", "direction", "status"},
		),
		OrderRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_orders_rejected_total",
				Help: "Total number of orders rejected by the broker simulator",
			},
			[]string{"symbol", "reason"},
		),
		FillLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finiex_order_fill_latency_ticks",
				Help:    "Ticks elapsed between order submission and fill",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			},
			[]string{"symbol", "type"},
		),
		OpenPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finiex_open_positions",
				Help: "Current number of open positions",
			},
			[]string{"symbol"},
		),

		RealizedPnL: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_realized_pnl",
				Help: "Cumulative realized P&L (can be negative, recorded as absolute delta)",
			},
			[]string{"symbol", "scenario"},
		),
		UnrealizedPnL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finiex_unrealized_pnl",
				Help: "Current unrealized P&L across open positions",
			},
			[]string{"symbol", "scenario"},
		),
		Equity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finiex_equity",
				Help: "Current portfolio equity (balance + unrealized P&L)",
			},
			[]string{"scenario"},
		),
		DrawdownPct: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finiex_drawdown_pct",
				Help: "Current drawdown from peak equity, as a percentage",
			},
			[]string{"scenario"},
		),

		WorkerComputeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finiex_worker_compute_seconds",
				Help:    "Per-tick worker compute time",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
			},
			[]string{"worker"},
		),
		ParallelTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_coordinator_parallel_ticks_total",
				Help: "Total ticks dispatched in parallel mode",
			},
			[]string{"scenario"},
		),
		SerialTicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_coordinator_serial_ticks_total",
				Help: "Total ticks dispatched in serial mode",
			},
			[]string{"scenario"},
		),

		ScenariosTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finiex_scenarios_total",
				Help: "Total scenarios processed, by outcome",
			},
			[]string{"status"},
		),
		ScenarioDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finiex_scenario_duration_seconds",
				Help:    "Wall-clock time to run one scenario's tick loop",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"status"},
		),
		TelemetryDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "finiex_livestats_dropped_total",
			Help: "Total live-stats messages dropped because the queue was full",
		}),
	}

	m.registry.MustRegister(
		m.OrdersTotal, m.OrderRejected, m.FillLatency, m.OpenPositions,
		m.RealizedPnL, m.UnrealizedPnL, m.Equity, m.DrawdownPct,
		m.WorkerComputeLatency, m.ParallelTicks, m.SerialTicks,
		m.ScenariosTotal, m.ScenarioDuration, m.TelemetryDropped,
	)
	return m
}

// Registry exposes the underlying registry so an HTTP handler can serve it.
func (m *BacktestMetrics) Registry() *prometheus.Registry { return m.registry }

func (m *BacktestMetrics) RecordOrder(symbol, orderType, direction, status string) {
	m.OrdersTotal.WithLabelValues(symbol, orderType, direction, status).Inc()
}

func (m *BacktestMetrics) RecordRejection(symbol, reason string) {
	m.OrderRejected.WithLabelValues(symbol, reason).Inc()
}

func (m *BacktestMetrics) RecordFillLatency(symbol, orderType string, ticks int) {
	m.FillLatency.WithLabelValues(symbol, orderType).Observe(float64(ticks))
}

func (m *BacktestMetrics) UpdateOpenPositions(symbol string, count int) {
	m.OpenPositions.WithLabelValues(symbol).Set(float64(count))
}

func (m *BacktestMetrics) RecordRealizedPnL(symbol, scenarioName string, delta decimal.Decimal) {
	f, _ := delta.Abs().Float64()
	m.RealizedPnL.WithLabelValues(symbol, scenarioName).Add(f)
}

func (m *BacktestMetrics) UpdateUnrealizedPnL(symbol, scenarioName string, v decimal.Decimal) {
	f, _ := v.Float64()
	m.UnrealizedPnL.WithLabelValues(symbol, scenarioName).Set(f)
}

func (m *BacktestMetrics) UpdateEquity(scenarioName string, equity, drawdownPct decimal.Decimal) {
	e, _ := equity.Float64()
	d, _ := drawdownPct.Float64()
	m.Equity.WithLabelValues(scenarioName).Set(e)
	m.DrawdownPct.WithLabelValues(scenarioName).Set(d)
}

func (m *BacktestMetrics) RecordWorkerCompute(workerName string, seconds float64) {
	m.WorkerComputeLatency.WithLabelValues(workerName).Observe(seconds)
}

func (m *BacktestMetrics) RecordCoordination(scenarioName string, parallel bool) {
	if parallel {
		m.ParallelTicks.WithLabelValues(scenarioName).Inc()
	} else {
		m.SerialTicks.WithLabelValues(scenarioName).Inc()
	}
}

func (m *BacktestMetrics) RecordScenario(status string, durationSec float64) {
	m.ScenariosTotal.WithLabelValues(status).Inc()
	m.ScenarioDuration.WithLabelValues(status).Observe(durationSec)
}

func (m *BacktestMetrics) RecordTelemetryDropped() {
	m.TelemetryDropped.Inc()
}

var defaultMetrics *BacktestMetrics
var once sync.Once

// Default returns the process-wide default metrics instance.
func Default() *BacktestMetrics {
	once.Do(func() { defaultMetrics = New() })
	return defaultMetrics
}
