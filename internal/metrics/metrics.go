// Package metrics provides Prometheus metrics collection for the trading
// core. It defines and manages all performance, trading, and system metrics
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the trading core.
type Metrics struct {
	// Trading/position metrics.
	OrdersTotal     prometheus.Counter
	PnLTotal        prometheus.Gauge
	ActivePositions prometheus.Gauge
	ExposureTotal   prometheus.Gauge

	// Order execution metrics.
	OrderTimeouts          prometheus.Counter
	OrderRetries           prometheus.Counter
	OrderExecutionDuration prometheus.Histogram

	// Risk gate metrics.
	RiskRejections prometheus.Counter

	// Circuit breaker metrics.
	CircuitBreakerTrips prometheus.Counter
	CircuitBreakerState prometheus.Gauge // 0=active, 1=tripped, 2=manual_reset_required

	// Stop-loss supervisor metrics.
	StopLossTriggers *prometheus.CounterVec

	// Reconciliation metrics.
	ReconcileRuns         prometheus.Counter
	ReconcileDiscrepancies prometheus.Counter

	// System metrics.
	ErrorsTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing,
// avoiding collisions with the global default registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_total",
			Help: "Total number of orders placed",
		}),
		PnLTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pnl_total",
			Help: "Current total profit and loss",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_positions",
			Help: "Number of active positions",
		}),
		ExposureTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "exposure_total_chf",
			Help: "Total open position exposure in CHF",
		}),
		OrderTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_timeouts_total",
			Help: "Total number of order execution timeouts",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "order_retries_total",
			Help: "Total number of order placement retries",
		}),
		OrderExecutionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "order_execution_duration_seconds",
			Help:    "Duration of order execution attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		RiskRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_rejections_total",
			Help: "Total number of trades rejected by the risk gate",
		}),
		CircuitBreakerTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of times the daily-loss circuit breaker tripped",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=active, 1=tripped, 2=manual_reset_required)",
		}),
		StopLossTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stop_loss_triggers_total",
			Help: "Total number of stop-loss triggers by layer",
		}, []string{"layer"}),
		ReconcileRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Total number of reconciliation passes executed",
		}),
		ReconcileDiscrepancies: factory.NewCounter(prometheus.CounterOpts{
			Name: "reconcile_discrepancies_total",
			Help: "Total number of position discrepancies found during reconciliation",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// UpdatePositions updates the active positions gauge based on current
// position exposures keyed by symbol.
func (m *Metrics) UpdatePositions(positions map[string]float64) {
	count := 0
	for _, pos := range positions {
		if pos != 0 {
			count++
		}
	}
	m.ActivePositions.Set(float64(count))
}
