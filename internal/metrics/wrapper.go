package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid domain packages importing prometheus
// directly (and to make those packages trivially testable with fakes).
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// Sink is the MetricsSink interface the trading core's components depend on.
type Sink interface {
	OrdersTotal() MetricsCounter
	OrderTimeouts() MetricsCounter
	OrderRetries() MetricsCounter
	OrderExecutionDuration() MetricsHistogram
	RiskRejections() MetricsCounter
	CircuitBreakerTrips() MetricsCounter
	CircuitBreakerState() MetricsGauge
	StopLossTrigger(layer string)
	ReconcileRuns() MetricsCounter
	ReconcileDiscrepancies() MetricsCounter
	PnLTotal() MetricsGauge
	ExposureTotal() MetricsGauge
	UpdatePositions(positions map[string]float64)
}

// Wrapper adapts a *Metrics into the Sink interface.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) OrdersTotal() MetricsCounter     { return &counterWrapper{w.m.OrdersTotal} }
func (w *Wrapper) OrderTimeouts() MetricsCounter   { return &counterWrapper{w.m.OrderTimeouts} }
func (w *Wrapper) OrderRetries() MetricsCounter    { return &counterWrapper{w.m.OrderRetries} }
func (w *Wrapper) RiskRejections() MetricsCounter  { return &counterWrapper{w.m.RiskRejections} }
func (w *Wrapper) CircuitBreakerTrips() MetricsCounter {
	return &counterWrapper{w.m.CircuitBreakerTrips}
}
func (w *Wrapper) ReconcileRuns() MetricsCounter { return &counterWrapper{w.m.ReconcileRuns} }
func (w *Wrapper) ReconcileDiscrepancies() MetricsCounter {
	return &counterWrapper{w.m.ReconcileDiscrepancies}
}

func (w *Wrapper) CircuitBreakerState() MetricsGauge { return &gaugeWrapper{w.m.CircuitBreakerState} }
func (w *Wrapper) PnLTotal() MetricsGauge            { return &gaugeWrapper{w.m.PnLTotal} }
func (w *Wrapper) ExposureTotal() MetricsGauge       { return &gaugeWrapper{w.m.ExposureTotal} }

func (w *Wrapper) OrderExecutionDuration() MetricsHistogram {
	return &histogramWrapper{w.m.OrderExecutionDuration}
}

func (w *Wrapper) StopLossTrigger(layer string) {
	w.m.StopLossTriggers.WithLabelValues(layer).Inc()
}

func (w *Wrapper) UpdatePositions(positions map[string]float64) {
	w.m.UpdatePositions(positions)
}

type counterWrapper struct{ c prometheus.Counter }

func (cw *counterWrapper) Inc() { cw.c.Inc() }

type gaugeWrapper struct{ g prometheus.Gauge }

func (gw *gaugeWrapper) Set(v float64) { gw.g.Set(v) }
func (gw *gaugeWrapper) Add(v float64) { gw.g.Add(v) }

type histogramWrapper struct{ h prometheus.Histogram }

func (hw *histogramWrapper) Observe(v float64) { hw.h.Observe(v) }
