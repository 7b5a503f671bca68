package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SentiTrader/internal/domain/models"
)

// Recorder implements the domain Metrics port using Prometheus.
type Recorder struct {
	datapoints   prometheus.Counter
	aggregates   *prometheus.CounterVec
	signals      *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	orders       *prometheus.CounterVec
	orderLatency prometheus.Histogram
	killSwitch   prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		datapoints: f.NewCounter(prometheus.CounterOpts{
			Name: "sentitrader_datapoints_ingested_total",
			Help: "Sentiment datapoints added to aggregator buffers",
		}),
		aggregates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentitrader_aggregates_emitted_total",
			Help: "Aggregate records emitted per window",
		}, []string{"window"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentitrader_signals_total",
			Help: "Signals emitted by action",
		}, []string{"action"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentitrader_risk_decisions_total",
			Help: "Risk decisions by action and outcome",
		}, []string{"action", "outcome"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentitrader_orders_total",
			Help: "Orders by action and final status",
		}, []string{"action", "status"}),
		orderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentitrader_order_duration_seconds",
			Help:    "Submit to fill (or give up) latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		killSwitch: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentitrader_kill_switch_halted",
			Help: "1 while the kill switch blocks new entries",
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sentitrader_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
	}
}

func (r *Recorder) RecordDatapoints(n int) { r.datapoints.Add(float64(n)) }

func (r *Recorder) RecordAggregates(window string, n int) {
	r.aggregates.WithLabelValues(window).Add(float64(n))
}

func (r *Recorder) RecordSignal(action models.Action) {
	r.signals.WithLabelValues(string(action)).Inc()
}

func (r *Recorder) RecordDecision(action models.Action, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	r.decisions.WithLabelValues(string(action), outcome).Inc()
}

func (r *Recorder) RecordOrder(action models.Action, status string) {
	r.orders.WithLabelValues(string(action), status).Inc()
}

func (r *Recorder) RecordOrderLatency(seconds float64) { r.orderLatency.Observe(seconds) }

func (r *Recorder) SetKillSwitch(halted bool) {
	if halted {
		r.killSwitch.Set(1)
		return
	}
	r.killSwitch.Set(0)
}

func (r *Recorder) RecordError(kind string) { r.errorsTotal.WithLabelValues(kind).Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDatapoints(int) {}
func (Nop) RecordAggregates(string, int) {}
func (Nop) RecordSignal(models.Action) {}
func (Nop) RecordDecision(models.Action, bool) {}
func (Nop) RecordOrder(models.Action, string) {}
func (Nop) RecordOrderLatency(float64) {}
func (Nop) SetKillSwitch(bool) {}
func (Nop) RecordError(string) {}
