package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/brojonat/beat-the-guardian/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is an engine.EventSink that counts settlement outcomes. Register
// it on the engine alongside the log sink and expose Handler() at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	entries    prometheus.Counter
	entryValue prometheus.Counter
	decisions  *prometheus.CounterVec
	payouts    prometheus.Counter
	escapes    prometheus.Counter
	recoveries prometheus.Counter
	poolGauge  prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		entries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "btg_entries_total",
			Help: "Number of entry payments processed.",
		}),
		entryValue: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "btg_entry_value_total",
			Help: "Total value of entry payments in smallest units.",
		}),
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "btg_decisions_total",
			Help: "Number of authorized judge decisions, by outcome.",
		}, []string{"is_win"}),
		payouts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "btg_payout_value_total",
			Help: "Total value paid to winners in smallest units.",
		}),
		escapes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "btg_escape_plans_total",
			Help: "Number of escape plan distributions executed.",
		}),
		recoveries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "btg_recoveries_total",
			Help: "Number of emergency recoveries executed.",
		}),
		poolGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "btg_pool_balance",
			Help: "Pool balance after the most recent settlement event.",
		}),
	}
}

// Handler serves the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Emit implements engine.EventSink.
func (m *Metrics) Emit(ctx context.Context, ev engine.Event) {
	switch e := ev.(type) {
	case engine.LedgerInitialized:
		m.poolGauge.Set(float64(e.FloorAmount))
	case engine.EntryProcessed:
		m.entries.Inc()
		m.entryValue.Add(float64(e.Amount))
		m.poolGauge.Set(float64(e.NewBalance))
	case engine.DecisionLogged:
		m.decisions.WithLabelValues(strconv.FormatBool(e.IsWin)).Inc()
	case engine.WinnerPaid:
		m.payouts.Add(float64(e.Amount))
	case engine.EscapePlanExecuted:
		m.escapes.Inc()
		m.poolGauge.Set(float64(e.RetainedShare))
	case engine.EmergencyRecovered:
		m.recoveries.Inc()
		m.poolGauge.Set(float64(e.RemainingBalance))
	}
}
