package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconciliation, scraping and the API.
type Metrics struct {
	Registry *prometheus.Registry

	ReconcileWrites    *prometheus.CounterVec
	ReconcileRuns      *prometheus.CounterVec
	ReconcileDuration  *prometheus.HistogramVec
	DerivedIdentities  *prometheus.CounterVec
	ScrapeRecords      *prometheus.GaugeVec
	ScrapeFailures     prometheus.Counter
	HTTPRequestLatency *prometheus.HistogramVec
}

// New registers every metric on a fresh registry. Each instance owns its
// registry so tests can build as many as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ReconcileWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_reconcile_writes_total",
			Help: "Rows written by reconciliation, by kind and operation",
		}, []string{"kind", "op"}),
		ReconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_reconcile_runs_total",
			Help: "Reconciliation attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		ReconcileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regwatch_reconcile_duration_seconds",
			Help:    "Duration of reconciliation transactions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),
		DerivedIdentities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "regwatch_derived_identities_total",
			Help: "Snapshot records whose identity was synthesised from their name",
		}, []string{"kind"}),
		ScrapeRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regwatch_scrape_records",
			Help: "Records returned by the latest register scrape",
		}, []string{"kind"}),
		ScrapeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "regwatch_scrape_failures_total",
			Help: "Scrape cycles that failed before reconciliation",
		}),
		HTTPRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regwatch_http_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route", "status"}),
	}
}

// ObserveReconcile records a finished reconciliation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveReconcile(kind string, start time.Time, closed, inserted, updated int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ReconcileRuns.WithLabelValues(kind, outcome).Inc()
	m.ReconcileDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		return
	}
	m.ReconcileWrites.WithLabelValues(kind, "close").Add(float64(closed))
	m.ReconcileWrites.WithLabelValues(kind, "insert").Add(float64(inserted))
	m.ReconcileWrites.WithLabelValues(kind, "update").Add(float64(updated))
}

// IncrementDerivedIdentity records a synthesised identity.
func (m *Metrics) IncrementDerivedIdentity(kind string) {
	if m == nil {
		return
	}
	m.DerivedIdentities.WithLabelValues(kind).Inc()
}

// SetScrapeRecords records the size of the latest scrape.
func (m *Metrics) SetScrapeRecords(kind string, count int) {
	if m == nil {
		return
	}
	m.ScrapeRecords.WithLabelValues(kind).Set(float64(count))
}

// IncrementScrapeFailure records a failed scrape cycle.
func (m *Metrics) IncrementScrapeFailure() {
	if m == nil {
		return
	}
	m.ScrapeFailures.Inc()
}

// ObserveHTTPRequest records the duration of an API request.
func (m *Metrics) ObserveHTTPRequest(route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequestLatency.WithLabelValues(route, statusClass(status)).Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
