package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveReconcile(t *testing.T) {
	m := New()

	m.ObserveReconcile("attorney", time.Now(), 2, 3, 0, nil)
	m.ObserveReconcile("attorney", time.Now(), 9, 9, 9, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconcileWrites.WithLabelValues("attorney", "close")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ReconcileWrites.WithLabelValues("attorney", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues("attorney", "error")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveReconcile("firm", time.Now(), 1, 1, 1, nil)
	m.IncrementDerivedIdentity("firm")
	m.SetScrapeRecords("firm", 3)
	m.IncrementScrapeFailure()
	m.ObserveHTTPRequest("/api/firms", 200, time.Now())
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncrementScrapeFailure()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.ScrapeFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ScrapeFailures))
	assert.Equal(t, "4xx", statusClass(404))
}
