package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, metrics.Track("stamp").End(nil))
	boom := errors.New("boom")
	assert.Same(t, boom, metrics.Track("stamp").End(boom))
	metrics.Track("stamp").Skip()

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("stamp", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("stamp", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("stamp", StatusSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("stamp")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.duration))
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics
	err := errors.New("kept")
	assert.Same(t, err, metrics.Track("stamp").End(err))
	metrics.Track("stamp").Skip()

	var tracker *Tracker
	assert.NoError(t, tracker.End(nil))
}
