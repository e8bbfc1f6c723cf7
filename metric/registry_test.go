package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delmic/odemis-sub003/errors"
)

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r)
	require.NotNil(t, r.CoreMetrics())
	require.NotNil(t, r.PrometheusRegistry())
	require.NotNil(t, r.Handler())
}

func TestRegisterAndGather(t *testing.T) {
	r := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "acquisition_frames_total",
		Help: "Frames acquired",
	})
	require.NoError(t, r.RegisterCounter("acquisition", "frames_total", counter))

	counter.Add(3)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "acquisition_frames_total" {
			found = mf
		}
	}
	require.NotNil(t, found, "registered counter must be gatherable")
	require.Len(t, found.GetMetric(), 1)
	assert.Equal(t, float64(3), found.GetMetric()[0].GetCounter().GetValue())
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stage_position",
		Help: "Stage position",
	})
	require.NoError(t, r.RegisterGauge("stage", "position", gauge))

	other := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stage_position",
		Help: "Stage position",
	})
	err := r.RegisterGauge("stage", "position", other)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "focus_search_seconds",
		Help: "Focus search duration",
	})
	require.NoError(t, r.RegisterHistogram("focus", "search_seconds", hist))

	assert.True(t, r.Unregister("focus", "search_seconds"))
	assert.False(t, r.Unregister("focus", "search_seconds"), "second unregister returns false")

	// Re-registration after unregister must succeed
	require.NoError(t, r.RegisterHistogram("focus", "search_seconds", hist))
}

func TestCoreMetricsUsable(t *testing.T) {
	r := NewMetricsRegistry()

	r.CoreMetrics().CellNotifications.WithLabelValues("stage.position").Inc()
	r.CoreMetrics().TasksFinished.WithLabelValues("finished").Inc()

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["odemis_cell_notifications_total"])
	assert.True(t, names["odemis_task_finished_total"])
}
