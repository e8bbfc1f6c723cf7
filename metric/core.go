package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the substrate-level metrics shared by all components
type Metrics struct {
	// Attribute cell metrics
	CellNotifications *prometheus.CounterVec
	CellSetRejected   *prometheus.CounterVec

	// Data stream metrics
	StreamPublished   *prometheus.CounterVec
	StreamDropped     *prometheus.CounterVec
	StreamSubscribers *prometheus.GaugeVec

	// Task metrics
	TasksSubmitted prometheus.Counter
	TasksFinished  *prometheus.CounterVec
	TaskDuration   prometheus.Histogram

	// Transport metrics
	TransportConnected  prometheus.Gauge
	TransportReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all substrate metrics
func NewMetrics() *Metrics {
	return &Metrics{
		CellNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "cell",
				Name:      "notifications_total",
				Help:      "Total number of attribute cell notifications delivered",
			},
			[]string{"cell"},
		),

		CellSetRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "cell",
				Name:      "set_rejected_total",
				Help:      "Total number of attribute cell writes rejected by validation",
			},
			[]string{"cell", "reason"},
		),

		StreamPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "stream",
				Name:      "published_total",
				Help:      "Total number of payloads published per stream",
			},
			[]string{"stream"},
		),

		StreamDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "stream",
				Name:      "dropped_total",
				Help:      "Total number of payloads dropped for slow remote subscribers",
			},
			[]string{"stream"},
		),

		StreamSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "odemis",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Current number of subscribers per stream",
			},
			[]string{"stream"},
		),

		TasksSubmitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "task",
				Name:      "submitted_total",
				Help:      "Total number of tasks submitted to executors",
			},
		),

		TasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "task",
				Name:      "finished_total",
				Help:      "Total number of tasks that reached a terminal state",
			},
			[]string{"status"},
		),

		TaskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "odemis",
				Subsystem: "task",
				Name:      "duration_seconds",
				Help:      "Time tasks spent running",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),

		TransportConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "odemis",
				Subsystem: "transport",
				Name:      "connected",
				Help:      "Whether the remote transport is connected (0 or 1)",
			},
		),

		TransportReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "odemis",
				Subsystem: "transport",
				Name:      "reconnects_total",
				Help:      "Total number of transport reconnections",
			},
		),
	}
}

// collectors returns every core metric for registration
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CellNotifications,
		m.CellSetRejected,
		m.StreamPublished,
		m.StreamDropped,
		m.StreamSubscribers,
		m.TasksSubmitted,
		m.TasksFinished,
		m.TaskDuration,
		m.TransportConnected,
		m.TransportReconnects,
	}
}
