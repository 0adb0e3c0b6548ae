package prometheus

import (
	"time"

	"github.com/marmos91/dittoca/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterCASMetricsConstructor(func() metrics.CASMetrics {
		if m := NewCASMetrics(); m != nil {
			return m
		}
		return nil
	})
}

// casMetrics is the Prometheus implementation of metrics.CASMetrics.
type casMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	searches        *prometheus.CounterVec

	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	activeConnections   prometheus.Gauge
	channels            prometheus.Gauge
	monitors            prometheus.Gauge

	asyncOps        *prometheus.CounterVec
	asyncDuration   *prometheus.HistogramVec
	stalledOps      *prometheus.CounterVec
	lateCompletions *prometheus.CounterVec

	events       *prometheus.CounterVec
	backpressure prometheus.Counter
	bytes        *prometheus.CounterVec

	beacons         prometheus.Counter
	beaconPeriod    prometheus.Gauge
	beaconAnomalies *prometheus.CounterVec
}

// NewCASMetrics creates a new Prometheus-backed CASMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCASMetrics() *casMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &casMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_requests_total",
				Help: "Total CA requests by command and ECA status",
			},
			[]string{"command", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoca_request_duration_milliseconds",
				Help: "Time spent dispatching CA requests in milliseconds",
				Buckets: []float64{
					0.01, // 10us - echo, version
					0.05,
					0.1,
					0.5,
					1,
					5,
					10,
					50, // slow host callbacks
					100,
				},
			},
			[]string{"command"},
		),
		searches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_searches_total",
				Help: "Total name searches by result",
			},
			[]string{"result"}, // "found", "not_found"
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoca_connections_accepted_total",
				Help: "Total stream connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_connections_closed_total",
				Help: "Total stream connections closed by reason",
			},
			[]string{"reason"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoca_connections_active",
				Help: "Current number of stream connections",
			},
		),
		channels: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoca_channels",
				Help: "Current number of connected channels",
			},
		),
		monitors: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoca_monitors",
				Help: "Current number of monitors",
			},
		),
		asyncOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_async_ops_total",
				Help: "Total async operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		asyncDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittoca_async_op_duration_seconds",
				Help:    "Time async operations spent pending",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		stalledOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_async_ops_stalled_total",
				Help: "Total async operations that exceeded the stall timeout",
			},
			[]string{"kind"},
		),
		lateCompletions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_async_late_completions_total",
				Help: "Completions discarded because the operation was canceled or already completed",
			},
			[]string{"kind"},
		),
		events: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_events_total",
				Help: "Monitor events by outcome",
			},
			[]string{"outcome"}, // "sent", "queued", "coalesced"
		),
		backpressure: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoca_output_backpressure_total",
				Help: "Times a client output buffer refused a message",
			},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_bytes_total",
				Help: "Bytes moved on stream connections by direction",
			},
			[]string{"direction"},
		),
		beacons: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoca_beacons_total",
				Help: "Total beacons sent",
			},
		),
		beaconPeriod: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoca_beacon_period_seconds",
				Help: "Current beacon period",
			},
		),
		beaconAnomalies: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_beacon_anomalies_total",
				Help: "Beacon anomaly requests by reason and whether the period was reset",
			},
			[]string{"reason", "accepted"},
		),
	}
}

func (m *casMetrics) RecordRequest(command string, duration time.Duration, status string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, status).Inc()
	m.requestDuration.WithLabelValues(command).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *casMetrics) RecordSearch(found bool) {
	if m == nil {
		return
	}
	if found {
		m.searches.WithLabelValues("found").Inc()
	} else {
		m.searches.WithLabelValues("not_found").Inc()
	}
}

func (m *casMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *casMetrics) RecordConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *casMetrics) SetActiveConnections(count int) {
	if m == nil {
		return
	}
	m.activeConnections.Set(float64(count))
}

func (m *casMetrics) SetChannels(count int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(count))
}

func (m *casMetrics) SetMonitors(count int) {
	if m == nil {
		return
	}
	m.monitors.Set(float64(count))
}

func (m *casMetrics) RecordAsyncOp(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.asyncOps.WithLabelValues(kind, outcome).Inc()
	m.asyncDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *casMetrics) RecordStalledOp(kind string) {
	if m == nil {
		return
	}
	m.stalledOps.WithLabelValues(kind).Inc()
}

func (m *casMetrics) RecordLateCompletion(kind string) {
	if m == nil {
		return
	}
	m.lateCompletions.WithLabelValues(kind).Inc()
}

func (m *casMetrics) RecordEvent(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}

func (m *casMetrics) RecordBackpressure() {
	if m == nil {
		return
	}
	m.backpressure.Inc()
}

func (m *casMetrics) RecordBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *casMetrics) RecordBeacon(period time.Duration) {
	if m == nil {
		return
	}
	m.beacons.Inc()
	m.beaconPeriod.Set(period.Seconds())
}

func (m *casMetrics) RecordBeaconAnomaly(reason string, accepted bool) {
	if m == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	m.beaconAnomalies.WithLabelValues(reason, label).Inc()
}
