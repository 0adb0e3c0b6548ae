package prometheus

import (
	"time"

	"github.com/marmos91/dittoca/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterAutosaveMetricsConstructor(func() metrics.AutosaveMetrics {
		if m := NewAutosaveMetrics(); m != nil {
			return m
		}
		return nil
	})
}

// autosaveMetrics is the Prometheus implementation for the BadgerDB
// backed PV autosave store.
type autosaveMetrics struct {
	saves         *prometheus.CounterVec
	saveDuration  prometheus.Histogram
	restored      prometheus.Gauge
	cacheHitRatio *prometheus.GaugeVec
}

// NewAutosaveMetrics creates a new Prometheus-backed autosave metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAutosaveMetrics() *autosaveMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &autosaveMetrics{
		saves: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoca_autosave_writes_total",
				Help: "Total PV values written to the autosave store by result",
			},
			[]string{"result"}, // "ok", "error"
		),
		saveDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dittoca_autosave_write_duration_seconds",
				Help:    "Duration of autosave writes",
				Buckets: prometheus.DefBuckets,
			},
		),
		restored: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoca_autosave_restored_values",
				Help: "Number of PV values restored at startup",
			},
		),
		cacheHitRatio: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dittoca_badger_cache_hit_ratio",
				Help: "BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			},
			[]string{"cache_type"}, // "block", "index"
		),
	}
}

// RecordSave records one autosave write.
func (m *autosaveMetrics) RecordSave(duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(result).Inc()
	m.saveDuration.Observe(duration.Seconds())
}

// RecordRestore records how many values were restored.
func (m *autosaveMetrics) RecordRestore(count int) {
	if m == nil {
		return
	}
	m.restored.Set(float64(count))
}

// RecordCacheHitRatio records the cache hit ratio for a specific cache type.
// ratio should be between 0.0 and 1.0
func (m *autosaveMetrics) RecordCacheHitRatio(cacheType string, ratio float64) {
	if m == nil {
		return
	}
	m.cacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}
