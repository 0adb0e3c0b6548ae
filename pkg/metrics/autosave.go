package metrics

import "time"

// AutosaveMetrics provides observability for persisted PV values.
// Pass nil to disable.
type AutosaveMetrics interface {
	// RecordSave records one value write to the store.
	RecordSave(duration time.Duration, err error)

	// RecordRestore records the number of values restored at startup.
	RecordRestore(count int)

	// RecordCacheHitRatio records the store's block cache hit ratio.
	RecordCacheHitRatio(cacheType string, ratio float64)
}

var newPrometheusAutosaveMetrics func() AutosaveMetrics

// NewAutosaveMetrics creates a Prometheus-backed AutosaveMetrics instance,
// or nil when metrics are disabled.
func NewAutosaveMetrics() AutosaveMetrics {
	if !IsEnabled() || newPrometheusAutosaveMetrics == nil {
		return nil
	}
	return newPrometheusAutosaveMetrics()
}

// RegisterAutosaveMetricsConstructor registers the Prometheus autosave
// metrics constructor.
func RegisterAutosaveMetricsConstructor(constructor func() AutosaveMetrics) {
	newPrometheusAutosaveMetrics = constructor
}
