package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/marmos91/dittoca/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCASMetricsDisabled(t *testing.T) {
	metrics.ResetRegistry()
	assert.Nil(t, NewCASMetrics())
	assert.Nil(t, metrics.NewCASMetrics())

	// nil receivers are no-ops
	var m *casMetrics
	m.RecordRequest("ECHO", time.Millisecond, "ECA_NORMAL")
	m.RecordBeaconAnomaly("host", true)
}

func TestCASMetricsRecord(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := NewCASMetrics()
	require.NotNil(t, m)

	m.RecordRequest("READ_NOTIFY", 2*time.Millisecond, "ECA_NORMAL")
	m.RecordRequest("READ_NOTIFY", time.Millisecond, "ECA_NORMAL")
	m.RecordSearch(true)
	m.RecordSearch(false)
	m.RecordSearch(false)
	m.SetChannels(4)
	m.RecordBeaconAnomaly("host", true)
	m.RecordBeaconAnomaly("host", false)
	m.RecordBeacon(40 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("READ_NOTIFY", "ECA_NORMAL")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.searches.WithLabelValues("not_found")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.channels))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.beaconAnomalies.WithLabelValues("host", "false")))
	assert.Equal(t, 0.04, testutil.ToFloat64(m.beaconPeriod))
}

func TestAutosaveMetricsRecord(t *testing.T) {
	metrics.ResetRegistry()
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := metrics.NewAutosaveMetrics()
	require.NotNil(t, m)
	m.RecordSave(time.Millisecond, nil)
	m.RecordSave(time.Millisecond, errors.New("disk full"))
	m.RecordRestore(3)

	am := m.(*autosaveMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(am.saves.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(am.restored))
}
