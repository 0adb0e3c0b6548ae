package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoca/pkg/softpv"
)

func TestRouter(t *testing.T) {
	host, err := softpv.New(context.Background(), softpv.Config{PVs: []softpv.PVConfig{
		{Name: "TEMP1", Type: "double", Value: 72.5},
	}}, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dittoca_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := httptest.NewServer(NewRouter(Backends{PVs: host, Metrics: reg}))
	defer srv.Close()

	tests := []struct {
		path string
		code int
	}{
		{"/health", http.StatusOK},
		{"/health/ready", http.StatusServiceUnavailable},
		{"/health/autosave", http.StatusOK},
		{"/api/v1/pvs", http.StatusOK},
		{"/api/v1/pvs/TEMP1", http.StatusOK},
		{"/api/v1/pvs/NOPE", http.StatusNotFound},
		{"/api/v1/server", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dittoca_test_total 1")
}

func TestRouterWithoutMetrics(t *testing.T) {
	srv := httptest.NewServer(NewRouter(Backends{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIConfigDefaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())
	cfg.applyDefaults()
	assert.Equal(t, 8080, cfg.Port)

	off := false
	cfg.Enabled = &off
	assert.False(t, cfg.IsEnabled())
}
