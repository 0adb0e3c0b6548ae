package apiclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPVs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/pvs", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]PVInfo{
			{Name: "MODE", Type: "ENUM16", Count: 1, Access: "rw"},
			{Name: "TEMP1", Type: "FLOAT64", Count: 1, Access: "rw", Channels: 2},
		})
	}))
	defer server.Close()

	pvs, err := New(server.URL).ListPVs()
	require.NoError(t, err)
	require.Len(t, pvs, 2)
	assert.Equal(t, "TEMP1", pvs[1].Name)
	assert.Equal(t, 2, pvs[1].Channels)
}

func TestGetPV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/pvs/IOC:TEMP", r.URL.Path)
		_ = json.NewEncoder(w).Encode(PVValue{Name: "IOC:TEMP", Value: 72.5, Status: "NO_ALARM"})
	}))
	defer server.Close()

	v, err := New(server.URL).GetPV("IOC:TEMP")
	require.NoError(t, err)
	assert.Equal(t, 72.5, v.Value)
	assert.Equal(t, "NO_ALARM", v.Status)
}

func TestGetPVEscapesName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/pvs/A%2FB", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(PVValue{Name: "A/B"})
	}))
	defer server.Close()

	_, err := New(server.URL).GetPV("A/B")
	require.NoError(t, err)
}

func TestPutPV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/pvs/SETPOINT", r.URL.Path)

		var req PutPVRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 150.0, req.Value)

		_ = json.NewEncoder(w).Encode(PVValue{Name: "SETPOINT", Value: 100.0})
	}))
	defer server.Close()

	v, err := New(server.URL).PutPV("SETPOINT", 150.0)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.Value)
}

func TestPutPVForbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"title":"Forbidden","status":403,"detail":"PV is not writable: LABEL"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).PutPV("LABEL", "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsForbidden())
	assert.False(t, apiErr.IsNotFound())
}
