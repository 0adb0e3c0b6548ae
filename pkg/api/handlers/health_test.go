package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/dittoca/pkg/cas"
)

type fakeStatus struct {
	stats cas.Stats
	pvs   []cas.PVStats
	err   error
}

func (f *fakeStatus) Stats(ctx context.Context) (cas.Stats, error)   { return f.stats, f.err }
func (f *fakeStatus) PVs(ctx context.Context) ([]cas.PVStats, error) { return f.pvs, f.err }

type fakeChecker struct{ err error }

func (f *fakeChecker) Healthcheck(ctx context.Context) error { return f.err }

func newFakeStatus() *fakeStatus {
	return &fakeStatus{stats: cas.Stats{
		ServerID:  "abc",
		Port:      5064,
		StartTime: time.Now().Add(-time.Minute),
		PVs:       2,
		Clients:   []cas.ClientStats{{ID: "c1", Addr: "127.0.0.1:40000", User: "op", Host: "ws1", Channels: 1}},
	}}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestLiveness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler.Liveness(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected Data to be a map, got %T", resp.Data)
	}
	if data["service"] != "dittoca" {
		t.Errorf("Expected service 'dittoca', got '%s'", data["service"])
	}
}

func TestReadiness_NoServer_Returns503(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Error != "server not initialized" {
		t.Errorf("Expected error 'server not initialized', got '%s'", resp.Error)
	}
}

func TestReadiness_EngineDown_Returns503(t *testing.T) {
	handler := NewHealthHandler(&fakeStatus{err: errors.New("server stopped")}, nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if resp := decodeResponse(t, w); resp.Error != "server stopped" {
		t.Errorf("Expected error 'server stopped', got '%s'", resp.Error)
	}
}

func TestReadiness_ReturnsOK(t *testing.T) {
	handler := NewHealthHandler(newFakeStatus(), nil)
	w := httptest.NewRecorder()

	handler.Readiness(w, httptest.NewRequest("GET", "/health/ready", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	data, ok := decodeResponse(t, w).Data.(map[string]interface{})
	if !ok {
		t.Fatal("Expected Data to be a map")
	}
	if data["server_id"] != "abc" {
		t.Errorf("Expected server_id 'abc', got %v", data["server_id"])
	}
	if data["clients"] != float64(1) {
		t.Errorf("Expected 1 client, got %v", data["clients"])
	}
}

func TestAutosave_Disabled(t *testing.T) {
	handler := NewHealthHandler(nil, nil)
	w := httptest.NewRecorder()

	handler.Autosave(w, httptest.NewRequest("GET", "/health/autosave", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
}

func TestAutosave_Healthy(t *testing.T) {
	handler := NewHealthHandler(nil, &fakeChecker{})
	w := httptest.NewRecorder()

	handler.Autosave(w, httptest.NewRequest("GET", "/health/autosave", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if resp := decodeResponse(t, w); resp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", resp.Status)
	}
}

func TestAutosave_Unhealthy(t *testing.T) {
	handler := NewHealthHandler(nil, &fakeChecker{err: errors.New("store is closed")})
	w := httptest.NewRecorder()

	handler.Autosave(w, httptest.NewRequest("GET", "/health/autosave", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	resp := decodeResponse(t, w)
	if resp.Status != "unhealthy" || resp.Error != "store is closed" {
		t.Errorf("Unexpected response %+v", resp)
	}
}
