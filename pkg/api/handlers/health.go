package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler handles health check endpoints.
//
//   - Liveness probe: Is the process running?
//   - Readiness probe: Does the server engine answer?
//   - Autosave health: Is the autosave store usable?
type HealthHandler struct {
	status   StatusSource
	autosave HealthChecker
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil.
func NewHealthHandler(status StatusSource, autosave HealthChecker) *HealthHandler {
	return &HealthHandler{status: status, autosave: autosave}
}

// Liveness handles GET /health - always 200 while the HTTP server answers.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "dittoca",
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 200 OK once the Channel Access server answers a stats request,
// 503 Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("server not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := h.status.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"server_id": st.ServerID,
		"port":      st.Port,
		"clients":   len(st.Clients),
		"pvs":       st.PVs,
	}))
}

// StoreHealth is the health of one store.
type StoreHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Autosave handles GET /health/autosave.
//
// Returns 200 OK when autosave is disabled or its store answers, 503
// Service Unavailable when the store check fails.
func (h *HealthHandler) Autosave(w http.ResponseWriter, r *http.Request) {
	if h.autosave == nil {
		writeJSON(w, http.StatusOK, healthyResponse(StoreHealth{Name: "autosave", Status: "disabled"}))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	start := time.Now()
	err := h.autosave.Healthcheck(ctx)
	health := StoreHealth{Name: "autosave", Status: "healthy", Latency: time.Since(start).String()}
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponseWithData(health, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthyResponse(health))
}
