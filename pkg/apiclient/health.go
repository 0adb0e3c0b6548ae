package apiclient

import (
	"encoding/json"
	"time"
)

// HealthResponse is the envelope of the health endpoints.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Readiness is the data of a healthy readiness probe.
type Readiness struct {
	ServerID string `json:"server_id"`
	Port     int    `json:"port"`
	Clients  int    `json:"clients"`
	PVs      int    `json:"pvs"`
}

// Ready probes /health/ready. A server whose engine does not answer
// returns an *APIError with IsUnavailable set.
func (c *Client) Ready() (*Readiness, error) {
	resp, err := getResource[HealthResponse](c, "/health/ready")
	if err != nil {
		return nil, err
	}
	var r Readiness
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &r); err != nil {
			return nil, err
		}
	}
	return &r, nil
}
