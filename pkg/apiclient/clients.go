package apiclient

import "time"

// ClientInfo represents a connected Channel Access client returned by the API.
type ClientInfo struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	User         string    `json:"user"`
	Host         string    `json:"host"`
	State        string    `json:"state"`
	MinorVersion uint16    `json:"minor_version"`
	Priority     uint16    `json:"priority"`
	Channels     int       `json:"channels"`
	Monitors     int       `json:"monitors"`
	PendingOps   int       `json:"pending_ops"`
	Queued       int       `json:"queued"`
	ConnectedAt  time.Time `json:"connected_at"`
}

// ListClients returns all connected clients.
func (c *Client) ListClients() ([]ClientInfo, error) {
	return listResources[ClientInfo](c, "/api/v1/clients")
}
