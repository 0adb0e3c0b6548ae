package apiclient

import "time"

// ServerStatus is the Channel Access server summary.
type ServerStatus struct {
	ServerID   string       `json:"server_id"`
	Port       int          `json:"port"`
	StartTime  time.Time    `json:"start_time"`
	Uptime     string       `json:"uptime"`
	PVs        int          `json:"pvs"`
	Channels   int          `json:"channels"`
	Monitors   int          `json:"monitors"`
	PendingOps int          `json:"pending_ops"`
	QueueDepth int          `json:"queue_depth"`
	Clients    []ClientInfo `json:"clients"`
	Beacon     BeaconInfo   `json:"beacon"`
	Buffers    BufferInfo   `json:"buffers"`
}

// BeaconInfo describes the beacon timer.
type BeaconInfo struct {
	Sequence   uint32    `json:"sequence"`
	Period     string    `json:"period"`
	LastSent   time.Time `json:"last_sent"`
	Sent       uint64    `json:"sent"`
	SendErrors uint64    `json:"send_errors"`
	Resets     uint64    `json:"resets"`
	Suppressed uint64    `json:"suppressed"`
}

// BufferInfo describes the buffer pools.
type BufferInfo struct {
	SmallSize        int    `json:"small_size"`
	LargeSize        int    `json:"large_size"`
	SmallOutstanding int64  `json:"small_outstanding"`
	LargeOutstanding int64  `json:"large_outstanding"`
	Refused          uint64 `json:"refused"`
}

// Server returns the server summary.
func (c *Client) Server() (*ServerStatus, error) {
	return getResource[ServerStatus](c, "/api/v1/server")
}
