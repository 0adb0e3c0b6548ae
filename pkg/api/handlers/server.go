package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/dittoca/pkg/cas"
)

// ServerStatus is the body of GET /api/v1/server.
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

// ClientInfo describes one connected stream client.
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

// BufferInfo describes the large array buffer pool.
type BufferInfo struct {
	SmallSize        int    `json:"small_size"`
	LargeSize        int    `json:"large_size"`
	SmallOutstanding int64  `json:"small_outstanding"`
	LargeOutstanding int64  `json:"large_outstanding"`
	Refused          uint64 `json:"refused"`
}

// ServerHandler serves the server and client status endpoints.
type ServerHandler struct {
	status StatusSource
}

// NewServerHandler creates a new server status handler.
func NewServerHandler(status StatusSource) *ServerHandler {
	return &ServerHandler{status: status}
}

// Get handles GET /api/v1/server.
func (h *ServerHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, ok := h.stats(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, newServerStatus(st))
}

// Clients handles GET /api/v1/clients.
func (h *ServerHandler) Clients(w http.ResponseWriter, r *http.Request) {
	st, ok := h.stats(w, r)
	if !ok {
		return
	}
	WriteJSONOK(w, newClientInfos(st.Clients))
}

func (h *ServerHandler) stats(w http.ResponseWriter, r *http.Request) (cas.Stats, bool) {
	if h.status == nil {
		ServiceUnavailable(w, "Server not initialized")
		return cas.Stats{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	st, err := h.status.Stats(ctx)
	if err != nil {
		ServiceUnavailable(w, err.Error())
		return cas.Stats{}, false
	}
	return st, true
}

func newServerStatus(st cas.Stats) ServerStatus {
	return ServerStatus{
		ServerID:   st.ServerID,
		Port:       st.Port,
		StartTime:  st.StartTime,
		Uptime:     time.Since(st.StartTime).Round(time.Second).String(),
		PVs:        st.PVs,
		Channels:   st.Channels,
		Monitors:   st.Monitors,
		PendingOps: st.PendingOps,
		QueueDepth: st.QueueDepth,
		Clients:    newClientInfos(st.Clients),
		Beacon: BeaconInfo{
			Sequence:   st.Beacon.Sequence,
			Period:     st.Beacon.Period.String(),
			LastSent:   st.Beacon.LastSent,
			Sent:       st.Beacon.Sent,
			SendErrors: st.Beacon.SendErrors,
			Resets:     st.Beacon.Resets,
			Suppressed: st.Beacon.Suppressed,
		},
		Buffers: BufferInfo{
			SmallSize:        st.Buffers.SmallSize,
			LargeSize:        st.Buffers.LargeSize,
			SmallOutstanding: st.Buffers.SmallOutstanding,
			LargeOutstanding: st.Buffers.LargeOutstanding,
			Refused:          st.Buffers.Refused,
		},
	}
}

func newClientInfos(clients []cas.ClientStats) []ClientInfo {
	out := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientInfo{
			ID:           c.ID,
			Address:      c.Addr,
			User:         c.User,
			Host:         c.Host,
			State:        c.State,
			MinorVersion: c.MinorVersion,
			Priority:     c.Priority,
			Channels:     c.Channels,
			Monitors:     c.Monitors,
			PendingOps:   c.PendingOps,
			Queued:       c.Queued,
			ConnectedAt:  c.Since,
		})
	}
	return out
}
