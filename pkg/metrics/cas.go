package metrics

import (
	"time"
)

// CASMetrics provides observability for the CA server engine.
//
// Implementations collect metrics about requests, client connections,
// channels, monitors, async operations and beacons. This interface is
// optional - pass nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	srv := cas.NewServer(cfg, host, metrics.NewCASMetrics())
//
//	// Without metrics
//	srv := cas.NewServer(cfg, host, nil)
type CASMetrics interface {
	// RecordRequest records a processed request.
	//
	// Parameters:
	//   - command: CA command name (e.g., "READ_NOTIFY", "CREATE_CHAN")
	//   - duration: Time spent dispatching the request
	//   - status: ECA status name, "ECA_NORMAL" when successful
	RecordRequest(command string, duration time.Duration, status string)

	// RecordSearch records a name search and whether this server answered.
	RecordSearch(found bool)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	//
	// Parameters:
	//   - reason: "client", "protocol", "queue_overflow", "shutdown"
	RecordConnectionClosed(reason string)

	// SetActiveConnections updates the current stream client count.
	SetActiveConnections(count int)

	// SetChannels updates the current channel count.
	SetChannels(count int)

	// SetMonitors updates the current monitor count.
	SetMonitors(count int)

	// RecordAsyncOp records an async operation that left the pending state.
	//
	// Parameters:
	//   - kind: "read", "write", "exist", "attach"
	//   - outcome: "completed", "canceled"
	//   - duration: Time the operation was pending
	RecordAsyncOp(kind, outcome string, duration time.Duration)

	// RecordStalledOp records an async operation that exceeded the stall
	// timeout.
	RecordStalledOp(kind string)

	// RecordLateCompletion records a completion for a canceled or already
	// completed operation.
	RecordLateCompletion(kind string)

	// RecordEvent records the fate of one monitor event.
	//
	// Parameters:
	//   - outcome: "sent", "queued", "coalesced"
	RecordEvent(outcome string)

	// RecordBackpressure records an output buffer refusing a message.
	RecordBackpressure()

	// RecordBytes records bytes moved on a stream connection.
	//
	// Parameters:
	//   - direction: "in" or "out"
	RecordBytes(direction string, n int)

	// RecordBeacon records a beacon sent with the current period.
	RecordBeacon(period time.Duration)

	// RecordBeaconAnomaly records an anomaly request and whether the
	// governor let it reset the beacon period.
	RecordBeaconAnomaly(reason string, accepted bool)
}

// NewCASMetrics creates a Prometheus-backed CASMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// Prometheus implementation is not linked in.
func NewCASMetrics() CASMetrics {
	if !IsEnabled() || newPrometheusCASMetrics == nil {
		return nil
	}
	return newPrometheusCASMetrics()
}

// newPrometheusCASMetrics is set by pkg/metrics/prometheus during package
// initialization. The indirection avoids an import cycle.
var newPrometheusCASMetrics func() CASMetrics

// RegisterCASMetricsConstructor registers the Prometheus CAS metrics
// constructor.
func RegisterCASMetricsConstructor(constructor func() CASMetrics) {
	newPrometheusCASMetrics = constructor
}
