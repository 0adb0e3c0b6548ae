package cas

import (
	"time"

	"github.com/marmos91/dittoca/pkg/metrics"
)

// noopMetrics stands in when the server is created without metrics.
type noopMetrics struct{}

var _ metrics.CASMetrics = noopMetrics{}

func (noopMetrics) RecordRequest(string, time.Duration, string) {}
func (noopMetrics) RecordSearch(bool)                           {}
func (noopMetrics) RecordConnectionAccepted()                   {}
func (noopMetrics) RecordConnectionClosed(string)               {}
func (noopMetrics) SetActiveConnections(int)                    {}
func (noopMetrics) SetChannels(int)                             {}
func (noopMetrics) SetMonitors(int)                             {}
func (noopMetrics) RecordAsyncOp(string, string, time.Duration) {}
func (noopMetrics) RecordStalledOp(string)                      {}
func (noopMetrics) RecordLateCompletion(string)                 {}
func (noopMetrics) RecordEvent(string)                          {}
func (noopMetrics) RecordBackpressure()                         {}
func (noopMetrics) RecordBytes(string, int)                     {}
func (noopMetrics) RecordBeacon(time.Duration)                  {}
func (noopMetrics) RecordBeaconAnomaly(string, bool)            {}
