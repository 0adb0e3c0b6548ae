package cas

import (
	"time"

	"github.com/marmos91/dittoca/internal/beacon"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/adapter"
	"github.com/marmos91/dittoca/pkg/bufpool"
)

// Config configures a Server.
type Config struct {
	// BaseConfig holds the TCP listener settings. Port is also the UDP
	// search port.
	adapter.BaseConfig

	// ServerAddr is the address advertised in beacons. Empty lets clients
	// use the datagram source address.
	ServerAddr string

	// BeaconPort is the destination port of auto broadcast beacons.
	BeaconPort int

	// BeaconAddrs are explicit beacon destinations ("host" or "host:port").
	BeaconAddrs []string

	// AutoBeaconAddrs adds the broadcast address of every interface.
	AutoBeaconAddrs bool

	// IgnoreAddrs lists client addresses whose datagrams are dropped.
	IgnoreAddrs []string

	BeaconMinPeriod time.Duration
	BeaconPeriod    time.Duration
	AnomalyInterval time.Duration
	InterfaceCheck  time.Duration

	// BufferSize is the size of one stream buffer.
	BufferSize int

	// MaxArrayBytes bounds a single message, in either direction.
	MaxArrayBytes int

	// MaxEventQueue is the number of messages a client may have waiting
	// behind a full output buffer before it is disconnected.
	MaxEventQueue int

	// StallTimeout reports async operations pending longer than this.
	// Zero disables the check.
	StallTimeout time.Duration

	// MinMinorVersion rejects older clients.
	MinMinorVersion uint16

	// ObserveBeacons also listens on BeaconPort for beacons of other
	// servers. Beacons reaching the search port are always observed. Off
	// by default: on Linux a unicast datagram to a shared port reaches
	// only one socket, which could take beacons away from a CA repeater.
	ObserveBeacons bool

	// ObserverBurst and ObserverWindow tune beacon anomaly detection.
	ObserverBurst  int
	ObserverWindow time.Duration
}

// DefaultConfig returns the EPICS defaults.
func DefaultConfig() Config {
	return Config{
		BaseConfig: adapter.BaseConfig{
			Port:            ca.DefaultServerPort,
			ShutdownTimeout: 10 * time.Second,
		},
		BeaconPort:      ca.DefaultBeaconPort,
		AutoBeaconAddrs: true,
		BeaconMinPeriod: beacon.DefaultMinPeriod,
		BeaconPeriod:    beacon.DefaultMaxPeriod,
		AnomalyInterval: beacon.DefaultAnomalyInterval,
		InterfaceCheck:  beacon.DefaultInterfaceCheck,
		BufferSize:      ca.MaxTCPMessage,
		MaxArrayBytes:   bufpool.DefaultLargeSize,
		MaxEventQueue:   1024,
		StallTimeout:    30 * time.Second,
		MinMinorVersion: 1,
		ObserverBurst:   3,
		ObserverWindow:  time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BeaconPort == 0 {
		c.BeaconPort = d.BeaconPort
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.MaxArrayBytes < c.BufferSize {
		c.MaxArrayBytes = c.BufferSize
	}
	if c.MaxEventQueue <= 0 {
		c.MaxEventQueue = d.MaxEventQueue
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ObserverBurst <= 0 {
		c.ObserverBurst = d.ObserverBurst
	}
	if c.ObserverWindow <= 0 {
		c.ObserverWindow = d.ObserverWindow
	}
}
