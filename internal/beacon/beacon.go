// Package beacon sends the CA server presence beacons.
//
// A Timer broadcasts RSRV_IS_UP datagrams to every beacon destination.
// The first beacon goes out immediately; the period then starts at
// MinPeriod and doubles after each beacon until it reaches MaxPeriod.
// Clients use beacons to notice restarted servers, so anything that may
// have hidden the server (a new interface, a host request, a peer that
// restarted) resets the period through the Governor, which limits how
// often that can happen.
package beacon

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
)

// Defaults match the EPICS CA server.
const (
	DefaultMinPeriod       = 20 * time.Millisecond
	DefaultMaxPeriod       = 15 * time.Second
	DefaultAnomalyInterval = 5 * time.Second
	DefaultInterfaceCheck  = time.Minute
)

// Config configures a Timer.
type Config struct {
	// ServerPort is the TCP port advertised in each beacon.
	ServerPort uint16

	// ServerAddr is advertised in each beacon. Unspecified means clients
	// use the datagram source address.
	ServerAddr net.IP

	// Destinations are the configured beacon addresses.
	Destinations []*net.UDPAddr

	// AutoBroadcast adds the broadcast address of every interface.
	AutoBroadcast bool

	// BeaconPort is the port used for auto broadcast destinations.
	BeaconPort int

	MinPeriod       time.Duration
	MaxPeriod       time.Duration
	AnomalyInterval time.Duration

	// InterfaceCheck is how often local addresses are compared to detect
	// new interfaces. Zero disables the check.
	InterfaceCheck time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinPeriod <= 0 {
		c.MinPeriod = DefaultMinPeriod
	}
	if c.MaxPeriod <= 0 {
		c.MaxPeriod = DefaultMaxPeriod
	}
	if c.MaxPeriod < c.MinPeriod {
		c.MaxPeriod = c.MinPeriod
	}
	if c.BeaconPort == 0 {
		c.BeaconPort = ca.DefaultBeaconPort
	}
}

// Stats is a snapshot of the beacon state.
type Stats struct {
	Sequence   uint32
	Period     time.Duration
	LastSent   time.Time
	Sent       uint64
	SendErrors uint64
	Resets     uint64
	Suppressed uint64
}

// Timer owns the beacon state. Only Run mutates the period and sequence.
type Timer struct {
	cfg      Config
	conn     net.PacketConn
	governor *Governor
	metrics  Metrics

	mu    sync.Mutex
	dests []*net.UDPAddr

	seq      atomic.Uint32
	period   atomic.Int64
	lastSent atomic.Int64
	sent     atomic.Uint64
	errs     atomic.Uint64
	resets   atomic.Uint64
}

// New creates a Timer that sends through conn.
func New(cfg Config, conn net.PacketConn, m Metrics) *Timer {
	cfg.applyDefaults()
	t := &Timer{
		cfg:      cfg,
		conn:     conn,
		governor: NewGovernor(cfg.AnomalyInterval, m),
		metrics:  m,
	}
	t.period.Store(int64(cfg.MinPeriod))
	t.refreshDestinations()
	return t
}

// Anomaly requests a period reset, subject to the governor.
func (t *Timer) Anomaly(reason string) bool {
	return t.governor.Anomaly(reason)
}

// Governor returns the anomaly governor.
func (t *Timer) Governor() *Governor {
	return t.governor
}

// Destinations returns the current beacon destinations.
func (t *Timer) Destinations() []*net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*net.UDPAddr(nil), t.dests...)
}

// Stats returns the current beacon state.
func (t *Timer) Stats() Stats {
	_, suppressed := t.governor.Counts()
	s := Stats{
		Sequence:   t.seq.Load(),
		Period:     time.Duration(t.period.Load()),
		Sent:       t.sent.Load(),
		SendErrors: t.errs.Load(),
		Resets:     t.resets.Load(),
		Suppressed: suppressed,
	}
	if ns := t.lastSent.Load(); ns != 0 {
		s.LastSent = time.Unix(0, ns)
	}
	return s
}

// Run sends beacons until ctx is canceled.
func (t *Timer) Run(ctx context.Context) error {
	period := t.cfg.MinPeriod
	timer := time.NewTimer(0)
	defer timer.Stop()

	var ifaceTick <-chan time.Time
	if t.cfg.InterfaceCheck > 0 {
		ticker := time.NewTicker(t.cfg.InterfaceCheck)
		defer ticker.Stop()
		ifaceTick = ticker.C
	}
	known := localAddrs()

	logger.Info("Beacon timer started",
		logger.KeyPort, t.cfg.ServerPort,
		"destinations", len(t.Destinations()),
		logger.KeyBeaconPeriod, t.cfg.MaxPeriod)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			t.send(period)
			period = nextPeriod(period, t.cfg.MaxPeriod)
			t.period.Store(int64(period))
			timer.Reset(period)

		case reason := <-t.governor.Resets():
			t.resets.Add(1)
			period = t.cfg.MinPeriod
			t.period.Store(int64(period))
			logger.Debug("Beacon period reset", logger.KeyReason, reason)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(0)

		case <-ifaceTick:
			current := localAddrs()
			if added := addedAddrs(known, current); len(added) > 0 {
				logger.Info("New local interface address", logger.KeyAddress, added[0])
				t.refreshDestinations()
				t.Anomaly("interface")
			}
			known = current
		}
	}
}

func (t *Timer) send(period time.Duration) {
	seq := t.seq.Add(1) - 1
	msg := ca.AppendBeacon(nil, t.cfg.ServerPort, seq, IPv4ToUint32(t.cfg.ServerAddr))

	for _, dst := range t.Destinations() {
		if _, err := t.conn.WriteTo(msg, dst); err != nil {
			t.errs.Add(1)
			if !errors.Is(err, net.ErrClosed) {
				logger.Debug("Beacon send failed", logger.KeyAddress, dst.String(), logger.Err(err))
			}
		}
	}

	t.sent.Add(1)
	t.lastSent.Store(time.Now().UnixNano())
	if t.metrics != nil {
		t.metrics.RecordBeacon(period)
	}
}

func (t *Timer) refreshDestinations() {
	dests := append([]*net.UDPAddr(nil), t.cfg.Destinations...)
	if t.cfg.AutoBroadcast {
		dests = appendUnique(dests, BroadcastAddrs(t.cfg.BeaconPort)...)
	}
	t.mu.Lock()
	t.dests = dests
	t.mu.Unlock()
}

func appendUnique(dst []*net.UDPAddr, addrs ...*net.UDPAddr) []*net.UDPAddr {
	for _, a := range addrs {
		dup := false
		for _, d := range dst {
			if d.IP.Equal(a.IP) && d.Port == a.Port {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, a)
		}
	}
	return dst
}

// nextPeriod doubles p up to max.
func nextPeriod(p, max time.Duration) time.Duration {
	p *= 2
	if p > max {
		return max
	}
	return p
}
