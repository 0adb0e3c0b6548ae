package beacon

import (
	"sync"
	"time"
)

const maxPeers = 4096

// Observer watches beacons from other servers and reports the patterns
// that indicate a restarted or duplicated server: a sequence number that
// goes backwards, or the same sequence number repeated in a burst.
type Observer struct {
	mu     sync.Mutex
	peers  map[string]*peer
	burst  int
	window time.Duration
}

type peer struct {
	seq      uint32
	repeats  int
	first    time.Time
	lastSeen time.Time
}

// NewObserver reports a duplicate when burst identical sequence numbers
// arrive within window.
func NewObserver(burst int, window time.Duration) *Observer {
	if burst < 2 {
		burst = 2
	}
	return &Observer{
		peers:  make(map[string]*peer),
		burst:  burst,
		window: window,
	}
}

// Observe records a beacon from addr and returns a non-empty reason when
// it is anomalous.
func (o *Observer) Observe(addr string, seq uint32, now time.Time) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.peers[addr]
	if !ok {
		if len(o.peers) >= maxPeers {
			o.pruneLocked(now)
		}
		o.peers[addr] = &peer{seq: seq, repeats: 1, first: now, lastSeen: now}
		return ""
	}
	p.lastSeen = now

	switch {
	case seq == p.seq:
		if now.Sub(p.first) > o.window {
			p.first, p.repeats = now, 1
			return ""
		}
		p.repeats++
		if p.repeats >= o.burst {
			p.first, p.repeats = now, 1
			return "duplicate_beacon"
		}
		return ""

	case seqBefore(seq, p.seq):
		p.seq, p.repeats, p.first = seq, 1, now
		return "peer_restart"

	default:
		p.seq, p.repeats, p.first = seq, 1, now
		return ""
	}
}

// Len returns the number of tracked peers.
func (o *Observer) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.peers)
}

func (o *Observer) pruneLocked(now time.Time) {
	for k, p := range o.peers {
		if now.Sub(p.lastSeen) > 10*time.Minute {
			delete(o.peers, k)
		}
	}
}

// seqBefore compares sequence numbers modulo 2^32.
func seqBefore(a, b uint32) bool {
	return int32(a-b) < 0
}
