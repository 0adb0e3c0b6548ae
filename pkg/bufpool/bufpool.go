// Package bufpool provides the pooled byte buffers behind client message
// buffers.
//
// Two size classes are pooled:
//   - Small buffers (default 16 KiB): one standard CA stream buffer, used
//     by every connection for input and output.
//   - Large buffers (default 1 MiB, EPICS_CA_MAX_ARRAY_BYTES in practice):
//     borrowed only while a connection moves a message that does not fit
//     a small buffer.
//
// Requests beyond the large size are refused; callers turn that into an
// ECA_TOLARGE status rather than allocating without bound.
//
// All operations are safe for concurrent use.
//
// # Usage
//
//	buf, err := pool.Get(size)
//	if err != nil { ... }
//	defer pool.Put(buf)
package bufpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Default buffer size classes.
const (
	// DefaultSmallSize is the standard CA stream buffer size (16 KiB)
	DefaultSmallSize = 16 << 10

	// DefaultLargeSize bounds array transfers (1 MiB)
	DefaultLargeSize = 1 << 20
)

// ErrTooLarge is returned when a request exceeds the large buffer size.
var ErrTooLarge = errors.New("bufpool: request exceeds large buffer size")

// Pool hands out small and large byte slices.
type Pool struct {
	small     sync.Pool
	large     sync.Pool
	smallSize int
	largeSize int

	smallOut atomic.Int64
	largeOut atomic.Int64
	refused  atomic.Uint64
}

// Config holds configuration for creating a pool.
type Config struct {
	// SmallSize is the size of small buffers (default: 16 KiB)
	SmallSize int

	// LargeSize is the size of large buffers (default: 1 MiB). Values
	// below SmallSize are raised to SmallSize.
	LargeSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize: DefaultSmallSize,
		LargeSize: DefaultLargeSize,
	}
}

// Stats is a snapshot of pool usage.
type Stats struct {
	SmallSize        int
	LargeSize        int
	SmallOutstanding int64
	LargeOutstanding int64
	Refused          uint64
}

// NewPool creates a pool. A nil config uses the defaults.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if c.SmallSize <= 0 {
		c.SmallSize = DefaultSmallSize
	}
	if c.LargeSize <= 0 {
		c.LargeSize = DefaultLargeSize
	}
	if c.LargeSize < c.SmallSize {
		c.LargeSize = c.SmallSize
	}

	p := &Pool{smallSize: c.SmallSize, largeSize: c.LargeSize}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// SmallSize returns the small buffer size.
func (p *Pool) SmallSize() int { return p.smallSize }

// LargeSize returns the large buffer size, the largest request Get serves.
func (p *Pool) LargeSize() int { return p.largeSize }

// Get returns a slice of length size backed by a pooled buffer. The
// caller must return it with Put.
func (p *Pool) Get(size int) ([]byte, error) {
	switch {
	case size < 0:
		return nil, fmt.Errorf("bufpool: negative size %d", size)
	case size <= p.smallSize:
		p.smallOut.Add(1)
		return (*p.small.Get().(*[]byte))[:size], nil
	case size <= p.largeSize:
		p.largeOut.Add(1)
		return (*p.large.Get().(*[]byte))[:size], nil
	default:
		p.refused.Add(1)
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, size, p.largeSize)
	}
}

// IsLarge reports whether buf came from the large class.
func (p *Pool) IsLarge(buf []byte) bool {
	return cap(buf) == p.largeSize && p.largeSize != p.smallSize
}

// Put returns a buffer obtained from Get. Foreign buffers are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.smallOut.Add(-1)
		p.small.Put(&full)
	case p.largeSize:
		p.largeOut.Add(-1)
		p.large.Put(&full)
	}
}

// Stats returns current usage counters.
func (p *Pool) Stats() Stats {
	return Stats{
		SmallSize:        p.smallSize,
		LargeSize:        p.largeSize,
		SmallOutstanding: p.smallOut.Load(),
		LargeOutstanding: p.largeOut.Load(),
		Refused:          p.refused.Load(),
	}
}
