package buffer

import (
	"sync"

	"github.com/marmos91/dittoca/pkg/bufpool"
)

// OutBuf buffers outgoing messages for one connection. Append is called by
// the engine, Drain and Release by the connection's writer. Its capacity
// is one small pool buffer, or one large buffer while a single oversized
// message is queued.
type OutBuf struct {
	mu     sync.Mutex
	pool   *bufpool.Pool
	buf    []byte
	closed bool
	ready  chan struct{}

	appended uint64
	refused  uint64
}

// NewOutBuf returns an empty output buffer backed by pool.
func NewOutBuf(pool *bufpool.Pool) *OutBuf {
	return &OutBuf{
		pool:  pool,
		ready: make(chan struct{}, 1),
	}
}

// Append copies msg into the buffer. It returns ErrFull when msg does not
// fit behind the bytes already queued, and ErrTooLarge when msg could
// never fit. A message larger than a small buffer is accepted only into
// an empty buffer, which then borrows a large buffer.
func (o *OutBuf) Append(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if len(msg) > o.pool.LargeSize() {
		return ErrTooLarge
	}

	if o.buf == nil {
		size := o.pool.SmallSize()
		if len(msg) > size {
			size = len(msg)
		}
		b, err := o.pool.Get(size)
		if err != nil {
			return ErrTooLarge
		}
		o.buf = b[:0]
	}

	if len(o.buf)+len(msg) > cap(o.buf) {
		o.refused++
		return ErrFull
	}

	o.buf = append(o.buf, msg...)
	o.appended += uint64(len(msg))
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return nil
}

// Fits reports whether a message of n bytes would be accepted now.
func (o *OutBuf) Fits(n int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || n > o.pool.LargeSize() {
		return false
	}
	if o.buf == nil {
		return true
	}
	return len(o.buf)+n <= cap(o.buf)
}

// Ready is signalled whenever bytes are appended.
func (o *OutBuf) Ready() <-chan struct{} {
	return o.ready
}

// Drain hands the buffered bytes to the writer, leaving the buffer empty.
// The writer returns the slice with Release once written. Drain returns
// nil when nothing is buffered.
func (o *OutBuf) Drain() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := o.buf
	o.buf = nil
	if len(b) == 0 {
		if b != nil {
			o.pool.Put(b)
		}
		return nil
	}
	return b
}

// Release returns a slice obtained from Drain to the pool.
func (o *OutBuf) Release(b []byte) {
	o.pool.Put(b)
}

// Len returns the number of bytes waiting for the writer.
func (o *OutBuf) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buf)
}

// Free returns the number of bytes Append can take before refusing.
func (o *OutBuf) Free() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return 0
	}
	if o.buf == nil {
		return o.pool.SmallSize()
	}
	return cap(o.buf) - len(o.buf)
}

// Stats returns the number of bytes appended and the number of refused
// appends since creation.
func (o *OutBuf) Stats() (appended, refused uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.appended, o.refused
}

// Close discards buffered bytes and rejects further appends.
func (o *OutBuf) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.buf != nil {
		o.pool.Put(o.buf)
		o.buf = nil
	}
}
