package buffer

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/bufpool"
)

// InBuf accumulates stream bytes and splits them into messages. It is
// used by a single goroutine.
type InBuf struct {
	pool       *bufpool.Pool
	buf        []byte
	start, end int
	closed     bool

	// need is how many more bytes the message at start still lacks.
	need int
}

// NewInBuf returns an empty input buffer backed by pool.
func NewInBuf(pool *bufpool.Pool) *InBuf {
	return &InBuf{pool: pool}
}

// Len returns the number of unparsed bytes.
func (b *InBuf) Len() int {
	return b.end - b.start
}

// Fill performs one Read from r into free space and returns the number of
// bytes read.
func (b *InBuf) Fill(r io.Reader) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if err := b.reserve(max(1, b.need)); err != nil {
		return 0, err
	}
	n, err := r.Read(b.buf[b.end:])
	b.end += n
	return n, err
}

// Peek returns the unparsed bytes without consuming them.
func (b *InBuf) Peek() []byte {
	return b.buf[b.start:b.end]
}

// Consume discards n unparsed bytes.
func (b *InBuf) Consume(n int) {
	if n > b.end-b.start {
		n = b.end - b.start
	}
	b.start += n
}

// Write appends p to the unparsed bytes.
func (b *InBuf) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrClosed
	}
	if err := b.reserve(len(p)); err != nil {
		return 0, err
	}
	n := copy(b.buf[b.end:], p)
	b.end += n
	return n, nil
}

// Next returns the next complete message. ok is false when more bytes are
// needed. The payload aliases the buffer and is valid until the next call
// to Fill or Write; Next itself never moves or replaces the buffer.
func (b *InBuf) Next() (msg ca.Message, ok bool, err error) {
	data := b.buf[b.start:b.end]
	h, hn, err := ca.ParseHeader(data)
	if errors.Is(err, ca.ErrShortHeader) {
		b.need = 0
		return ca.Message{}, false, nil
	}
	if err != nil {
		return ca.Message{}, false, err
	}

	total := uint64(hn) + uint64(h.PayloadSize)
	if total > uint64(b.pool.LargeSize()) {
		return ca.Message{}, false, fmt.Errorf("%w: %s declares %d bytes", ErrMessageTooLarge, ca.CommandName(h.Command), h.PayloadSize)
	}
	if uint64(len(data)) < total {
		// Fill makes room for the rest once the caller is done with
		// the messages already returned
		b.need = int(total) - len(data)
		return ca.Message{}, false, nil
	}

	b.need = 0
	msg = ca.Message{Header: h, Payload: data[hn:total]}
	b.Consume(int(total))
	return msg, true, nil
}

// reserve makes room for n more bytes, compacting and borrowing a large
// buffer as required.
func (b *InBuf) reserve(n int) error {
	if b.buf == nil {
		size := b.pool.SmallSize()
		if n > size {
			size = n
		}
		buf, err := b.pool.Get(size)
		if err != nil {
			return ErrMessageTooLarge
		}
		b.buf = buf[:cap(buf)]
		return nil
	}
	if b.end+n <= len(b.buf) {
		return nil
	}

	pending := b.end - b.start
	need := pending + n
	if need <= len(b.buf) {
		copy(b.buf, b.buf[b.start:b.end])
		b.start, b.end = 0, pending
		return nil
	}

	next, err := b.pool.Get(need)
	if err != nil {
		return ErrMessageTooLarge
	}
	next = next[:cap(next)]
	copy(next, b.buf[b.start:b.end])
	b.pool.Put(b.buf)
	b.buf = next
	b.start, b.end = 0, pending
	return nil
}

// Shrink returns a borrowed large buffer once no bytes are pending.
func (b *InBuf) Shrink() {
	if b.buf == nil || b.start != b.end || !b.pool.IsLarge(b.buf) {
		return
	}
	b.pool.Put(b.buf)
	b.buf = nil
	b.start, b.end = 0, 0
}

// Close releases the buffer.
func (b *InBuf) Close() {
	if b.closed {
		return
	}
	b.closed = true
	if b.buf != nil {
		b.pool.Put(b.buf)
		b.buf = nil
	}
}
