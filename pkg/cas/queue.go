package cas

import (
	"net"
	"sync"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/gdd"
)

type eventKind uint8

const (
	evSessionOpen eventKind = iota
	evRequests
	evDrained
	evSessionClose
	evDatagram
	evBeaconDatagram
	evCompletion
	evPost
	evAccessRights
	evDestroyChannel
	evCall
)

// engineEvent is everything that enters the engine goroutine. Only the
// fields of its kind are set.
type engineEvent struct {
	kind eventKind

	session *streamSession
	msgs    []ca.Message
	done    chan struct{}
	reason  string

	from *net.UDPAddr
	data []byte

	op *AsyncOp

	pv    string
	mask  EventMask
	value *gdd.GDD

	sessionID uint64
	sid       uint32

	fn func()
}

// eventQueue is the engine's inbox. Producers never block: readers
// already wait for their batch to be processed and every other source
// submits at most one event per host action.
type eventQueue struct {
	mu     sync.Mutex
	items  []engineEvent
	signal chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

// push appends ev and wakes the engine. It returns false once the queue
// is closed.
func (q *eventQueue) push(ev engineEvent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// take moves every queued event into dst.
func (q *eventQueue) take(dst []engineEvent) []engineEvent {
	q.mu.Lock()
	dst = append(dst, q.items...)
	clear(q.items)
	q.items = q.items[:0]
	q.mu.Unlock()
	return dst
}

// close rejects further pushes and returns what was still queued.
func (q *eventQueue) close() []engineEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
