package cas

import (
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// OpKind is the kind of an asynchronous operation.
type OpKind uint8

const (
	OpRead OpKind = iota + 1
	OpWrite
	OpExist
	OpAttach
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpExist:
		return "exist"
	case OpAttach:
		return "attach"
	default:
		return "unknown"
	}
}

// OpState is the lifecycle state of an asynchronous operation.
//
//	Issued -> CompletedSync   completed before the host callback returned
//	Issued -> Pending         host returned ErrAsyncCompletion
//	Pending -> Completed      host called Complete
//	Issued|Pending -> Canceled  channel, client or server went away
type OpState uint8

const (
	OpIssued OpState = iota
	OpCompletedSync
	OpPending
	OpCompleted
	OpCanceled
)

func (s OpState) String() string {
	switch s {
	case OpIssued:
		return "issued"
	case OpCompletedSync:
		return "completed_sync"
	case OpPending:
		return "pending"
	case OpCompleted:
		return "completed"
	case OpCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// replyKind selects the reply a read completion produces.
type replyKind uint8

const (
	replyReadNotify replyKind = iota
	replyRead
	replyEvent
	replyWriteNotify
	replyWrite
)

// opRequest is what the engine needs to answer an operation. It is
// written before the host is called and only read by the engine.
type opRequest struct {
	session *streamSession
	sid     uint32
	pv      string
	header  ca.Header
	reply   replyKind
	subid   uint32

	// exist and attach
	name    string
	cid     uint32
	minor   uint16
	replyTo *net.UDPAddr
	doReply bool
}

// opResult is what the host hands to Complete.
type opResult struct {
	value  *gdd.GDD
	err    error
	exist  ExistReturn
	attach AttachReturn
}

// AsyncOp is an operation the host completes after its callback returned.
// Complete methods may be called from any goroutine, exactly once.
type AsyncOp struct {
	id     uint64
	kind   OpKind
	server *Server
	issued time.Time
	req    opRequest

	mu     sync.Mutex
	state  OpState
	result opResult

	// engine only
	stalled bool
}

// ID returns the operation's server-unique ID.
func (op *AsyncOp) ID() uint64 { return op.id }

// Kind returns the operation kind.
func (op *AsyncOp) Kind() OpKind { return op.kind }

// PV returns the PV name the operation targets.
func (op *AsyncOp) PV() string {
	if op.req.pv != "" {
		return op.req.pv
	}
	return op.req.name
}

// State returns the current state.
func (op *AsyncOp) State() OpState {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Complete finishes a read or write. For reads value is encoded at the
// client's requested type; the op takes its own reference, so the caller
// keeps (and must release) its own. A non-nil err is mapped to an ECA
// status with MapError.
//
// Returns ErrOpCanceled when the requester went away and ErrOpCompleted on
// a second completion; in both cases nothing is sent.
func (op *AsyncOp) Complete(value *gdd.GDD, err error) error {
	if op.kind != OpRead && op.kind != OpWrite {
		return ErrOpKind
	}
	if op.kind == OpRead && value == nil && err == nil {
		return ErrNilValue
	}
	return op.finish(opResult{value: value, err: err})
}

// CompleteExist finishes an exist test.
func (op *AsyncOp) CompleteExist(ret ExistReturn) error {
	if op.kind != OpExist {
		return ErrOpKind
	}
	return op.finish(opResult{exist: ret})
}

// CompleteAttach finishes an attach.
func (op *AsyncOp) CompleteAttach(ret AttachReturn) error {
	if op.kind != OpAttach {
		return ErrOpKind
	}
	if ret.PV == nil && ret.Err == nil {
		ret.Err = ErrNotFound
	}
	return op.finish(opResult{attach: ret})
}

func (op *AsyncOp) finish(r opResult) error {
	op.mu.Lock()
	defer op.mu.Unlock()

	switch op.state {
	case OpCanceled:
		op.server.lateCompletion(op, ErrOpCanceled)
		return ErrOpCanceled
	case OpCompleted, OpCompletedSync:
		op.server.lateCompletion(op, ErrOpCompleted)
		return ErrOpCompleted
	}

	if r.value != nil {
		if err := r.value.Reference(); err != nil {
			return err
		}
	}
	if !op.server.queue.push(engineEvent{kind: evCompletion, op: op}) {
		if r.value != nil {
			_ = r.value.Unreference()
		}
		return ErrServerClosed
	}

	if op.state == OpIssued {
		op.state = OpCompletedSync
	} else {
		op.state = OpCompleted
	}
	op.result = r
	return nil
}

// markPending moves an issued op to Pending once the host returned
// ErrAsyncCompletion. A host that already completed it leaves it alone.
func (op *AsyncOp) markPending() {
	op.mu.Lock()
	if op.state == OpIssued {
		op.state = OpPending
	}
	op.mu.Unlock()
}

// cancel marks the op canceled. It returns false when a completion was
// already queued; that completion is then dropped by the engine because
// the op is no longer in the op table.
func (op *AsyncOp) cancel() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	switch op.state {
	case OpIssued, OpPending:
		op.state = OpCanceled
		return true
	default:
		return false
	}
}

// takeResult hands the completion to the engine.
func (op *AsyncOp) takeResult() opResult {
	op.mu.Lock()
	defer op.mu.Unlock()
	r := op.result
	op.result = opResult{}
	return r
}

func (s *Server) lateCompletion(op *AsyncOp, err error) {
	s.metrics.RecordLateCompletion(op.kind.String())
	logger.Debug("Late async completion discarded",
		logger.KeyOpID, op.id,
		logger.KeyOpKind, op.kind.String(),
		logger.KeyChannel, op.PV(),
		logger.KeyError, err)
}
