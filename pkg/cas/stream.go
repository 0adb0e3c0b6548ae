package cas

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoca/internal/buffer"
	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/adapter"
)

// SessionState is the lifecycle state of a stream client.
type SessionState int

const (
	StateConnected SessionState = iota
	StateVersionNegotiated
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateVersionNegotiated:
		return "version_negotiated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons reported to metrics.
const (
	closeClient   = "client"
	closeProtocol = "protocol"
	closeOverflow = "queue_overflow"
	closeShutdown = "shutdown"
	closeError    = "error"
)

// flushTimeout bounds the final write of a closing session.
const flushTimeout = 2 * time.Second

// streamSession is one TCP client. The reader and writer goroutines touch
// only conn, in, out and the channels below; everything else belongs to
// the engine.
type streamSession struct {
	id     uint64
	uuid   string
	server *Server
	conn   net.Conn
	addr   string
	ctx    context.Context
	since  time.Time

	in  *buffer.InBuf
	out *buffer.OutBuf

	closing    chan struct{}
	closeOnce  sync.Once
	torndown   chan struct{}
	writerDone chan struct{}

	// engine owned
	state        SessionState
	minorVersion uint16
	priority     uint16
	user         string
	host         string
	channels     map[uint32]*channel
	monitors     map[uint32]*monitor
	ops          map[uint64]*AsyncOp
	outQueue     [][]byte
	backlog      []ca.Message
	backlogDone  chan struct{}
	eventsOff    bool
	held         []*monitor
	closeReason  string
}

var _ adapter.ConnectionHandler = (*streamSession)(nil)

// NewConnection implements adapter.ConnectionFactory.
func (s *Server) NewConnection(conn net.Conn) adapter.ConnectionHandler {
	return s.newStreamSession(conn)
}

func (s *Server) newStreamSession(conn net.Conn) *streamSession {
	addr := conn.RemoteAddr().String()
	lc := logger.NewLogContext(addr)
	return &streamSession{
		id:         s.nextSessionID.Add(1),
		uuid:       uuid.NewString(),
		server:     s,
		conn:       conn,
		addr:       addr,
		ctx:        logger.WithContext(context.Background(), lc),
		since:      time.Now(),
		in:         buffer.NewInBuf(s.pool),
		out:        buffer.NewOutBuf(s.pool),
		closing:    make(chan struct{}),
		torndown:   make(chan struct{}),
		writerDone: make(chan struct{}),
		channels:   make(map[uint32]*channel),
		monitors:   make(map[uint32]*monitor),
		ops:        make(map[uint64]*AsyncOp),
	}
}

// Serve reads requests until the client goes away or the session is
// closed by the engine.
func (sess *streamSession) Serve(ctx context.Context) {
	defer sess.handleConnectionClose()

	logger.Debug("New CA client", logger.KeyClientAddr, sess.addr, logger.KeySessionID, sess.uuid)

	if !sess.server.queue.push(engineEvent{kind: evSessionOpen, session: sess}) {
		sess.signalClosing()
		close(sess.writerDone)
		return
	}
	go sess.writeLoop()

	reason := sess.readLoop(ctx)
	if sess.server.queue.push(engineEvent{kind: evSessionClose, session: sess, reason: reason}) {
		<-sess.torndown
	} else {
		sess.signalClosing()
	}
	<-sess.writerDone
}

func (sess *streamSession) readLoop(ctx context.Context) string {
	var batch []ca.Message
	for {
		select {
		case <-ctx.Done():
			return closeShutdown
		case <-sess.closing:
			return closeClient
		default:
		}

		n, err := sess.in.Fill(sess.conn)
		if n > 0 {
			sess.server.metrics.RecordBytes("in", n)
		}
		if err != nil {
			select {
			case <-sess.closing:
				return closeClient
			default:
			}
			return sess.readError(ctx, err)
		}

		batch = batch[:0]
		for {
			msg, ok, err := sess.in.Next()
			if err != nil {
				logger.Warn("Framing error from CA client",
					logger.KeyClientAddr, sess.addr, logger.KeyError, err)
				if len(batch) > 0 {
					sess.submit(ctx, batch)
				}
				return closeProtocol
			}
			if !ok {
				break
			}
			batch = append(batch, msg)
		}
		if len(batch) == 0 {
			continue
		}
		if !sess.submit(ctx, batch) {
			return closeClient
		}
		clear(batch)
		sess.in.Shrink()
	}
}

// submit hands a batch to the engine and waits until it was processed.
// The messages alias the input buffer, so reading resumes only after.
func (sess *streamSession) submit(ctx context.Context, batch []ca.Message) bool {
	done := make(chan struct{})
	if !sess.server.queue.push(engineEvent{kind: evRequests, session: sess, msgs: batch, done: done}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-sess.closing:
		<-done
		return false
	case <-ctx.Done():
		sess.server.queue.push(engineEvent{kind: evSessionClose, session: sess, reason: closeShutdown})
		<-done
		return false
	}
}

func (sess *streamSession) readError(ctx context.Context, err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("CA client closed connection", logger.KeyClientAddr, sess.addr)
	case ctx.Err() != nil:
		return closeShutdown
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("CA client read timeout", logger.KeyClientAddr, sess.addr)
	case errors.Is(err, net.ErrClosed):
	default:
		logger.Debug("Error reading from CA client", logger.KeyClientAddr, sess.addr, logger.KeyError, err)
		return closeError
	}
	return closeClient
}

// writeLoop drains the output buffer onto the connection.
func (sess *streamSession) writeLoop() {
	defer close(sess.writerDone)
	for {
		select {
		case <-sess.out.Ready():
			if !sess.writeOut() {
				return
			}
		case <-sess.closing:
			if err := sess.conn.SetWriteDeadline(time.Now().Add(flushTimeout)); err == nil {
				sess.writeOut()
			}
			_ = sess.conn.Close()
			return
		}
	}
}

func (sess *streamSession) writeOut() bool {
	b := sess.out.Drain()
	if b == nil {
		return true
	}
	n, err := sess.conn.Write(b)
	sess.out.Release(b)
	sess.server.metrics.RecordBytes("out", n)
	if err != nil {
		logger.Debug("Error writing to CA client", logger.KeyClientAddr, sess.addr, logger.KeyError, err)
		sess.server.queue.push(engineEvent{kind: evSessionClose, session: sess, reason: closeError})
		return false
	}
	sess.server.queue.push(engineEvent{kind: evDrained, session: sess})
	return true
}

// signalClosing wakes the reader and bounds a writer blocked on a client
// that stopped reading.
func (sess *streamSession) signalClosing() {
	sess.closeOnce.Do(func() {
		close(sess.closing)
		_ = sess.conn.SetReadDeadline(time.Now())
		_ = sess.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
	})
}

// handleConnectionClose recovers from panics in the reader and releases
// the connection's buffers.
func (sess *streamSession) handleConnectionClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in CA connection handler",
			logger.KeyClientAddr, sess.addr,
			"error", r,
			"stack", string(debug.Stack()))
		sess.signalClosing()
	}
	_ = sess.conn.Close()
	sess.in.Close()
	sess.out.Close()
}

// Engine side.

func (sess *streamSession) onRequests(msgs []ca.Message, done chan struct{}) {
	if sess.state >= StateClosing {
		close(done)
		return
	}
	sess.backlog = append(sess.backlog, msgs...)
	sess.backlogDone = done
	sess.processBacklog()
}

// processBacklog dispatches requests while the client keeps up with its
// replies. Requests left over wait for the writer to drain.
func (sess *streamSession) processBacklog() {
	for len(sess.backlog) > 0 && len(sess.outQueue) == 0 && sess.state < StateClosing {
		m := sess.backlog[0]
		sess.backlog[0] = ca.Message{}
		sess.backlog = sess.backlog[1:]
		sess.dispatch(m)
	}
	if len(sess.backlog) == 0 || sess.state >= StateClosing {
		sess.backlog = nil
		if sess.backlogDone != nil {
			close(sess.backlogDone)
			sess.backlogDone = nil
		}
	}
}

func (sess *streamSession) onDrained() {
	if sess.state >= StateClosing {
		return
	}
	sess.flushQueue()
	sess.processBacklog()
}

// send queues msg for the client. Messages that do not fit the output
// buffer wait in outQueue; a client that lets it grow past the limit is
// disconnected.
func (sess *streamSession) send(msg []byte) {
	if sess.state >= StateClosing {
		return
	}
	if len(sess.outQueue) == 0 {
		err := sess.out.Append(msg)
		switch {
		case err == nil:
			return
		case errors.Is(err, buffer.ErrFull):
			sess.server.metrics.RecordBackpressure()
		case errors.Is(err, buffer.ErrTooLarge):
			logger.Warn("Dropping oversized reply",
				logger.KeyClientAddr, sess.addr, logger.KeySize, len(msg))
			return
		default:
			return
		}
	}
	sess.outQueue = append(sess.outQueue, msg)
	if len(sess.outQueue) > sess.server.cfg.MaxEventQueue {
		logger.Warn("CA client output queue overflow, disconnecting",
			logger.KeyClientAddr, sess.addr,
			"queued", len(sess.outQueue),
			"limit", sess.server.cfg.MaxEventQueue)
		sess.server.teardown(sess, closeOverflow)
	}
}

// flushQueue moves queued messages into the output buffer until it is
// full again.
func (sess *streamSession) flushQueue() {
	i := 0
	for ; i < len(sess.outQueue); i++ {
		if err := sess.out.Append(sess.outQueue[i]); err != nil {
			break
		}
	}
	clear(sess.outQueue[:i])
	sess.outQueue = sess.outQueue[i:]
	if len(sess.outQueue) == 0 {
		sess.outQueue = nil
	}
}

// fit replaces a reply that can never fit a buffer with an ECA_TOLARGE
// status and no payload.
func (sess *streamSession) fit(dbrType uint16, status, count uint32, payload []byte) (uint32, uint32, []byte) {
	size := ca.MessageSize(ca.Header{DataType: dbrType, Count: count}, len(payload))
	if size <= sess.server.pool.LargeSize() {
		return status, count, payload
	}
	return ca.ECATooLarge, 0, nil
}

func (sess *streamSession) sendError(req ca.Header, cid, eca uint32, text string) {
	sess.send(ca.AppendError(nil, req, cid, eca, text))
	logger.DebugCtx(sess.ctx, "CA request failed",
		logger.KeyCommand, ca.CommandName(req.Command),
		logger.KeyECA, ca.ECAName(eca),
		logger.KeyECAMsg, text)
}

// teardown retires everything the session owns and closes it. Channels
// go first, which cancels their operations and monitors.
func (s *Server) teardown(sess *streamSession, reason string) {
	if sess.state >= StateClosing {
		return
	}
	sess.state = StateClosing
	sess.closeReason = reason

	for _, ch := range sess.channels {
		s.destroyChannel(ch, false)
	}
	for _, op := range sess.ops {
		s.cancelOp(op)
	}
	for _, m := range sess.held {
		if m.held != nil {
			_ = m.held.Unreference()
			m.held = nil
		}
	}
	sess.held = nil
	clear(sess.outQueue)
	sess.outQueue = nil
	sess.backlog = nil
	if sess.backlogDone != nil {
		close(sess.backlogDone)
		sess.backlogDone = nil
	}

	sess.signalClosing()
	delete(s.eng.sessions, sess.id)
	sess.state = StateClosed
	close(sess.torndown)

	s.metrics.RecordConnectionClosed(reason)
	logger.Debug("CA client session closed",
		logger.KeyClientAddr, sess.addr,
		logger.KeySessionID, sess.uuid,
		logger.KeyReason, reason,
		logger.KeyUser, sess.user,
		logger.KeyHost, sess.host)
}
