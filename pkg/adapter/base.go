package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
)

// ConnectionHandler serves one accepted stream connection until it closes
// or ctx is canceled.
type ConnectionHandler interface {
	Serve(ctx context.Context)
}

// ConnectionFactory wraps accepted connections in protocol handlers.
type ConnectionFactory interface {
	NewConnection(conn net.Conn) ConnectionHandler
}

// BaseConfig is the stream listener configuration.
type BaseConfig struct {
	// BindAddress is the interface to listen on. Empty binds all of them.
	BindAddress string

	// Port is the TCP port. Zero picks a free one; see Listen.
	Port int

	// MaxConnections bounds concurrent clients. Zero is unlimited.
	MaxConnections int

	// ShutdownTimeout is how long Stop waits for clients before closing
	// their sockets.
	ShutdownTimeout time.Duration

	// MetricsLogInterval logs the client count periodically. Zero disables.
	MetricsLogInterval time.Duration
}

// MetricsRecorder receives connection lifecycle events. Handlers record
// their own close reasons; the base only reports forced closes.
type MetricsRecorder interface {
	RecordConnectionAccepted()
	RecordConnectionClosed(reason string)
	SetActiveConnections(count int)
}

// BaseAdapter owns a TCP listener and the goroutines of its connections.
// Protocol servers embed it and supply a ConnectionFactory.
type BaseAdapter struct {
	Config BaseConfig

	// Metrics may be nil.
	Metrics MetricsRecorder

	protocol string

	listenerMu sync.RWMutex
	listener   net.Listener
	ready      chan struct{}

	conns    sync.Map // remote address -> net.Conn
	count    atomic.Int32
	wg       sync.WaitGroup
	slots    chan struct{}
	shutdown chan struct{}
	once     sync.Once

	// connCtx is handed to every connection and canceled on shutdown.
	connCtx    context.Context
	cancelConn context.CancelFunc
}

// NewBaseAdapter returns a stopped adapter for protocol, used as the
// log prefix.
func NewBaseAdapter(config BaseConfig, protocol string) *BaseAdapter {
	var slots chan struct{}
	if config.MaxConnections > 0 {
		slots = make(chan struct{}, config.MaxConnections)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseAdapter{
		Config:     config,
		protocol:   protocol,
		ready:      make(chan struct{}),
		slots:      slots,
		shutdown:   make(chan struct{}),
		connCtx:    ctx,
		cancelConn: cancel,
	}
}

// Listen binds the listener. Servers that share their port with a UDP
// socket call it first to learn the port when Config.Port is zero;
// ServeWithFactory calls it otherwise.
func (b *BaseAdapter) Listen() error {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	if b.listener != nil {
		return nil
	}
	select {
	case <-b.shutdown:
		return fmt.Errorf("%s listener: %w", b.protocol, net.ErrClosed)
	default:
	}

	addr := net.JoinHostPort(b.Config.BindAddress, strconv.Itoa(b.Config.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create %s listener on port %d: %w", b.protocol, b.Config.Port, err)
	}
	b.listener = l
	close(b.ready)

	logger.Info(b.protocol+" server listening", "address", l.Addr().String(),
		"max_connections", b.Config.MaxConnections)
	return nil
}

// ServeWithFactory accepts connections until ctx is canceled or Stop is
// called, then waits for the open ones as Stop does.
func (b *BaseAdapter) ServeWithFactory(ctx context.Context, factory ConnectionFactory) error {
	if err := b.Listen(); err != nil {
		return err
	}
	b.listenerMu.RLock()
	l := b.listener
	b.listenerMu.RUnlock()

	go func() {
		select {
		case <-ctx.Done():
			b.initiateShutdown()
		case <-b.shutdown:
		}
	}()
	if b.Config.MetricsLogInterval > 0 {
		go b.logMetrics(ctx)
	}

	for {
		if b.slots != nil {
			select {
			case b.slots <- struct{}{}:
			case <-b.shutdown:
				return b.drain(nil)
			}
		}

		conn, err := l.Accept()
		if err != nil {
			b.release()
			select {
			case <-b.shutdown:
				return b.drain(nil)
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.Debug("Error accepting "+b.protocol+" connection", logger.KeyError, err)
			continue
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		b.track(conn, factory.NewConnection(conn))
	}
}

func (b *BaseAdapter) track(conn net.Conn, h ConnectionHandler) {
	addr := conn.RemoteAddr().String()
	b.conns.Store(addr, conn)
	b.wg.Add(1)
	n := b.count.Add(1)
	if b.Metrics != nil {
		b.Metrics.RecordConnectionAccepted()
		b.Metrics.SetActiveConnections(int(n))
	}
	logger.Debug(b.protocol+" connection accepted", logger.KeyClientAddr, addr, "active", n)

	go func() {
		defer func() {
			b.conns.Delete(addr)
			n := b.count.Add(-1)
			b.release()
			if b.Metrics != nil {
				b.Metrics.SetActiveConnections(int(n))
			}
			b.wg.Done()
			logger.Debug(b.protocol+" connection closed", logger.KeyClientAddr, addr, "active", n)
		}()
		h.Serve(b.connCtx)
	}()
}

func (b *BaseAdapter) release() {
	if b.slots != nil {
		<-b.slots
	}
}

// initiateShutdown closes the listener, cancels the connection context
// and nudges blocked readers with a short deadline.
func (b *BaseAdapter) initiateShutdown() {
	b.once.Do(func() {
		close(b.shutdown)

		b.listenerMu.Lock()
		if b.listener != nil {
			_ = b.listener.Close()
		}
		b.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		b.conns.Range(func(_, v any) bool {
			_ = v.(net.Conn).SetReadDeadline(deadline)
			return true
		})
		b.cancelConn()
		logger.Debug(b.protocol+" shutdown initiated", "active", b.count.Load())
	})
}

// drain waits for open connections. A nil ctx waits up to
// Config.ShutdownTimeout and then force closes the rest.
func (b *BaseAdapter) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var expired <-chan time.Time
	var canceled <-chan struct{}
	if ctx != nil {
		canceled = ctx.Done()
	} else if b.Config.ShutdownTimeout > 0 {
		t := time.NewTimer(b.Config.ShutdownTimeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-done:
		logger.Info(b.protocol + " server drained")
		return nil
	case <-canceled:
		logger.Warn(b.protocol+" shutdown canceled", "active", b.count.Load(), logger.KeyError, ctx.Err())
		return ctx.Err()
	case <-expired:
		n := b.forceClose()
		logger.Warn(b.protocol+" shutdown timeout exceeded", "forced", n, "timeout", b.Config.ShutdownTimeout)
		return fmt.Errorf("%s shutdown timeout: %d connections force-closed", b.protocol, n)
	}
}

func (b *BaseAdapter) forceClose() int {
	closed := 0
	b.conns.Range(func(_, v any) bool {
		if err := v.(net.Conn).Close(); err == nil {
			closed++
			if b.Metrics != nil {
				b.Metrics.RecordConnectionClosed("forced")
			}
		}
		return true
	})
	return closed
}

// Stop shuts the listener down and waits for connections until ctx is
// done. A nil ctx uses Config.ShutdownTimeout. Stop may be called more
// than once and concurrently with ServeWithFactory.
func (b *BaseAdapter) Stop(ctx context.Context) error {
	b.initiateShutdown()
	return b.drain(ctx)
}

func (b *BaseAdapter) logMetrics(ctx context.Context) {
	t := time.NewTicker(b.Config.MetricsLogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.shutdown:
			return
		case <-t.C:
			logger.Info(b.protocol+" connections", "active", b.count.Load())
		}
	}
}

// ActiveConnections returns the number of open connections.
func (b *BaseAdapter) ActiveConnections() int {
	return int(b.count.Load())
}

// ListenerAddr blocks until Listen succeeded and returns the bound
// address, or "" once the adapter shut down without listening.
func (b *BaseAdapter) ListenerAddr() string {
	select {
	case <-b.ready:
	case <-b.shutdown:
	}
	b.listenerMu.RLock()
	defer b.listenerMu.RUnlock()
	if b.listener == nil {
		return ""
	}
	return b.listener.Addr().String()
}

// Port returns the configured port.
func (b *BaseAdapter) Port() int {
	return b.Config.Port
}

// Protocol returns the protocol name.
func (b *BaseAdapter) Protocol() string {
	return b.protocol
}

// MapError maps nothing; protocol servers override it.
func (b *BaseAdapter) MapError(error) ProtocolError {
	return nil
}
