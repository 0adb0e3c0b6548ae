package cas

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/gdd"
)

const ioTimeout = 3 * time.Second

// testPV is a scalar double PV. Its async flags make Read or Write go
// asynchronous and hand the op to the test through ops.
type testPV struct {
	name string
	srv  *Server

	mu         sync.Mutex
	value      float64
	asyncRead  bool
	asyncWrite bool
	interest   []bool
	destroyed  int

	ops chan *AsyncOp
}

func newTestPV(name string, value float64) *testPV {
	return &testPV{name: name, value: value, ops: make(chan *AsyncOp, 16)}
}

func (p *testPV) Name() string { return p.name }

func (p *testPV) Read(ctx *Context, proto *gdd.GDD) error {
	p.mu.Lock()
	async := p.asyncRead
	p.mu.Unlock()
	if async {
		op, err := ctx.AsyncRead()
		if err != nil {
			return err
		}
		p.ops <- op
		return ErrAsyncCompletion
	}
	v := p.current()
	defer v.Unreference()
	return gdd.SmartCopy(proto, v)
}

func (p *testPV) Write(ctx *Context, value *gdd.GDD) error {
	p.mu.Lock()
	async := p.asyncWrite
	p.mu.Unlock()
	if async {
		op, err := ctx.AsyncWrite()
		if err != nil {
			return err
		}
		p.ops <- op
		return ErrAsyncCompletion
	}
	f, err := value.Float64()
	if err != nil {
		return err
	}
	p.set(f)
	return nil
}

func (p *testPV) BestExternalType() gdd.Type { return gdd.TypeFloat64 }
func (p *testPV) MaxElements() uint32        { return 1 }

func (p *testPV) Interest(on bool) error {
	p.mu.Lock()
	p.interest = append(p.interest, on)
	p.mu.Unlock()
	return nil
}

func (p *testPV) Destroy() {
	p.mu.Lock()
	p.destroyed++
	p.mu.Unlock()
}

func (p *testPV) current() *gdd.GDD {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, _ := gdd.FromValue(gdd.TagValue, p.value)
	return v
}

// set stores f and posts it to value and log monitors.
func (p *testPV) set(f float64) {
	p.mu.Lock()
	p.value = f
	p.mu.Unlock()
	v := p.current()
	defer v.Unreference()
	_ = p.srv.PostEvent(p, EventValue|EventLog, v)
}

func (p *testPV) setAsync(read, write bool) {
	p.mu.Lock()
	p.asyncRead, p.asyncWrite = read, write
	p.mu.Unlock()
}

func (p *testPV) nextOp(t *testing.T) *AsyncOp {
	t.Helper()
	select {
	case op := <-p.ops:
		return op
	case <-time.After(ioTimeout):
		t.Fatal("no async operation issued")
		return nil
	}
}

// testHost serves its PVs. Names starting with slowPrefix make ExistTest
// and Attach go asynchronous and hand the op to the test through ops.
type testHost struct {
	mu  sync.Mutex
	pvs map[string]*testPV

	ops    chan *AsyncOp
	stalls chan OpInfo
}

const slowPrefix = "SLOW:"

func newTestHost(pvs ...*testPV) *testHost {
	h := &testHost{
		pvs:    make(map[string]*testPV),
		ops:    make(chan *AsyncOp, 16),
		stalls: make(chan OpInfo, 16),
	}
	for _, pv := range pvs {
		h.pvs[pv.name] = pv
	}
	return h
}

func (h *testHost) lookup(name string) (*testPV, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pv, ok := h.pvs[name]
	return pv, ok
}

func (h *testHost) ExistTest(ctx *Context, name string) (ExistReturn, error) {
	if strings.HasPrefix(name, slowPrefix) {
		op, err := ctx.AsyncExist()
		if err != nil {
			return ExistReturn{}, err
		}
		h.ops <- op
		return ExistReturn{}, ErrAsyncCompletion
	}
	if _, ok := h.lookup(name); ok {
		return ExistHere, nil
	}
	return ExistNotHere, nil
}

func (h *testHost) Attach(ctx *Context, name string) (PV, error) {
	if strings.HasPrefix(name, slowPrefix) {
		op, err := ctx.AsyncAttach()
		if err != nil {
			return nil, err
		}
		h.ops <- op
		return nil, ErrAsyncCompletion
	}
	pv, ok := h.lookup(name)
	if !ok {
		return nil, ErrNotFound
	}
	return pv, nil
}

func (h *testHost) OpStalled(info OpInfo) {
	h.stalls <- info
}

func (h *testHost) nextOp(t *testing.T) *AsyncOp {
	t.Helper()
	select {
	case op := <-h.ops:
		return op
	case <-time.After(ioTimeout):
		t.Fatal("no async operation issued")
		return nil
	}
}

// startServer runs a server for host on loopback ports picked by the
// kernel, stopping it when the test ends.
func startServer(t *testing.T, host *testHost, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BindAddress = "127.0.0.1"
	cfg.Port = 0
	cfg.AutoBeaconAddrs = false
	cfg.InterfaceCheck = 0
	cfg.ShutdownTimeout = 2 * time.Second
	for _, fn := range mutate {
		fn(&cfg)
	}

	srv, err := NewServer(cfg, host, nil)
	require.NoError(t, err)
	for _, pv := range host.pvs {
		pv.srv = srv
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool {
		return srv.Port() != 0 && srv.udp.Load() != nil
	}, ioTimeout, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * ioTimeout):
			t.Error("server did not stop")
		}
	})
	return srv
}

// testClient speaks CA over one TCP connection.
type testClient struct {
	t    *testing.T
	conn net.Conn
	in   []byte
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", srv.Port()), ioTimeout)
	require.NoError(t, err)
	c := &testClient{t: t, conn: conn}
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

// connect dials and performs the VERSION, CLIENT_NAME and HOST_NAME
// exchange.
func connect(t *testing.T, srv *Server) *testClient {
	t.Helper()
	c := dial(t, srv)
	c.send(ca.Header{Command: ca.CmdVersion, Count: ca.MinorVersion}, nil)
	c.send(ca.Header{Command: ca.CmdClientName}, ca.StringPayload("tester"))
	c.send(ca.Header{Command: ca.CmdHostName}, ca.StringPayload("testhost"))
	c.expect(ca.CmdVersion)
	return c
}

func (c *testClient) send(h ca.Header, payload []byte) {
	c.t.Helper()
	_, err := c.conn.Write(ca.AppendMessage(nil, h, payload))
	require.NoError(c.t, err)
}

func (c *testClient) recv() ca.Message {
	c.t.Helper()
	for {
		if h, n, err := ca.ParseHeader(c.in); err == nil && n+int(h.PayloadSize) <= len(c.in) {
			end := n + int(h.PayloadSize)
			msg := ca.Message{Header: h, Payload: append([]byte(nil), c.in[n:end]...)}
			c.in = c.in[end:]
			return msg
		}
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
		buf := make([]byte, 4096)
		n, err := c.conn.Read(buf)
		require.NoError(c.t, err)
		c.in = append(c.in, buf[:n]...)
	}
}

func (c *testClient) expect(cmd uint16) ca.Message {
	c.t.Helper()
	m := c.recv()
	require.Equal(c.t, ca.CommandName(cmd), ca.CommandName(m.Command))
	return m
}

// expectClosed waits for the server to close the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(ioTimeout)))
	buf := make([]byte, 4096)
	for {
		_, err := c.conn.Read(buf)
		if err == nil {
			continue
		}
		var netErr net.Error
		require.False(c.t, errors.As(err, &netErr) && netErr.Timeout(), "connection still open")
		return
	}
}

// sync round trips an ECHO, so every earlier request has been handled.
func (c *testClient) sync() {
	c.t.Helper()
	c.send(ca.Header{Command: ca.CmdEcho}, nil)
	c.expect(ca.CmdEcho)
}

// createChannel returns the sid of a new channel to name.
func (c *testClient) createChannel(name string, cid uint32) uint32 {
	c.t.Helper()
	c.send(ca.Header{Command: ca.CmdCreateChan, Parameter1: cid, Parameter2: ca.MinorVersion}, ca.StringPayload(name))
	rights := c.expect(ca.CmdAccessRights)
	require.Equal(c.t, cid, rights.Parameter1)
	reply := c.expect(ca.CmdCreateChan)
	require.Equal(c.t, cid, reply.Parameter1)
	return reply.Parameter2
}

func (c *testClient) readNotify(sid, ioid uint32) {
	c.t.Helper()
	c.send(ca.Header{Command: ca.CmdReadNotify, DataType: ca.DBRDouble, Count: 1, Parameter1: sid, Parameter2: ioid}, nil)
}

func (c *testClient) writeNotify(sid, ioid uint32, v float64) {
	c.t.Helper()
	c.send(ca.Header{Command: ca.CmdWriteNotify, DataType: ca.DBRDouble, Count: 1, Parameter1: sid, Parameter2: ioid}, doublePayload(v))
}

func (c *testClient) eventAdd(sid, subid uint32, mask EventMask) {
	c.t.Helper()
	c.send(ca.Header{Command: ca.CmdEventAdd, DataType: ca.DBRDouble, Count: 1, Parameter1: sid, Parameter2: subid},
		ca.EventAddPayload(uint16(mask)))
}

func doublePayload(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func payloadDouble(t *testing.T, m ca.Message) float64 {
	t.Helper()
	require.GreaterOrEqual(t, len(m.Payload), 8)
	return math.Float64frombits(binary.BigEndian.Uint64(m.Payload))
}

func doubleValue(t *testing.T, v float64) *gdd.GDD {
	t.Helper()
	g, err := gdd.FromValue(gdd.TagValue, v)
	require.NoError(t, err)
	return g
}
