package cas

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoca/internal/beacon"
	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/adapter"
	"github.com/marmos91/dittoca/pkg/bufpool"
	"github.com/marmos91/dittoca/pkg/gdd"
	"github.com/marmos91/dittoca/pkg/metrics"
)

// Server is a Channel Access server. It accepts stream clients through
// the embedded BaseAdapter, answers name searches on the UDP port of the
// same number and announces itself with beacons.
//
// One engine goroutine owns every session, channel, monitor and pending
// operation. Host callbacks run on it, so hosts need no locking of their
// own for state they only touch from callbacks.
type Server struct {
	*adapter.BaseAdapter

	cfg     Config
	host    Host
	metrics metrics.CASMetrics
	id      string

	appTable    *gdd.AppTable
	events      *EventRegistry
	pool        *bufpool.Pool
	ignore      *IgnoreList
	observer    *beacon.Observer
	beaconDests []*net.UDPAddr
	serverIP    net.IP

	queue *eventQueue
	eng   engine

	udp       atomic.Pointer[net.UDPConn]
	beacon    atomic.Pointer[beacon.Timer]
	port      atomic.Int32
	startTime time.Time

	nextOpID      atomic.Uint64
	nextSessionID atomic.Uint64

	engineStop chan struct{}
	engineDone chan struct{}
	stopOnce   sync.Once
}

// engine is the state owned by the engine goroutine.
type engine struct {
	sessions map[uint64]*streamSession
	pvs      map[string]*pvEntry
	ops      map[uint64]*AsyncOp
	nextSID  uint32
	channels int
	monitors int
}

var _ adapter.Adapter = (*Server)(nil)

// NewServer creates a server for host. A nil m disables metrics.
func NewServer(cfg Config, host Host, m metrics.CASMetrics) (*Server, error) {
	if host == nil {
		return nil, errors.New("cas: host is required")
	}
	cfg.applyDefaults()
	if m == nil {
		m = noopMetrics{}
	}

	ignore, err := ParseIgnoreList(cfg.IgnoreAddrs)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore address list: %w", err)
	}
	var dests []*net.UDPAddr
	if len(cfg.BeaconAddrs) > 0 {
		dests, err = beacon.ParseAddrList(strings.Join(cfg.BeaconAddrs, " "), cfg.BeaconPort)
		if err != nil {
			return nil, fmt.Errorf("invalid beacon address list: %w", err)
		}
	}
	var serverIP net.IP
	if cfg.ServerAddr != "" {
		if serverIP = net.ParseIP(cfg.ServerAddr).To4(); serverIP == nil {
			return nil, fmt.Errorf("invalid server address %q: not an IPv4 address", cfg.ServerAddr)
		}
	}

	table := gdd.NewAppTable()
	ca.RegisterPrototypes(table)

	s := &Server{
		BaseAdapter: adapter.NewBaseAdapter(cfg.BaseConfig, "CA"),
		cfg:         cfg,
		host:        host,
		metrics:     m,
		id:          uuid.NewString(),
		appTable:    table,
		events:      NewEventRegistry(),
		pool: bufpool.NewPool(&bufpool.Config{
			SmallSize: cfg.BufferSize,
			LargeSize: cfg.MaxArrayBytes,
		}),
		ignore:      ignore,
		observer:    beacon.NewObserver(cfg.ObserverBurst, cfg.ObserverWindow),
		beaconDests: dests,
		serverIP:    serverIP,
		queue:       newEventQueue(),
		eng: engine{
			sessions: make(map[uint64]*streamSession),
			pvs:      make(map[string]*pvEntry),
			ops:      make(map[uint64]*AsyncOp),
		},
		startTime:  time.Now(),
		engineStop: make(chan struct{}),
		engineDone: make(chan struct{}),
	}
	s.BaseAdapter.Metrics = m
	return s, nil
}

// Serve runs the server until ctx is canceled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	port := listenerPort(s.ListenerAddr())
	s.port.Store(int32(port))

	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(s.cfg.BindAddress), Port: port})
	if err != nil {
		_ = s.BaseAdapter.Stop(context.Background())
		return fmt.Errorf("failed to create CA search listener on port %d: %w", port, err)
	}
	s.udp.Store(udp)

	beaconConn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		_ = udp.Close()
		_ = s.BaseAdapter.Stop(context.Background())
		return fmt.Errorf("failed to create beacon socket: %w", err)
	}
	timer := beacon.New(beacon.Config{
		ServerPort:      uint16(port),
		ServerAddr:      s.serverIP,
		Destinations:    s.beaconDests,
		AutoBroadcast:   s.cfg.AutoBeaconAddrs,
		BeaconPort:      s.cfg.BeaconPort,
		MinPeriod:       s.cfg.BeaconMinPeriod,
		MaxPeriod:       s.cfg.BeaconPeriod,
		AnomalyInterval: s.cfg.AnomalyInterval,
		InterfaceCheck:  s.cfg.InterfaceCheck,
	}, beaconConn, s.metrics)
	s.beacon.Store(timer)

	var peers *net.UDPConn
	if s.cfg.ObserveBeacons {
		// a CA repeater usually owns the port already; failing here is not fatal
		peers, err = listenSharedUDP(ctx, net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(s.cfg.BeaconPort)))
		if err != nil {
			logger.Warn("Not observing peer beacons", logger.KeyPort, s.cfg.BeaconPort, logger.KeyError, err)
		}
	}

	go s.runEngine()

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.serveUDP(runCtx, udp, evDatagram)
	}()
	if peers != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveUDP(runCtx, peers, evBeaconDatagram)
		}()
	}
	go func() {
		defer wg.Done()
		if err := timer.Run(runCtx); err != nil {
			logger.Warn("Beacon timer stopped", logger.KeyError, err)
		}
	}()

	logger.Info("CA server started",
		logger.KeyPort, port,
		"server_id", s.id,
		"beacon_destinations", len(timer.Destinations()),
		"ignored_addresses", s.ignore.Len())

	err = s.ServeWithFactory(ctx, s)

	cancel()
	_ = udp.Close()
	_ = beaconConn.Close()
	if peers != nil {
		_ = peers.Close()
	}
	wg.Wait()
	s.stopEngine()

	logger.Info("CA server stopped", "server_id", s.id)
	return err
}

func listenerPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(p)
	return port
}

// Port returns the bound TCP and UDP port once serving, else the
// configured one.
func (s *Server) Port() int {
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.cfg.Port
}

// ID returns the server's instance ID.
func (s *Server) ID() string { return s.id }

// Events returns the registry of named event masks.
func (s *Server) Events() *EventRegistry { return s.events }

// AppTable returns the application tag table the server builds read
// prototypes from.
func (s *Server) AppTable() *gdd.AppTable { return s.appTable }

// PostEvent delivers value to the monitors of pv whose mask intersects
// mask. The server takes its own reference; the caller keeps its own.
// Safe to call from any goroutine.
func (s *Server) PostEvent(pv PV, mask EventMask, value *gdd.GDD) error {
	if value == nil {
		return ErrNilValue
	}
	if mask == 0 {
		return nil
	}
	if err := value.Reference(); err != nil {
		return err
	}
	if !s.queue.push(engineEvent{kind: evPost, pv: pv.Name(), mask: mask, value: value}) {
		_ = value.Unreference()
		return ErrServerClosed
	}
	return nil
}

// PostAccessRightsEvent re-reads the rights of every channel attached to
// the named PV.
func (s *Server) PostAccessRightsEvent(pvName string) error {
	if !s.queue.push(engineEvent{kind: evAccessRights, pv: pvName}) {
		return ErrServerClosed
	}
	return nil
}

// GenerateBeaconAnomaly asks for a beacon period reset. It reports
// whether the anomaly governor allowed it.
func (s *Server) GenerateBeaconAnomaly() bool {
	t := s.beacon.Load()
	if t == nil {
		return false
	}
	return t.Anomaly("host")
}

// call runs fn on the engine goroutine and waits for it.
func (s *Server) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ev := engineEvent{kind: evCall, fn: func() {
		defer close(done)
		fn()
	}}
	if !s.queue.push(ev) {
		return ErrServerClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runEngine is the engine goroutine.
func (s *Server) runEngine() {
	defer close(s.engineDone)

	var sweep <-chan time.Time
	if s.cfg.StallTimeout > 0 {
		interval := s.cfg.StallTimeout / 2
		if interval < 100*time.Millisecond {
			interval = 100 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	var batch []engineEvent
	for {
		select {
		case <-s.queue.signal:
			batch = s.queue.take(batch[:0])
			for i := range batch {
				s.handleEvent(batch[i])
				batch[i] = engineEvent{}
			}

		case now := <-sweep:
			s.sweepStalled(now)

		case <-s.engineStop:
			for _, ev := range s.queue.close() {
				s.handleEvent(ev)
			}
			s.shutdownEngine()
			return
		}
	}
}

func (s *Server) stopEngine() {
	s.stopOnce.Do(func() { close(s.engineStop) })
	<-s.engineDone
}

// shutdownEngine closes every session and cancels what is left.
func (s *Server) shutdownEngine() {
	for _, sess := range s.eng.sessions {
		s.teardown(sess, closeShutdown)
	}
	for _, op := range s.eng.ops {
		s.cancelOp(op)
	}
	for name, e := range s.eng.pvs {
		logger.Debug("PV still attached at shutdown", logger.KeyChannel, name, "channels", len(e.channels))
	}
}

func (s *Server) handleEvent(ev engineEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in CA engine",
				"event", int(ev.kind),
				"error", r,
				"stack", string(debug.Stack()))
			if ev.session != nil {
				s.teardown(ev.session, closeError)
			}
		}
	}()

	switch ev.kind {
	case evSessionOpen:
		s.eng.sessions[ev.session.id] = ev.session
	case evRequests:
		ev.session.onRequests(ev.msgs, ev.done)
	case evDrained:
		ev.session.onDrained()
	case evSessionClose:
		s.teardown(ev.session, ev.reason)
	case evDatagram:
		s.handleDatagram(ev.from, ev.data)
	case evBeaconDatagram:
		s.handleBeaconDatagram(ev.from, ev.data)
	case evCompletion:
		s.handleCompletion(ev.op)
	case evPost:
		s.postEvent(ev.pv, ev.mask, ev.value)
		_ = ev.value.Unreference()
	case evAccessRights:
		s.handleAccessRights(ev)
	case evDestroyChannel:
		if ch := s.lookupHandle(ev.sessionID, ev.sid); ch != nil {
			s.destroyChannel(ch, true)
		}
	case evCall:
		ev.fn()
	}
}

func (s *Server) handleAccessRights(ev engineEvent) {
	if ev.sessionID != 0 {
		if ch := s.lookupHandle(ev.sessionID, ev.sid); ch != nil {
			s.refreshAccessRights(ch)
		}
		return
	}
	e, ok := s.eng.pvs[ev.pv]
	if !ok {
		return
	}
	for ch := range e.channels {
		s.refreshAccessRights(ch)
	}
}

// handleCompletion answers a completed async operation. Completions of
// operations that were canceled meanwhile are dropped.
func (s *Server) handleCompletion(op *AsyncOp) {
	res := op.takeResult()
	if _, ok := s.eng.ops[op.id]; !ok {
		if res.value != nil {
			_ = res.value.Unreference()
		}
		return
	}
	s.forgetOp(op)
	s.metrics.RecordAsyncOp(op.kind.String(), "completed", time.Since(op.issued))

	r := op.req
	switch op.kind {
	case OpRead, OpWrite:
		ch := r.session.channels[r.sid]
		if ch != nil {
			if op.kind == OpRead {
				if ch.pendingRead == op {
					ch.pendingRead = nil
				}
				s.completeRead(ch, r, res.value, res.err)
			} else {
				if ch.pendingWrite == op {
					ch.pendingWrite = nil
				}
				s.completeWrite(ch, r, res.err)
			}
		}
		if res.value != nil {
			_ = res.value.Unreference()
		}
		if ch != nil {
			s.resumePV(ch.entry)
		}
	case OpExist:
		s.answerSearch(r, res.exist, nil, nil)
	case OpAttach:
		s.finishAttach(r, res.attach.PV, res.attach.Err)
	}
}

// forgetOp removes op from the op tables.
func (s *Server) forgetOp(op *AsyncOp) {
	delete(s.eng.ops, op.id)
	if op.req.session != nil {
		delete(op.req.session.ops, op.id)
	}
}

// cancelOp cancels an op whose requester went away.
func (s *Server) cancelOp(op *AsyncOp) {
	if op.cancel() {
		s.metrics.RecordAsyncOp(op.kind.String(), "canceled", time.Since(op.issued))
		logger.Debug("Async operation canceled",
			logger.KeyOpID, op.id,
			logger.KeyOpKind, op.kind.String(),
			logger.KeyChannel, op.PV())
	}
	s.forgetOp(op)
}

// dropOp discards an op the host created but never went asynchronous
// with.
func (s *Server) dropOp(op *AsyncOp) {
	op.cancel()
	s.forgetOp(op)
}

// sweepStalled reports operations pending longer than the stall timeout,
// once each.
func (s *Server) sweepStalled(now time.Time) {
	observer, _ := s.host.(StallObserver)
	for _, op := range s.eng.ops {
		pending := now.Sub(op.issued)
		if op.stalled || pending < s.cfg.StallTimeout || op.State() != OpPending {
			continue
		}
		op.stalled = true
		s.metrics.RecordStalledOp(op.kind.String())

		info := OpInfo{ID: op.id, Kind: op.kind, PV: op.PV(), Pending: pending}
		if op.req.session != nil {
			info.ClientAddr = op.req.session.addr
		} else if op.req.replyTo != nil {
			info.ClientAddr = op.req.replyTo.String()
		}
		logger.Warn("Async operation stalled",
			logger.KeyOpID, op.id,
			logger.KeyOpKind, op.kind.String(),
			logger.KeyChannel, info.PV,
			logger.KeyClientAddr, info.ClientAddr,
			logger.KeyDurationMs, pending.Milliseconds())

		if observer != nil {
			_ = s.callHost("op_stalled", info.PV, func() error {
				observer.OpStalled(info)
				return nil
			})
		}
	}
}

// Stats is a snapshot of the server state.
type Stats struct {
	ServerID   string
	Port       int
	StartTime  time.Time
	Clients    []ClientStats
	PVs        int
	Channels   int
	Monitors   int
	PendingOps int
	QueueDepth int
	Beacon     beacon.Stats
	Buffers    bufpool.Stats
}

// ClientStats describes one stream client.
type ClientStats struct {
	ID           string
	Addr         string
	User         string
	Host         string
	State        string
	MinorVersion uint16
	Priority     uint16
	Channels     int
	Monitors     int
	PendingOps   int
	Queued       int
	Since        time.Time
}

// PVStats describes one attached PV.
type PVStats struct {
	Name        string
	Type        string
	MaxElements uint32
	Channels    int
	Monitors    int
}

// Stats returns a snapshot taken on the engine goroutine.
func (s *Server) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ServerID: s.id, Port: s.Port(), StartTime: s.startTime, Buffers: s.pool.Stats()}
	if t := s.beacon.Load(); t != nil {
		st.Beacon = t.Stats()
	}
	st.QueueDepth = s.queue.Len()

	err := s.call(ctx, func() {
		st.PVs = len(s.eng.pvs)
		st.Channels = s.eng.channels
		st.Monitors = s.eng.monitors
		st.PendingOps = len(s.eng.ops)
		for _, sess := range s.eng.sessions {
			st.Clients = append(st.Clients, ClientStats{
				ID:           sess.uuid,
				Addr:         sess.addr,
				User:         sess.user,
				Host:         sess.host,
				State:        sess.state.String(),
				MinorVersion: sess.minorVersion,
				Priority:     sess.priority,
				Channels:     len(sess.channels),
				Monitors:     len(sess.monitors),
				PendingOps:   len(sess.ops),
				Queued:       len(sess.outQueue),
				Since:        sess.since,
			})
		}
	})
	if err != nil {
		return Stats{}, err
	}
	sort.Slice(st.Clients, func(i, j int) bool { return st.Clients[i].Since.Before(st.Clients[j].Since) })
	return st, nil
}

// PVs lists the attached PVs by name.
func (s *Server) PVs(ctx context.Context) ([]PVStats, error) {
	var out []PVStats
	err := s.call(ctx, func() {
		for name, e := range s.eng.pvs {
			out = append(out, PVStats{
				Name:        name,
				Type:        e.pv.BestExternalType().String(),
				MaxElements: e.pv.MaxElements(),
				Channels:    len(e.channels),
				Monitors:    e.monitors,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
