package cas

import (
	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// monitor is one EVENT_ADD subscription.
type monitor struct {
	subid   uint32
	ch      *channel
	dbrType uint16
	count   uint32 // 0 follows the posted value's length
	mask    EventMask

	// primed is set once the initial event went out. Events posted
	// before that wait in pending, in order. Events posted while the
	// client has events off wait in held, replacing each other.
	primed  bool
	pending []*gdd.GDD
	held    *gdd.GDD
}

func (s *Server) addMonitor(ch *channel, subid uint32, dbrType uint16, count uint32, mask EventMask) *monitor {
	m := &monitor{subid: subid, ch: ch, dbrType: dbrType, count: count, mask: mask}
	ch.monitors[subid] = m
	ch.session.monitors[subid] = m

	e := ch.entry
	e.monitors++
	if e.monitors == 1 {
		_ = s.callHost("interest", e.name, func() error { return e.pv.Interest(true) })
	}
	s.eng.monitors++
	s.metrics.SetMonitors(s.eng.monitors)

	logger.Debug("Monitor added",
		logger.KeyChannel, e.name,
		logger.KeySubID, subid,
		logger.KeyDBRType, ca.DBRName(dbrType),
		logger.KeyMask, s.events.Format(mask))
	return m
}

func (s *Server) removeMonitor(m *monitor) {
	ch := m.ch
	if _, ok := ch.monitors[m.subid]; !ok {
		return
	}
	delete(ch.monitors, m.subid)
	delete(ch.session.monitors, m.subid)
	if m.held != nil {
		_ = m.held.Unreference()
		m.held = nil
	}
	m.releasePending()

	e := ch.entry
	e.monitors--
	if e.monitors == 0 {
		_ = s.callHost("interest", e.name, func() error { return e.pv.Interest(false) })
	}
	s.eng.monitors--
	s.metrics.SetMonitors(s.eng.monitors)
}

// postEvent fans value out to every matching monitor of the PV.
func (s *Server) postEvent(name string, mask EventMask, value *gdd.GDD) {
	e, ok := s.eng.pvs[name]
	if !ok {
		return
	}
	for ch := range e.channels {
		if !ch.rights.CanRead() {
			continue
		}
		for _, m := range ch.monitors {
			if m.mask&mask != 0 {
				ch.session.deliverEvent(m, value)
			}
		}
	}
}

func (sess *streamSession) deliverEvent(m *monitor, value *gdd.GDD) {
	switch {
	case sess.eventsOff:
		sess.hold(m, value)
	case !m.primed:
		sess.queuePending(m, value)
	default:
		sess.sendEvent(m, value)
	}
}

// queuePending keeps value until the initial read completes. At most
// max_event_queue values wait; the oldest goes first.
func (sess *streamSession) queuePending(m *monitor, value *gdd.GDD) {
	if err := value.Reference(); err != nil {
		return
	}
	if limit := sess.server.cfg.MaxEventQueue; len(m.pending) > 0 && len(m.pending) >= limit {
		_ = m.pending[0].Unreference()
		copy(m.pending, m.pending[1:])
		m.pending = m.pending[:len(m.pending)-1]
		sess.server.metrics.RecordEvent("coalesced")
	} else {
		sess.server.metrics.RecordEvent("queued")
	}
	m.pending = append(m.pending, value)
}

func (m *monitor) releasePending() {
	for _, v := range m.pending {
		_ = v.Unreference()
	}
	clear(m.pending)
	m.pending = nil
}

// hold keeps the newest value for m. The monitor keeps its place in the
// held list across replacements.
func (sess *streamSession) hold(m *monitor, value *gdd.GDD) {
	if err := value.Reference(); err != nil {
		return
	}
	if m.held != nil {
		_ = m.held.Unreference()
		sess.server.metrics.RecordEvent("coalesced")
	} else {
		sess.held = append(sess.held, m)
		sess.server.metrics.RecordEvent("queued")
	}
	m.held = value
}

func (sess *streamSession) sendEvent(m *monitor, value *gdd.GDD) {
	count := m.count
	if count == 0 {
		count = valueCount(value)
	}
	if count > m.ch.nativeCount {
		count = m.ch.nativeCount
	}
	status := ca.ECANormal
	payload, err := ca.EncodeDBR(m.dbrType, count, value)
	if err != nil {
		status = MapError(err, ca.ECAGetFail)
		payload = nil
	}
	sess.sendEventReply(m, status, count, payload)
}

func (sess *streamSession) sendEventReply(m *monitor, status, count uint32, payload []byte) {
	status, count, payload = sess.fit(m.dbrType, status, count, payload)
	sess.send(ca.AppendEventAddReply(nil, m.dbrType, count, status, m.subid, payload))
	sess.server.metrics.RecordEvent("sent")
}

// prime delivers the initial event and releases anything posted while
// it was outstanding.
func (sess *streamSession) prime(m *monitor, status, count uint32, payload []byte) {
	sess.sendEventReply(m, status, count, payload)
	m.primed = true
	if sess.eventsOff {
		// only the newest value survives events off
		if n := len(m.pending); n > 0 && m.held == nil {
			sess.hold(m, m.pending[n-1])
		}
		m.releasePending()
		return
	}
	for _, v := range m.pending {
		sess.sendEvent(m, v)
	}
	m.releasePending()
	if m.held != nil {
		v := m.held
		m.held = nil
		sess.sendEvent(m, v)
		_ = v.Unreference()
	}
}

// flushHeld sends held events in the order they were first held.
func (sess *streamSession) flushHeld() {
	for _, m := range sess.held {
		if m.held == nil {
			continue
		}
		if !m.primed {
			// still waiting for the initial read: join the ordered queue
			m.pending = append(m.pending, m.held)
			m.held = nil
			continue
		}
		v := m.held
		m.held = nil
		sess.sendEvent(m, v)
		_ = v.Unreference()
	}
	clear(sess.held)
	sess.held = sess.held[:0]
}

// valueCount is the element count of value's value field.
func valueCount(value *gdd.GDD) uint32 {
	v := value
	if value.IsContainer() {
		if v = value.Find(gdd.TagValue); v == nil {
			return 1
		}
	}
	if n := v.ElementCount(); n > 1 {
		return uint32(n)
	}
	return 1
}
