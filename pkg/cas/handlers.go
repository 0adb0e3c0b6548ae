package cas

import (
	"fmt"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/internal/telemetry"
)

func handleVersion(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	if sess.state == StateConnected {
		minor := uint16(h.Count)
		if minor < sess.server.cfg.MinMinorVersion {
			return ca.ECADefunct, fmt.Errorf("%w: 4.%d, need 4.%d", ErrUnsupportedVersion, minor, sess.server.cfg.MinMinorVersion)
		}
		sess.minorVersion = minor
		sess.state = StateVersionNegotiated
		logger.DebugCtx(sess.ctx, "CA client version negotiated",
			logger.KeyClientAddr, sess.addr, logger.KeyMinorVer, minor)
	}

	priority := h.DataType
	if priority > ca.PriorityMax {
		priority = ca.PriorityMax
	}
	sess.priority = priority
	sess.send(ca.AppendVersion(nil, priority))
	return ca.ECANormal, nil
}

func handleEcho(sess *streamSession, _ ca.Message) (uint32, error) {
	sess.send(ca.AppendEcho(nil))
	return ca.ECANormal, nil
}

func handleClientName(sess *streamSession, m ca.Message) (uint32, error) {
	sess.user = ca.CString(m.Payload)
	telemetry.SetAttributes(sess.ctx, telemetry.ClientUser(sess.user))
	sess.refreshAllRights()
	return ca.ECANormal, nil
}

func handleHostName(sess *streamSession, m ca.Message) (uint32, error) {
	sess.host = ca.CString(m.Payload)
	telemetry.SetAttributes(sess.ctx, telemetry.ClientHost(sess.host))
	sess.refreshAllRights()
	return ca.ECANormal, nil
}

// refreshAllRights re-evaluates rights after the client changed identity.
func (sess *streamSession) refreshAllRights() {
	for _, ch := range sess.channels {
		sess.server.refreshAccessRights(ch)
	}
}

func handleStreamSearch(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	sess.server.search(searchRequest{
		name:    ca.CString(m.Payload),
		cid:     h.Parameter1,
		minor:   uint16(h.Count),
		doReply: h.DataType == ca.SearchDoReply,
		session: sess,
	}, nil)
	return ca.ECANormal, nil
}

func handleCreateChan(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	cid := h.Parameter1
	name := ca.CString(m.Payload)
	telemetry.SetAttributes(sess.ctx, telemetry.CACID(cid), telemetry.CAChannel(name))
	if h.Parameter2 != 0 && sess.minorVersion == 0 {
		sess.minorVersion = uint16(h.Parameter2)
	}
	if name == "" || len(name) > ca.MaxPVNameLength {
		sess.send(ca.AppendCreateChFail(nil, cid))
		return ca.ECABadStr, nil
	}
	return sess.server.attach(sess, cid, name), nil
}

func handleClearChannel(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	sid, cid := h.Parameter1, h.Parameter2
	ch, ok := sess.channels[sid]
	if !ok {
		sess.sendError(h, cid, ca.ECABadChID, "bad channel id")
		return ca.ECABadChID, nil
	}
	sess.server.destroyChannel(ch, false)
	sess.send(ca.AppendClearChannelReply(nil, sid, cid))
	return ca.ECANormal, nil
}

func handleRead(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	reply := replyRead
	if h.Command == ca.CmdReadNotify {
		reply = replyReadNotify
	}
	telemetry.SetAttributes(sess.ctx, telemetry.CASID(h.Parameter1), telemetry.CAIOID(h.Parameter2))
	ch, ok := sess.channels[h.Parameter1]
	if !ok {
		sess.sendError(h, h.Parameter1, ca.ECABadChID, "bad channel id")
		return ca.ECABadChID, nil
	}

	status := ca.ECANormal
	switch {
	case !readableDBR(h.DataType):
		status = ca.ECABadType
	case h.Count > ch.nativeCount:
		status = ca.ECABadCount
	case !ch.rights.CanRead():
		status = ca.ECANoRdAccess
	}
	req := opRequest{session: sess, sid: ch.sid, pv: ch.entry.name, header: h, reply: reply}
	if status != ca.ECANormal {
		sess.server.replyRead(ch, req, status, h.Count, nil)
		return status, nil
	}

	if ch.busy(false) {
		ch.postpone(req, nil)
		return ca.ECANormal, nil
	}
	sess.server.issueRead(ch, req)
	return ca.ECANormal, nil
}

func handleReadSync(sess *streamSession, _ ca.Message) (uint32, error) {
	sess.send(ca.AppendReadSyncReply(nil))
	return ca.ECANormal, nil
}

func handleWrite(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	reply := replyWrite
	if h.Command == ca.CmdWriteNotify {
		reply = replyWriteNotify
	}
	telemetry.SetAttributes(sess.ctx, telemetry.CASID(h.Parameter1), telemetry.CAIOID(h.Parameter2))
	ch, ok := sess.channels[h.Parameter1]
	if !ok {
		sess.sendError(h, h.Parameter1, ca.ECABadChID, "bad channel id")
		return ca.ECABadChID, nil
	}

	status := ca.ECANormal
	switch {
	case !ca.ValidDBR(h.DataType):
		status = ca.ECABadType
	case h.Count == 0 || h.Count > ch.nativeCount:
		status = ca.ECABadCount
	case !ch.rights.CanWrite():
		status = ca.ECANoWtAccess
	}
	req := opRequest{session: sess, sid: ch.sid, pv: ch.entry.name, header: h, reply: reply}
	if status != ca.ECANormal {
		sess.server.replyWrite(ch, req, status)
		return status, nil
	}

	if ch.busy(true) {
		ch.postpone(req, m.Payload)
		return ca.ECANormal, nil
	}
	sess.server.issueWrite(ch, req, m.Payload)
	return ca.ECANormal, nil
}

func handleEventAdd(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	sid, subid := h.Parameter1, h.Parameter2
	telemetry.SetAttributes(sess.ctx, telemetry.CASID(sid), telemetry.CASubID(subid))
	ch, ok := sess.channels[sid]
	if !ok {
		sess.sendError(h, sid, ca.ECABadChID, "bad channel id")
		return ca.ECABadChID, nil
	}
	if !readableDBR(h.DataType) {
		sess.sendError(h, ch.cid, ca.ECABadType, "bad DBR type")
		return ca.ECABadType, nil
	}
	ev, err := ca.ParseEventAdd(m.Payload)
	if err != nil || ev.Mask == 0 {
		sess.sendError(h, ch.cid, ca.ECABadMask, "bad event mask")
		return ca.ECABadMask, nil
	}
	if _, dup := sess.monitors[subid]; dup {
		sess.sendError(h, ch.cid, ca.ECABadMonID, "subscription id in use")
		return ca.ECABadMonID, nil
	}

	count := h.Count
	if count > ch.nativeCount {
		count = ch.nativeCount
	}
	mon := sess.server.addMonitor(ch, subid, h.DataType, count, EventMask(ev.Mask))

	if !ch.rights.CanRead() {
		sess.prime(mon, ca.ECANoRdAccess, count, nil)
		return ca.ECANoRdAccess, nil
	}

	h.Count = count
	req := opRequest{session: sess, sid: sid, pv: ch.entry.name, header: h, reply: replyEvent, subid: subid}
	if ch.busy(false) {
		ch.postpone(req, nil)
		return ca.ECANormal, nil
	}
	sess.server.issueRead(ch, req)
	return ca.ECANormal, nil
}

func handleEventCancel(sess *streamSession, m ca.Message) (uint32, error) {
	h := m.Header
	sid, subid := h.Parameter1, h.Parameter2
	mon, ok := sess.monitors[subid]
	if !ok || mon.ch.sid != sid {
		sess.sendError(h, sid, ca.ECABadMonID, "bad subscription id")
		return ca.ECABadMonID, nil
	}
	sess.server.removeMonitor(mon)
	sess.send(ca.AppendEventCancelReply(nil, h.DataType, sid, subid))

	logger.DebugCtx(sess.ctx, "Monitor canceled",
		logger.KeyChannel, mon.ch.entry.name, logger.KeySubID, subid)
	return ca.ECANormal, nil
}

func handleEventsOff(sess *streamSession, _ ca.Message) (uint32, error) {
	sess.eventsOff = true
	return ca.ECANormal, nil
}

func handleEventsOn(sess *streamSession, _ ca.Message) (uint32, error) {
	sess.eventsOff = false
	sess.flushHeld()
	return ca.ECANormal, nil
}

// readableDBR reports whether t can be read or subscribed to.
func readableDBR(t uint16) bool {
	return ca.ValidDBR(t) && t != ca.DBRPutAckT && t != ca.DBRPutAckS
}

// attach resolves name for a CREATE_CHAN request.
func (s *Server) attach(sess *streamSession, cid uint32, name string) uint32 {
	req := opRequest{session: sess, name: name, pv: name, cid: cid}
	ctx, span := telemetry.StartPVSpan(sess.ctx, "attach", name, telemetry.CACID(cid))
	hctx := s.newContext(ctx, sess, nil, OpAttach, req)

	var pv PV
	err := s.callHost("attach", name, func() error {
		var err error
		pv, err = s.host.Attach(hctx, name)
		return err
	})
	span.End()

	if op := hctx.resolve(err); op != nil {
		return ca.ECANormal
	}
	return s.finishAttach(req, pv, err)
}

func (s *Server) finishAttach(req opRequest, pv PV, err error) uint32 {
	sess := req.session
	if sess.state >= StateClosing {
		return ca.ECANormal
	}
	if err == nil && pv == nil {
		err = ErrNotFound
	}
	if err != nil {
		logger.DebugCtx(sess.ctx, "Channel attach failed",
			logger.KeyChannel, req.name, logger.KeyCID, req.cid, logger.KeyError, err)
		sess.send(ca.AppendCreateChFail(nil, req.cid))
		return MapError(err, ca.ECAUknChan)
	}
	s.createChannel(sess, req.cid, pv)
	return ca.ECANormal
}
