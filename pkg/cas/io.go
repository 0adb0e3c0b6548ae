package cas

import (
	"errors"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/internal/telemetry"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// issueRead calls the PV's Read for req. It reports true when the host
// postponed the request.
func (s *Server) issueRead(ch *channel, req opRequest) bool {
	t := req.header.DataType
	count := req.header.Count
	if count == 0 {
		count = ch.nativeCount
	}
	proto, err := ca.NewPrototype(s.appTable, t, count)
	if err != nil {
		s.replyRead(ch, req, MapError(err, ca.ECAGetFail), req.header.Count, nil)
		return false
	}
	s.attachEnumStrings(ch.entry, proto)

	ctx, span := telemetry.StartPVSpan(ch.session.ctx, "read", ch.entry.name,
		telemetry.CADBRType(ca.DBRName(t)),
		telemetry.CACount(count))
	hctx := s.newContext(ctx, ch.session, ch, OpRead, req)
	err = s.callHost("read", ch.entry.name, func() error {
		return ch.entry.pv.Read(hctx, proto)
	})
	op := hctx.resolve(err)
	span.SetAttributes(telemetry.CAAsync(op != nil))
	span.End()

	switch {
	case op != nil:
		ch.pendingRead = op
		_ = proto.Unreference()
		return false
	case errors.Is(err, ErrPostponeAsyncIO):
		_ = proto.Unreference()
		return s.postponeIO(ch, req, nil)
	}
	s.completeRead(ch, req, proto, err)
	_ = proto.Unreference()
	return false
}

// attachEnumStrings gives an enum prototype the PV's state strings.
func (s *Server) attachEnumStrings(e *pvEntry, proto *gdd.GDD) {
	tabler, ok := e.pv.(EnumTabler)
	if !ok {
		return
	}
	v := proto.Find(gdd.TagValue)
	if v == nil || v.Type() != gdd.TypeEnum16 || v.EnumTable() != nil {
		return
	}
	_ = s.callHost("enum_strings", e.name, func() error {
		v.SetEnumTable(tabler.EnumStrings())
		return nil
	})
}

// postponeIO puts a request the host refused back at the head of the
// channel's queue. It is retried when an operation on the PV completes, so
// with nothing in flight it fails instead of waiting forever.
func (s *Server) postponeIO(ch *channel, req opRequest, payload []byte) bool {
	if !ch.entry.inFlight() {
		logger.Warn("PV postponed I/O with no operation in flight",
			logger.KeyChannel, ch.entry.name,
			logger.KeyCommand, ca.CommandName(req.header.Command))
		if req.reply == replyWrite || req.reply == replyWriteNotify {
			s.replyWrite(ch, req, ca.ECAPutFail)
		} else {
			s.replyRead(ch, req, ca.ECAGetFail, req.header.Count, nil)
		}
		return false
	}
	ch.requeue(req, payload)
	return true
}

// completeRead answers a read with value, or with err mapped to a status.
func (s *Server) completeRead(ch *channel, req opRequest, value *gdd.GDD, err error) {
	if err != nil {
		s.replyRead(ch, req, MapError(err, ca.ECAGetFail), req.header.Count, nil)
		return
	}
	count := req.header.Count
	if count == 0 {
		count = valueCount(value)
		if count > ch.nativeCount {
			count = ch.nativeCount
		}
	}
	payload, err := ca.EncodeDBR(req.header.DataType, count, value)
	if err != nil {
		s.replyRead(ch, req, MapError(err, ca.ECAGetFail), count, nil)
		return
	}
	s.replyRead(ch, req, ca.ECANormal, count, payload)
}

// replyRead sends the reply req asks for. Failures carry no payload.
func (s *Server) replyRead(ch *channel, req opRequest, status, count uint32, payload []byte) {
	sess := ch.session
	h := req.header
	status, count, payload = sess.fit(h.DataType, status, count, payload)

	switch req.reply {
	case replyReadNotify:
		sess.send(ca.AppendReadReply(nil, ca.CmdReadNotify, h.DataType, count, status, h.Parameter2, payload))
	case replyRead:
		if status != ca.ECANormal {
			sess.sendError(h, ch.cid, status, ca.ECAMessage(status))
			return
		}
		sess.send(ca.AppendReadReply(nil, ca.CmdRead, h.DataType, count, ch.sid, h.Parameter2, payload))
	case replyEvent:
		if m, ok := ch.monitors[req.subid]; ok && !m.primed {
			sess.prime(m, status, count, payload)
		}
	}
}

// issueWrite decodes payload and calls the PV's Write. It reports true
// when the host postponed the request.
func (s *Server) issueWrite(ch *channel, req opRequest, payload []byte) bool {
	h := req.header
	value, err := ca.DecodeDBR(h.DataType, h.Count, payload)
	if err != nil {
		s.replyWrite(ch, req, MapError(err, ca.ECAPutFail))
		return false
	}

	ctx, span := telemetry.StartPVSpan(ch.session.ctx, "write", ch.entry.name,
		telemetry.CADBRType(ca.DBRName(h.DataType)),
		telemetry.CACount(h.Count))
	hctx := s.newContext(ctx, ch.session, ch, OpWrite, req)
	err = s.callHost("write", ch.entry.name, func() error {
		if wn, ok := ch.entry.pv.(WriteNotifier); ok && req.reply == replyWriteNotify {
			return wn.WriteNotify(hctx, value)
		}
		return ch.entry.pv.Write(hctx, value)
	})
	op := hctx.resolve(err)
	span.SetAttributes(telemetry.CAAsync(op != nil))
	span.End()
	_ = value.Unreference()

	switch {
	case op != nil:
		ch.pendingWrite = op
		return false
	case errors.Is(err, ErrPostponeAsyncIO):
		return s.postponeIO(ch, req, payload)
	}
	s.completeWrite(ch, req, err)
	return false
}

func (s *Server) completeWrite(ch *channel, req opRequest, err error) {
	status := ca.ECANormal
	if err != nil {
		status = MapError(err, ca.ECAPutFail)
	}
	s.replyWrite(ch, req, status)
}

func (s *Server) replyWrite(ch *channel, req opRequest, status uint32) {
	sess := ch.session
	h := req.header
	switch req.reply {
	case replyWriteNotify:
		sess.send(ca.AppendWriteNotifyReply(nil, h.DataType, h.Count, status, h.Parameter2))
	case replyWrite:
		if status != ca.ECANormal {
			sess.sendError(h, ch.cid, status, ca.ECAMessage(status))
		}
	}
}

// inFlight reports whether any channel of the PV waits on the host.
func (e *pvEntry) inFlight() bool {
	for ch := range e.channels {
		if ch.pendingRead != nil || ch.pendingWrite != nil {
			return true
		}
	}
	return false
}

// resumePV retries postponed requests of every channel on the PV.
func (s *Server) resumePV(e *pvEntry) {
	for ch := range e.channels {
		s.resumeChannel(ch)
	}
}

// resumeChannel issues postponed requests in order until one has to wait
// again.
func (s *Server) resumeChannel(ch *channel) {
	for len(ch.postponed) > 0 && !ch.destroyed && ch.session.state < StateClosing {
		p := ch.postponed[0]
		write := p.isWrite()
		if (write && ch.pendingWrite != nil) || (!write && ch.pendingRead != nil) {
			return
		}
		ch.postponed[0] = pendingRequest{}
		ch.postponed = ch.postponed[1:]

		var again bool
		if write {
			again = s.issueWrite(ch, p.req, p.payload)
		} else {
			again = s.issueRead(ch, p.req)
		}
		if again {
			return
		}
	}
}
