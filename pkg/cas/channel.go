package cas

import (
	"bytes"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
)

// pvEntry is a PV with at least one channel attached.
type pvEntry struct {
	name     string
	pv       PV
	channels map[*channel]struct{}
	monitors int
}

// channel binds one client channel to a PV. Owned by its session.
type channel struct {
	sid         uint32
	cid         uint32
	session     *streamSession
	entry       *pvEntry
	rights      AccessRights
	nativeType  uint16
	nativeCount uint32
	handle      *ChannelHandle
	destroyed   bool

	pendingRead  *AsyncOp
	pendingWrite *AsyncOp
	postponed    []pendingRequest
	monitors     map[uint32]*monitor
}

// pendingRequest is a read or write waiting for the channel or PV.
type pendingRequest struct {
	req     opRequest
	payload []byte
}

func (r pendingRequest) isWrite() bool {
	return r.req.reply == replyWrite || r.req.reply == replyWriteNotify
}

func (ch *channel) info() ChannelInfo {
	return ChannelInfo{
		Name:       ch.entry.name,
		User:       ch.session.user,
		Host:       ch.session.host,
		ClientAddr: ch.session.addr,
		CID:        ch.cid,
		SID:        ch.sid,
		Handle:     ch.handle,
	}
}

// busy reports whether req must wait behind earlier requests.
func (ch *channel) busy(write bool) bool {
	if len(ch.postponed) > 0 {
		return true
	}
	if write {
		return ch.pendingWrite != nil
	}
	return ch.pendingRead != nil
}

// postpone queues a request behind the channel's pending operations. The
// payload is copied because it aliases the input buffer.
func (ch *channel) postpone(req opRequest, payload []byte) {
	ch.postponed = append(ch.postponed, pendingRequest{req: req, payload: bytes.Clone(payload)})
}

// requeue puts a request the host postponed back at the head.
func (ch *channel) requeue(req opRequest, payload []byte) {
	p := pendingRequest{req: req, payload: bytes.Clone(payload)}
	ch.postponed = append([]pendingRequest{p}, ch.postponed...)
}

// entryFor returns the table entry of pv, creating it.
func (s *Server) entryFor(pv PV) *pvEntry {
	name := pv.Name()
	if e, ok := s.eng.pvs[name]; ok {
		return e
	}
	e := &pvEntry{name: name, pv: pv, channels: make(map[*channel]struct{})}
	s.eng.pvs[name] = e
	return e
}

// releaseEntry drops e once no channel is attached.
func (s *Server) releaseEntry(e *pvEntry) {
	if len(e.channels) > 0 {
		return
	}
	delete(s.eng.pvs, e.name)
	if d, ok := e.pv.(Destroyer); ok {
		s.callHost("destroy", e.name, func() error {
			d.Destroy()
			return nil
		})
	}
	logger.Debug("PV released", logger.KeyChannel, e.name)
}

// createChannel binds cid to pv for sess and answers the client.
func (s *Server) createChannel(sess *streamSession, cid uint32, pv PV) {
	if sess.state >= StateClosing {
		return
	}
	e := s.entryFor(pv)
	s.eng.nextSID++
	ch := &channel{
		sid:         s.eng.nextSID,
		cid:         cid,
		session:     sess,
		entry:       e,
		rights:      AccessReadWrite,
		nativeType:  ca.NativeDBR(pv.BestExternalType()),
		nativeCount: pv.MaxElements(),
		monitors:    make(map[uint32]*monitor),
	}
	if ch.nativeCount == 0 {
		ch.nativeCount = 1
	}
	ch.handle = &ChannelHandle{server: s, session: sess.id, sid: ch.sid, name: e.name}

	if cc, ok := pv.(ChannelCreator); ok {
		hctx := s.newContext(sess.ctx, sess, nil, 0, opRequest{session: sess, pv: e.name})
		var rights AccessRights
		err := s.callHost("create_channel", e.name, func() error {
			var err error
			rights, err = cc.CreateChannel(hctx, ch.info())
			return err
		})
		hctx.done = true
		if err != nil {
			logger.Debug("Channel creation refused",
				logger.KeyChannel, e.name, logger.KeyCID, cid, logger.KeyError, err)
			s.releaseEntry(e)
			sess.send(ca.AppendCreateChFail(nil, cid))
			return
		}
		ch.rights = rights
	}

	e.channels[ch] = struct{}{}
	sess.channels[ch.sid] = ch
	s.eng.channels++
	s.metrics.SetChannels(s.eng.channels)

	sess.send(ca.AppendAccessRights(nil, cid, uint32(ch.rights)))
	sess.send(ca.AppendCreateChanReply(nil, cid, ch.sid, ch.nativeType, ch.nativeCount))

	logger.Debug("Channel created",
		logger.KeyChannel, e.name,
		logger.KeyCID, cid,
		logger.KeySID, ch.sid,
		logger.KeyRights, ch.rights.String(),
		logger.KeyClientAddr, sess.addr)
}

// destroyChannel retires ch: monitors and pending operations first, then
// the PV attachment. notify tells the client with SERVER_DISCONN.
func (s *Server) destroyChannel(ch *channel, notify bool) {
	if ch.destroyed {
		return
	}
	ch.destroyed = true
	sess := ch.session

	for _, m := range ch.monitors {
		s.removeMonitor(m)
	}
	for _, op := range sess.ops {
		if op.req.sid == ch.sid && (op.kind == OpRead || op.kind == OpWrite) {
			s.cancelOp(op)
		}
	}
	ch.pendingRead, ch.pendingWrite = nil, nil
	ch.postponed = nil

	delete(sess.channels, ch.sid)
	e := ch.entry
	delete(e.channels, ch)
	s.eng.channels--
	s.metrics.SetChannels(s.eng.channels)

	if cd, ok := e.pv.(ChannelDestroyer); ok {
		info := ch.info()
		s.callHost("channel_destroyed", e.name, func() error {
			cd.ChannelDestroyed(info)
			return nil
		})
	}
	s.releaseEntry(e)

	if notify {
		sess.send(ca.AppendServerDisconn(nil, ch.cid))
	}
	logger.Debug("Channel destroyed",
		logger.KeyChannel, e.name,
		logger.KeySID, ch.sid,
		logger.KeyClientAddr, sess.addr)
}

// refreshAccessRights re-reads rights and tells the client when they
// changed.
func (s *Server) refreshAccessRights(ch *channel) {
	r, ok := ch.entry.pv.(AccessRightsReader)
	if !ok {
		return
	}
	var rights AccessRights
	if err := s.callHost("access_rights", ch.entry.name, func() error {
		rights = r.AccessRights(ch.info())
		return nil
	}); err != nil {
		return
	}
	if rights == ch.rights {
		return
	}
	ch.rights = rights
	ch.session.send(ca.AppendAccessRights(nil, ch.cid, uint32(rights)))
}

// ChannelHandle lets a host act on one channel from any goroutine.
type ChannelHandle struct {
	server  *Server
	session uint64
	sid     uint32
	name    string
}

// SID returns the channel's server ID.
func (h *ChannelHandle) SID() uint32 { return h.sid }

// PV returns the name of the attached PV.
func (h *ChannelHandle) PV() string { return h.name }

// PostAccessRightsEvent re-reads the channel's rights through the PV's
// AccessRightsReader and sends ACCESS_RIGHTS when they changed.
func (h *ChannelHandle) PostAccessRightsEvent() error {
	if !h.server.queue.push(engineEvent{kind: evAccessRights, sessionID: h.session, sid: h.sid}) {
		return ErrServerClosed
	}
	return nil
}

// Destroy removes the channel and sends SERVER_DISCONN to its client.
func (h *ChannelHandle) Destroy() error {
	if !h.server.queue.push(engineEvent{kind: evDestroyChannel, sessionID: h.session, sid: h.sid}) {
		return ErrServerClosed
	}
	return nil
}

func (s *Server) lookupHandle(sessionID uint64, sid uint32) *channel {
	sess, ok := s.eng.sessions[sessionID]
	if !ok {
		return nil
	}
	return sess.channels[sid]
}
