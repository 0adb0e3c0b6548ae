package cas

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/marmos91/dittoca/internal/beacon"
	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/internal/telemetry"
)

// udpReadTimeout bounds each datagram read so shutdown is noticed.
const udpReadTimeout = 500 * time.Millisecond

// maxDatagram is the largest datagram read from the search port.
const maxDatagram = 0xFFFF

// serveUDP reads datagrams from conn and hands them to the engine as
// events of kind.
func (s *Server) serveUDP(ctx context.Context, conn *net.UDPConn, kind eventKind) {
	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			case errors.Is(err, net.ErrClosed) || ctx.Err() != nil:
				return
			default:
				logger.Debug("Error reading CA datagram", logger.KeyError, err)
				continue
			}
		}
		if s.ignore.Contains(from.IP) {
			continue
		}
		ev := engineEvent{kind: kind, from: from, data: bytes.Clone(buf[:n])}
		if !s.queue.push(ev) {
			return
		}
	}
}

// datagramReply collects the replies to one request datagram.
type datagramReply struct {
	to  *net.UDPAddr
	buf []byte
}

func (s *Server) handleDatagram(from *net.UDPAddr, data []byte) {
	msgs, err := ca.ParseMessages(data)
	if err != nil {
		logger.Debug("Malformed CA datagram", logger.KeyClientAddr, from.String(), logger.KeyError, err)
	}

	dr := &datagramReply{to: from}
	for _, m := range msgs {
		h := m.Header
		switch h.Command {
		case ca.CmdVersion:
		case ca.CmdSearch:
			s.search(searchRequest{
				name:    ca.CString(m.Payload),
				cid:     h.Parameter1,
				minor:   uint16(h.Count),
				doReply: h.DataType == ca.SearchDoReply,
				from:    from,
			}, dr)
		case ca.CmdEcho:
			s.addDatagram(dr, ca.AppendEcho(nil))
		case ca.CmdRsrvIsUp:
			s.observeBeacon(from, h)
		default:
			logger.Debug("Ignoring CA datagram command",
				logger.KeyClientAddr, from.String(),
				logger.KeyCommand, ca.CommandName(h.Command))
		}
	}
	s.sendDatagram(dr)
}

// addDatagram appends msg to dr, sending what was collected first when the
// datagram would grow too large.
func (s *Server) addDatagram(dr *datagramReply, msg []byte) {
	if len(dr.buf) > 0 && ca.HeaderSize+len(dr.buf)+len(msg) > ca.MaxUDPMessage {
		s.sendDatagram(dr)
	}
	dr.buf = append(dr.buf, msg...)
}

// sendDatagram sends the collected replies behind a VERSION message.
func (s *Server) sendDatagram(dr *datagramReply) {
	if len(dr.buf) == 0 || dr.to == nil {
		return
	}
	conn := s.udp.Load()
	if conn == nil {
		return
	}
	out := ca.AppendVersion(make([]byte, 0, ca.HeaderSize+len(dr.buf)), ca.PriorityDefault)
	out = append(out, dr.buf...)
	dr.buf = dr.buf[:0]
	if _, err := conn.WriteToUDP(out, dr.to); err != nil {
		logger.Debug("Error sending CA datagram", logger.KeyClientAddr, dr.to.String(), logger.KeyError, err)
	}
}

// searchRequest is a SEARCH from a datagram or a stream client.
type searchRequest struct {
	name    string
	cid     uint32
	minor   uint16
	doReply bool
	session *streamSession
	from    *net.UDPAddr
}

// search asks the host whether it has r.name. Datagram replies go into
// dr; a nil dr with no session sends a datagram of its own.
func (s *Server) search(r searchRequest, dr *datagramReply) {
	if r.name == "" || len(r.name) > ca.MaxPVNameLength {
		return
	}
	req := opRequest{
		session: r.session,
		name:    r.name,
		cid:     r.cid,
		minor:   r.minor,
		replyTo: r.from,
		doReply: r.doReply,
	}
	parent := context.Background()
	if r.session != nil {
		parent = r.session.ctx
	}
	ctx, span := telemetry.StartPVSpan(parent, "exist", r.name, telemetry.CACID(r.cid))
	hctx := s.newContext(ctx, r.session, nil, OpExist, req)

	var ret ExistReturn
	err := s.callHost("exist", r.name, func() error {
		var err error
		ret, err = s.host.ExistTest(hctx, r.name)
		return err
	})
	op := hctx.resolve(err)
	span.SetAttributes(telemetry.CAAsync(op != nil))
	span.End()
	if op != nil {
		return
	}
	s.answerSearch(req, ret, err, dr)
}

// answerSearch replies to a search. Misses are only answered when the
// client asked for it.
func (s *Server) answerSearch(r opRequest, ret ExistReturn, err error, dr *datagramReply) {
	found := err == nil && ret.Status == ExistStatusHere
	s.metrics.RecordSearch(found)

	var msg []byte
	switch {
	case found:
		port := uint16(s.Port())
		addr := ^uint32(0)
		if ret.Addr != nil {
			port = uint16(ret.Addr.Port)
			if ip := ret.Addr.IP.To4(); ip != nil {
				addr = beacon.IPv4ToUint32(ip)
			}
		}
		msg = ca.AppendSearchReply(nil, port, addr, r.cid)
	case r.doReply:
		msg = ca.AppendNotFound(nil, r.cid)
	default:
		return
	}

	switch {
	case r.session != nil:
		r.session.send(msg)
	case dr != nil:
		s.addDatagram(dr, msg)
	default:
		s.sendDatagram(&datagramReply{to: r.replyTo, buf: msg})
	}
}

// handleBeaconDatagram looks at beacons arriving on the beacon port. Nothing
// else sent there is answered.
func (s *Server) handleBeaconDatagram(from *net.UDPAddr, data []byte) {
	msgs, _ := ca.ParseMessages(data)
	for _, m := range msgs {
		if m.Header.Command == ca.CmdRsrvIsUp {
			s.observeBeacon(from, m.Header)
		}
	}
}

// observeBeacon checks another server's beacon for signs of a restart.
func (s *Server) observeBeacon(from *net.UDPAddr, h ca.Header) {
	key := net.JoinHostPort(from.IP.String(), strconv.Itoa(int(h.Count)))
	reason := s.observer.Observe(key, h.Parameter1, time.Now())
	if reason == "" {
		return
	}
	logger.Debug("Beacon anomaly observed", logger.KeyAddress, key, logger.KeyReason, reason, logger.KeyBeaconSeq, h.Parameter1)
	if t := s.beacon.Load(); t != nil {
		t.Anomaly(reason)
	}
}
