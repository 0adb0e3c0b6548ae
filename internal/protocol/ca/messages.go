package ca

import (
	"encoding/binary"
)

// Builders for server to client messages. Each appends one complete,
// padded message to dst and returns the extended slice.

// AppendVersion appends a VERSION message.
func AppendVersion(dst []byte, priority uint16) []byte {
	return AppendMessage(dst, Header{Command: CmdVersion, DataType: priority, Count: MinorVersion}, nil)
}

// AppendEcho appends an ECHO reply.
func AppendEcho(dst []byte) []byte {
	return AppendMessage(dst, Header{Command: CmdEcho}, nil)
}

// AppendSearchReply appends a SEARCH reply. addr is the server's IPv4
// address in host order, or ^uint32(0) to let the client use the
// datagram's source address.
func AppendSearchReply(dst []byte, port uint16, addr, cid uint32) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint16(payload[0:2], MinorVersion)
	return AppendMessage(dst, Header{
		Command:    CmdSearch,
		DataType:   port,
		Parameter1: addr,
		Parameter2: cid,
	}, payload)
}

// AppendNotFound appends a NOT_FOUND reply for a DOREPLY search.
func AppendNotFound(dst []byte, cid uint32) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdNotFound,
		DataType:   SearchDoReply,
		Count:      MinorVersion,
		Parameter1: cid,
		Parameter2: cid,
	}, nil)
}

// AppendAccessRights appends an ACCESS_RIGHTS message.
func AppendAccessRights(dst []byte, cid, rights uint32) []byte {
	return AppendMessage(dst, Header{Command: CmdAccessRights, Parameter1: cid, Parameter2: rights}, nil)
}

// AppendCreateChanReply appends a successful CREATE_CHAN reply.
func AppendCreateChanReply(dst []byte, cid, sid uint32, nativeType uint16, nativeCount uint32) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdCreateChan,
		DataType:   nativeType,
		Count:      nativeCount,
		Parameter1: cid,
		Parameter2: sid,
	}, nil)
}

// AppendCreateChFail appends a CREATE_CH_FAIL message.
func AppendCreateChFail(dst []byte, cid uint32) []byte {
	return AppendMessage(dst, Header{Command: CmdCreateChFail, Parameter1: cid}, nil)
}

// AppendServerDisconn appends a SERVER_DISCONN message for a channel the
// server destroyed.
func AppendServerDisconn(dst []byte, cid uint32) []byte {
	return AppendMessage(dst, Header{Command: CmdServerDisconn, Parameter1: cid}, nil)
}

// AppendClearChannelReply echoes a CLEAR_CHANNEL request.
func AppendClearChannelReply(dst []byte, sid, cid uint32) []byte {
	return AppendMessage(dst, Header{Command: CmdClearChannel, Parameter1: sid, Parameter2: cid}, nil)
}

// AppendReadReply appends a READ_NOTIFY (or legacy READ) reply. status is
// an ECA code for READ_NOTIFY and the sid for READ.
func AppendReadReply(dst []byte, cmd uint16, dbrType uint16, count, status, ioid uint32, payload []byte) []byte {
	return AppendMessage(dst, Header{
		Command:    cmd,
		DataType:   dbrType,
		Count:      count,
		Parameter1: status,
		Parameter2: ioid,
	}, payload)
}

// AppendWriteNotifyReply appends a WRITE_NOTIFY reply.
func AppendWriteNotifyReply(dst []byte, dbrType uint16, count, status, ioid uint32) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdWriteNotify,
		DataType:   dbrType,
		Count:      count,
		Parameter1: status,
		Parameter2: ioid,
	}, nil)
}

// AppendEventAddReply appends a monitor update.
func AppendEventAddReply(dst []byte, dbrType uint16, count, status, subid uint32, payload []byte) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdEventAdd,
		DataType:   dbrType,
		Count:      count,
		Parameter1: status,
		Parameter2: subid,
	}, payload)
}

// AppendEventCancelReply appends the final, empty EVENT_ADD message that
// confirms a subscription was cancelled.
func AppendEventCancelReply(dst []byte, dbrType uint16, sid, subid uint32) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdEventAdd,
		DataType:   dbrType,
		Parameter1: sid,
		Parameter2: subid,
	}, nil)
}

// AppendReadSyncReply echoes a READ_SYNC request.
func AppendReadSyncReply(dst []byte) []byte {
	return AppendMessage(dst, Header{Command: CmdReadSync}, nil)
}

// AppendError appends an ERROR message carrying the offending request
// header and a description.
func AppendError(dst []byte, req Header, cid, eca uint32, text string) []byte {
	req.PayloadSize = 0
	orig := req.Encode()
	payload := make([]byte, 0, len(orig)+len(text)+1)
	payload = append(payload, orig...)
	payload = append(payload, StringPayload(text)...)
	return AppendMessage(dst, Header{Command: CmdError, Parameter1: cid, Parameter2: eca}, payload)
}

// AppendBeacon appends an RSRV_IS_UP beacon. addr is the server's IPv4
// address in host order, or 0 to let receivers use the source address.
func AppendBeacon(dst []byte, port uint16, seq, addr uint32) []byte {
	return AppendMessage(dst, Header{
		Command:    CmdRsrvIsUp,
		DataType:   MinorVersion,
		Count:      uint32(port),
		Parameter1: seq,
		Parameter2: addr,
	}, nil)
}

// EventAddRequest is the decoded payload of an EVENT_ADD request.
type EventAddRequest struct {
	Low  float32
	High float32
	To   float32
	Mask uint16
}

// ParseEventAdd decodes an EVENT_ADD payload.
func ParseEventAdd(payload []byte) (EventAddRequest, error) {
	if len(payload) < EventAddPayloadSize-2 {
		return EventAddRequest{}, ErrShortPayload
	}
	return EventAddRequest{
		Low:  float32FromBits(binary.BigEndian.Uint32(payload[0:4])),
		High: float32FromBits(binary.BigEndian.Uint32(payload[4:8])),
		To:   float32FromBits(binary.BigEndian.Uint32(payload[8:12])),
		Mask: binary.BigEndian.Uint16(payload[12:14]),
	}, nil
}

// EventAddPayload encodes an EVENT_ADD request payload.
func EventAddPayload(mask uint16) []byte {
	p := make([]byte, EventAddPayloadSize)
	binary.BigEndian.PutUint16(p[12:14], mask)
	return p
}
