package ca

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortHeader means more bytes are needed to parse a header.
	ErrShortHeader = errors.New("ca: short header")
	// ErrShortPayload means the payload is smaller than its contents require.
	ErrShortPayload = errors.New("ca: short payload")
	// ErrBadPayloadSize means a payload size is not a multiple of 8 or is
	// otherwise inconsistent with the command.
	ErrBadPayloadSize = errors.New("ca: bad payload size")
)

// Header is a decoded message header. PayloadSize and Count are 32 bits
// wide so extended headers decode into the same structure.
type Header struct {
	Command     uint16
	PayloadSize uint32
	DataType    uint16
	Count       uint32
	Parameter1  uint32
	Parameter2  uint32
}

// Extended reports whether h must be encoded with the extended header.
func (h Header) Extended() bool {
	return h.PayloadSize >= extendedMarker || h.Count > 0xFFFF
}

// EncodedSize returns the number of header bytes Encode will produce.
func (h Header) EncodedSize() int {
	if h.Extended() {
		return ExtendedHeaderSize
	}
	return HeaderSize
}

// AppendTo appends the wire form of h to dst.
func (h Header) AppendTo(dst []byte) []byte {
	var buf [ExtendedHeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Command)
	binary.BigEndian.PutUint16(buf[4:6], h.DataType)
	binary.BigEndian.PutUint32(buf[8:12], h.Parameter1)
	binary.BigEndian.PutUint32(buf[12:16], h.Parameter2)

	if !h.Extended() {
		binary.BigEndian.PutUint16(buf[2:4], uint16(h.PayloadSize))
		binary.BigEndian.PutUint16(buf[6:8], uint16(h.Count))
		return append(dst, buf[:HeaderSize]...)
	}

	binary.BigEndian.PutUint16(buf[2:4], extendedMarker)
	binary.BigEndian.PutUint16(buf[6:8], 0)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadSize)
	binary.BigEndian.PutUint32(buf[20:24], h.Count)
	return append(dst, buf[:]...)
}

// Encode returns the wire form of h.
func (h Header) Encode() []byte {
	return h.AppendTo(make([]byte, 0, h.EncodedSize()))
}

// ParseHeader decodes the header at the start of data and returns it with
// the number of bytes consumed. ErrShortHeader means data does not yet
// hold a complete header.
func ParseHeader(data []byte) (Header, int, error) {
	if len(data) < HeaderSize {
		return Header{}, 0, ErrShortHeader
	}

	h := Header{
		Command:     binary.BigEndian.Uint16(data[0:2]),
		PayloadSize: uint32(binary.BigEndian.Uint16(data[2:4])),
		DataType:    binary.BigEndian.Uint16(data[4:6]),
		Count:       uint32(binary.BigEndian.Uint16(data[6:8])),
		Parameter1:  binary.BigEndian.Uint32(data[8:12]),
		Parameter2:  binary.BigEndian.Uint32(data[12:16]),
	}

	if h.PayloadSize != extendedMarker || h.Count != 0 {
		return h, HeaderSize, nil
	}

	if len(data) < ExtendedHeaderSize {
		return Header{}, 0, ErrShortHeader
	}
	h.PayloadSize = binary.BigEndian.Uint32(data[16:20])
	h.Count = binary.BigEndian.Uint32(data[20:24])
	return h, ExtendedHeaderSize, nil
}

func (h Header) String() string {
	return fmt.Sprintf("%s(size=%d type=%d count=%d p1=%d p2=%d)",
		CommandName(h.Command), h.PayloadSize, h.DataType, h.Count, h.Parameter1, h.Parameter2)
}

// Message is a header with its payload.
type Message struct {
	Header
	Payload []byte
}

// PaddedSize rounds n up to the 8 byte payload alignment.
func PaddedSize(n int) int {
	return (n + 7) &^ 7
}

// AppendMessage appends a message with payload padded to 8 bytes. The
// header's PayloadSize is set from the padded payload length.
func AppendMessage(dst []byte, h Header, payload []byte) []byte {
	padded := PaddedSize(len(payload))
	h.PayloadSize = uint32(padded)
	dst = h.AppendTo(dst)
	dst = append(dst, payload...)
	for i := len(payload); i < padded; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// MessageSize returns the encoded size of a message carrying n payload bytes.
func MessageSize(h Header, n int) int {
	h.PayloadSize = uint32(PaddedSize(n))
	return h.EncodedSize() + int(h.PayloadSize)
}

// ParseMessages splits a datagram into complete messages. A truncated
// trailing message is an error since datagrams never span packets.
func ParseMessages(data []byte) ([]Message, error) {
	var msgs []Message
	for len(data) > 0 {
		h, n, err := ParseHeader(data)
		if err != nil {
			return msgs, err
		}
		end := n + int(h.PayloadSize)
		if end > len(data) || end < n {
			return msgs, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortPayload, CommandName(h.Command), end, len(data))
		}
		msgs = append(msgs, Message{Header: h, Payload: data[n:end]})
		data = data[end:]
	}
	return msgs, nil
}
