// Package ca implements the EPICS Channel Access wire protocol, minor
// revision 13: message headers, command and status codes, and the DBR
// structures used to move values between clients and the server.
//
// # Header Structure (16 bytes, big-endian)
//
//	┌────────┬──────┬─────────────┬──────────────────────────────────────┐
//	│ Offset │ Size │ Field       │ Description                          │
//	├────────┼──────┼─────────────┼──────────────────────────────────────┤
//	│   0    │  2   │ Command     │ Command code (CmdVersion, ...)       │
//	│   2    │  2   │ PayloadSize │ Payload bytes, a multiple of 8       │
//	│   4    │  2   │ DataType    │ DBR type, or command specific        │
//	│   6    │  2   │ Count       │ Element count, or command specific   │
//	│   8    │  4   │ Parameter1  │ Command specific (cid, sid, status)  │
//	│  12    │  4   │ Parameter2  │ Command specific (ioid, subid, ...)  │
//	└────────┴──────┴─────────────┴──────────────────────────────────────┘
//
// When PayloadSize is 0xFFFF and Count is 0 the header is extended by two
// 32-bit words carrying the real payload size and element count. Large
// array transfers need the extended form.
//
// # Connection Flow
//
//  1. Client: SEARCH (UDP broadcast) for a PV name
//  2. Server: VERSION + SEARCH reply with the TCP port
//  3. Client: VERSION, CLIENT_NAME, HOST_NAME over TCP
//  4. Client: CREATE_CHAN; Server: ACCESS_RIGHTS + CREATE_CHAN reply
//  5. Client: READ_NOTIFY, WRITE_NOTIFY, EVENT_ADD, ...
//  6. Client: CLEAR_CHANNEL; Server: CLEAR_CHANNEL echo
//
// Servers announce themselves with RSRV_IS_UP beacons on the repeater port.
package ca
