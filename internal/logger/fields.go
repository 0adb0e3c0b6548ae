package logger

import "log/slog"

// Field keys shared by every log line, so lines can be queried by
// channel, client and command.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyCommand  = "command" // CA command name
	KeyECA      = "eca"     // ECA status code
	KeyECAMsg   = "eca_msg"
	KeyMinorVer = "minor_ver"
	KeyDBRType  = "dbr_type"
	KeyMask     = "mask"

	KeyChannel = "channel" // PV name
	KeyCID     = "cid"
	KeySID     = "sid"
	KeySubID   = "subid"
	KeyOpID    = "op_id"
	KeyOpKind  = "op_kind"
	KeyRights  = "rights"

	KeyClientAddr = "client_addr"
	KeyUser       = "user"
	KeyHost       = "host"
	KeySessionID  = "session_id"

	KeyBeaconSeq    = "beacon_seq"
	KeyBeaconPeriod = "beacon_period"
	KeyReason       = "reason"

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeySize       = "size"
	KeyPath       = "path"
	KeyAddress    = "address"
	KeyPort       = "port"
)

// Err is an error attribute. A nil error yields an empty attribute, which
// handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
