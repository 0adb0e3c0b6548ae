package ca

// Protocol revision and default ports.
const (
	MajorVersion = 4
	MinorVersion = 13

	DefaultServerPort = 5064
	DefaultBeaconPort = 5065

	// HeaderSize is the size of the standard message header.
	HeaderSize = 16
	// ExtendedHeaderSize is the size of a header carrying 32-bit size and count.
	ExtendedHeaderSize = 24

	// MaxTCPMessage is the default stream buffer size. Messages larger
	// than this need a large array buffer.
	MaxTCPMessage = 16384
	// MaxUDPMessage bounds a search datagram.
	MaxUDPMessage = 1472

	// MaxPVNameLength bounds PV names in SEARCH and CREATE_CHAN.
	MaxPVNameLength = 255

	// extendedMarker in PayloadSize flags an extended header.
	extendedMarker = 0xFFFF
)

// Command codes.
const (
	CmdVersion          uint16 = 0
	CmdEventAdd         uint16 = 1
	CmdEventCancel      uint16 = 2
	CmdRead             uint16 = 3
	CmdWrite            uint16 = 4
	CmdSnapshot         uint16 = 5
	CmdSearch           uint16 = 6
	CmdBuild            uint16 = 7
	CmdEventsOff        uint16 = 8
	CmdEventsOn         uint16 = 9
	CmdReadSync         uint16 = 10
	CmdError            uint16 = 11
	CmdClearChannel     uint16 = 12
	CmdRsrvIsUp         uint16 = 13
	CmdNotFound         uint16 = 14
	CmdReadNotify       uint16 = 15
	CmdReadBuild        uint16 = 16
	CmdRepeaterConfirm  uint16 = 17
	CmdCreateChan       uint16 = 18
	CmdWriteNotify      uint16 = 19
	CmdClientName       uint16 = 20
	CmdHostName         uint16 = 21
	CmdAccessRights     uint16 = 22
	CmdEcho             uint16 = 23
	CmdRepeaterRegister uint16 = 24
	CmdSignal           uint16 = 25
	CmdCreateChFail     uint16 = 26
	CmdServerDisconn    uint16 = 27

	lastCommand = CmdServerDisconn
)

var commandNames = [...]string{
	CmdVersion:          "VERSION",
	CmdEventAdd:         "EVENT_ADD",
	CmdEventCancel:      "EVENT_CANCEL",
	CmdRead:             "READ",
	CmdWrite:            "WRITE",
	CmdSnapshot:         "SNAPSHOT",
	CmdSearch:           "SEARCH",
	CmdBuild:            "BUILD",
	CmdEventsOff:        "EVENTS_OFF",
	CmdEventsOn:         "EVENTS_ON",
	CmdReadSync:         "READ_SYNC",
	CmdError:            "ERROR",
	CmdClearChannel:     "CLEAR_CHANNEL",
	CmdRsrvIsUp:         "RSRV_IS_UP",
	CmdNotFound:         "NOT_FOUND",
	CmdReadNotify:       "READ_NOTIFY",
	CmdReadBuild:        "READ_BUILD",
	CmdRepeaterConfirm:  "REPEATER_CONFIRM",
	CmdCreateChan:       "CREATE_CHAN",
	CmdWriteNotify:      "WRITE_NOTIFY",
	CmdClientName:       "CLIENT_NAME",
	CmdHostName:         "HOST_NAME",
	CmdAccessRights:     "ACCESS_RIGHTS",
	CmdEcho:             "ECHO",
	CmdRepeaterRegister: "REPEATER_REGISTER",
	CmdSignal:           "SIGNAL",
	CmdCreateChFail:     "CREATE_CH_FAIL",
	CmdServerDisconn:    "SERVER_DISCONN",
}

// CommandName returns the protocol name of cmd.
func CommandName(cmd uint16) string {
	if int(cmd) < len(commandNames) {
		return commandNames[cmd]
	}
	return "UNKNOWN"
}

// IsKnownCommand reports whether cmd is defined by the protocol.
func IsKnownCommand(cmd uint16) bool {
	return cmd <= lastCommand
}

// SEARCH reply flags carried in DataType.
const (
	SearchDoReply   uint16 = 10
	SearchDontReply uint16 = 5
)

// Access rights bits carried in ACCESS_RIGHTS Parameter2.
const (
	AccessRead  uint32 = 1 << 0
	AccessWrite uint32 = 1 << 1
)

// Event selection mask bits carried in EVENT_ADD payloads.
const (
	MaskValue    uint16 = 1 << 0
	MaskLog      uint16 = 1 << 1
	MaskAlarm    uint16 = 1 << 2
	MaskProperty uint16 = 1 << 3
)

// EventAddPayloadSize is the size of the EVENT_ADD request payload:
// three deprecated float32 fields, the mask and two pad bytes.
const EventAddPayloadSize = 16

// Priority bounds carried in VERSION DataType.
const (
	PriorityMin     = 0
	PriorityMax     = 99
	PriorityDefault = PriorityMin
)

// Alarm severities.
const (
	SeverityNone    uint16 = 0
	SeverityMinor   uint16 = 1
	SeverityMajor   uint16 = 2
	SeverityInvalid uint16 = 3
)

// Alarm status conditions.
const (
	AlarmNone uint16 = iota
	AlarmRead
	AlarmWrite
	AlarmHiHi
	AlarmHigh
	AlarmLoLo
	AlarmLow
	AlarmState
	AlarmCOS
	AlarmComm
	AlarmTimeout
	AlarmHWLimit
	AlarmCalc
	AlarmScan
	AlarmLink
	AlarmSoft
	AlarmBadSub
	AlarmUDF
	AlarmDisable
	AlarmSimm
	AlarmReadAccess
	AlarmWriteAccess
)

var alarmStatusNames = [...]string{
	"NO_ALARM", "READ", "WRITE", "HIHI", "HIGH", "LOLO", "LOW", "STATE", "COS",
	"COMM", "TIMEOUT", "HWLIMIT", "CALC", "SCAN", "LINK", "SOFT", "BAD_SUB",
	"UDF", "DISABLE", "SIMM", "READ_ACCESS", "WRITE_ACCESS",
}

var severityNames = [...]string{"NO_ALARM", "MINOR", "MAJOR", "INVALID"}

// AlarmStatusName returns the name of an alarm status condition.
func AlarmStatusName(s uint16) string {
	if int(s) < len(alarmStatusNames) {
		return alarmStatusNames[s]
	}
	return "UNKNOWN"
}

// SeverityName returns the name of an alarm severity.
func SeverityName(s uint16) string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// ParseAlarmStatus maps a status name back to its code.
func ParseAlarmStatus(name string) (uint16, bool) {
	for i, n := range alarmStatusNames {
		if n == name {
			return uint16(i), true
		}
	}
	return 0, false
}

// ParseSeverity maps a severity name back to its code.
func ParseSeverity(name string) (uint16, bool) {
	for i, n := range severityNames {
		if n == name {
			return uint16(i), true
		}
	}
	return 0, false
}
