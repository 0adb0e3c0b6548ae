package ca

import "fmt"

// ECA status codes are (message number << 3) | severity.
const (
	severityWarning = 0
	severitySuccess = 1
	severityError   = 2
	severityInfo    = 3
	severitySevere  = 4
	severityFatal   = 6

	severityMask = 0x07
	msgNoShift   = 3
)

// ECA status codes.
const (
	ECANormal         uint32 = 0<<msgNoShift | severitySuccess
	ECAMaxIOC         uint32 = 1<<msgNoShift | severityError
	ECAUknHost        uint32 = 2<<msgNoShift | severityError
	ECAUknServ        uint32 = 3<<msgNoShift | severityError
	ECASock           uint32 = 4<<msgNoShift | severityError
	ECAConn           uint32 = 5<<msgNoShift | severityWarning
	ECAAllocMem       uint32 = 6<<msgNoShift | severityWarning
	ECAUknChan        uint32 = 7<<msgNoShift | severityWarning
	ECAUknField       uint32 = 8<<msgNoShift | severityWarning
	ECATooLarge       uint32 = 9<<msgNoShift | severityWarning
	ECATimeout        uint32 = 10<<msgNoShift | severityWarning
	ECANoSupport      uint32 = 11<<msgNoShift | severityWarning
	ECAStrTooBig      uint32 = 12<<msgNoShift | severityWarning
	ECADisconnChID    uint32 = 13<<msgNoShift | severityError
	ECABadType        uint32 = 14<<msgNoShift | severityError
	ECAChIDNotFound   uint32 = 15<<msgNoShift | severityInfo
	ECAChIDRetry      uint32 = 16<<msgNoShift | severityInfo
	ECAInternal       uint32 = 17<<msgNoShift | severityFatal
	ECADblClFail      uint32 = 18<<msgNoShift | severityWarning
	ECAGetFail        uint32 = 19<<msgNoShift | severityWarning
	ECAPutFail        uint32 = 20<<msgNoShift | severityWarning
	ECAAddFail        uint32 = 21<<msgNoShift | severityWarning
	ECABadCount       uint32 = 22<<msgNoShift | severityWarning
	ECABadStr         uint32 = 23<<msgNoShift | severityError
	ECADisconn        uint32 = 24<<msgNoShift | severityWarning
	ECADblChnl        uint32 = 25<<msgNoShift | severityWarning
	ECAEvDisallow     uint32 = 26<<msgNoShift | severityError
	ECABuildGet       uint32 = 27<<msgNoShift | severityWarning
	ECANeedsFP        uint32 = 28<<msgNoShift | severityWarning
	ECAOvEvFail       uint32 = 29<<msgNoShift | severityWarning
	ECABadMonID       uint32 = 30<<msgNoShift | severityError
	ECANewAddr        uint32 = 31<<msgNoShift | severityWarning
	ECANewConn        uint32 = 32<<msgNoShift | severityInfo
	ECANoCACtx        uint32 = 33<<msgNoShift | severityWarning
	ECADefunct        uint32 = 34<<msgNoShift | severityFatal
	ECAEmptyStr       uint32 = 35<<msgNoShift | severityWarning
	ECANoRepeater     uint32 = 36<<msgNoShift | severityWarning
	ECANoChanMsg      uint32 = 37<<msgNoShift | severityWarning
	ECADlckRest       uint32 = 38<<msgNoShift | severityWarning
	ECAServBehind     uint32 = 39<<msgNoShift | severityWarning
	ECANoCast         uint32 = 40<<msgNoShift | severityWarning
	ECABadMask        uint32 = 41<<msgNoShift | severityError
	ECAIODone         uint32 = 42<<msgNoShift | severityInfo
	ECAIOInProgress   uint32 = 43<<msgNoShift | severityInfo
	ECABadSyncGrp     uint32 = 44<<msgNoShift | severityError
	ECAPutCBInProg    uint32 = 45<<msgNoShift | severityError
	ECANoRdAccess     uint32 = 46<<msgNoShift | severityWarning
	ECANoWtAccess     uint32 = 47<<msgNoShift | severityWarning
	ECAAnachronism    uint32 = 48<<msgNoShift | severityError
	ECANoSearchAddr   uint32 = 49<<msgNoShift | severityWarning
	ECANoConvert      uint32 = 50<<msgNoShift | severityWarning
	ECABadChID        uint32 = 51<<msgNoShift | severityError
	ECABadFuncPtr     uint32 = 52<<msgNoShift | severityError
	ECAIsAttached     uint32 = 53<<msgNoShift | severityWarning
	ECAUnavailInServ  uint32 = 54<<msgNoShift | severityWarning
	ECAChanDestroy    uint32 = 55<<msgNoShift | severityWarning
	ECABadPriority    uint32 = 56<<msgNoShift | severityError
	ECANotThreaded    uint32 = 57<<msgNoShift | severityError
	ECAArray16KClient uint32 = 58<<msgNoShift | severityWarning
	ECAConnSeqTmo     uint32 = 59<<msgNoShift | severityWarning
	ECAUnrespTmo      uint32 = 60<<msgNoShift | severityWarning
)

var ecaNames = [...]string{
	"ECA_NORMAL",
	"ECA_MAXIOC",
	"ECA_UKNHOST",
	"ECA_UKNSERV",
	"ECA_SOCK",
	"ECA_CONN",
	"ECA_ALLOCMEM",
	"ECA_UKNCHAN",
	"ECA_UKNFIELD",
	"ECA_TOLARGE",
	"ECA_TIMEOUT",
	"ECA_NOSUPPORT",
	"ECA_STRTOBIG",
	"ECA_DISCONNCHID",
	"ECA_BADTYPE",
	"ECA_CHIDNOTFND",
	"ECA_CHIDRETRY",
	"ECA_INTERNAL",
	"ECA_DBLCLFAIL",
	"ECA_GETFAIL",
	"ECA_PUTFAIL",
	"ECA_ADDFAIL",
	"ECA_BADCOUNT",
	"ECA_BADSTR",
	"ECA_DISCONN",
	"ECA_DBLCHNL",
	"ECA_EVDISALLOW",
	"ECA_BUILDGET",
	"ECA_NEEDSFP",
	"ECA_OVEVFAIL",
	"ECA_BADMONID",
	"ECA_NEWADDR",
	"ECA_NEWCONN",
	"ECA_NOCACTX",
	"ECA_DEFUNCT",
	"ECA_EMPTYSTR",
	"ECA_NOREPEATER",
	"ECA_NOCHANMSG",
	"ECA_DLCKREST",
	"ECA_SERVBEHIND",
	"ECA_NOCAST",
	"ECA_BADMASK",
	"ECA_IODONE",
	"ECA_IOINPROGRESS",
	"ECA_BADSYNCGRP",
	"ECA_PUTCBINPROG",
	"ECA_NORDACCESS",
	"ECA_NOWTACCESS",
	"ECA_ANACHRONISM",
	"ECA_NOSEARCHADDR",
	"ECA_NOCONVERT",
	"ECA_BADCHID",
	"ECA_BADFUNCPTR",
	"ECA_ISATTACHED",
	"ECA_UNAVAILINSERV",
	"ECA_CHANDESTROY",
	"ECA_BADPRIORITY",
	"ECA_NOTTHREADED",
	"ECA_16KARRAYCLIENT",
	"ECA_CONNSEQTMO",
	"ECA_UNRESPTMO",
}

var ecaMessages = [...]string{
	0:  "Normal successful completion",
	1:  "Maximum simultaneous IOC connections exceeded",
	2:  "Unknown internet host",
	3:  "Unknown internet service",
	4:  "Unable to allocate a new socket",
	5:  "Unable to connect to internet host or service",
	6:  "Unable to allocate additional dynamic memory",
	7:  "Unknown IO channel",
	8:  "Record field specified inappropriate for channel specified",
	9:  "The requested transfer is greater than available memory or EPICS_CA_MAX_ARRAY_BYTES",
	10: "User specified timeout on IO operation expired",
	11: "Sorry, that feature is planned but not supported at this time",
	12: "The supplied string is unusually large",
	13: "The request was ignored because the specified channel is disconnected",
	14: "The data type specifed is invalid",
	15: "Remote Channel not found",
	16: "Unable to locate all user specified channels",
	17: "Channel Access Internal Failure",
	18: "The requested local DB operation failed",
	19: "Channel read request failed",
	20: "Channel write request failed",
	21: "Channel subscription request failed",
	22: "Invalid element count requested",
	23: "Invalid string",
	24: "Virtual circuit disconnect",
	25: "Identical process variable names on multiple servers",
	26: "Request inappropriate within subscription (monitor) update callback",
	27: "Database value get for that channel failed during channel search",
	28: "Unable to initialize without the vxWorks VX_FP_TASK task option set",
	29: "Event queue overflow has prevented first pass event after event add",
	30: "Bad event subscription (monitor) identifier",
	31: "Remote channel has new network address",
	32: "New or resumed network connection",
	33: "Specified task isnt a member of a CA context",
	34: "Attempt to use defunct CA feature failed",
	35: "The supplied string is empty",
	36: "Unable to spawn the CA repeater thread- auto reconnect will fail",
	37: "No channel id match for search reply- search reply ignored",
	38: "Reseting dead connection- will try to reconnect",
	39: "Server (IOC) has fallen behind or is not responding- still waiting",
	40: "No internet interface with broadcast available",
	41: "Invalid event selection mask",
	42: "IO operations have completed",
	43: "IO operations are in progress",
	44: "Invalid synchronous group identifier",
	45: "Put callback timed out",
	46: "Read access denied",
	47: "Write access denied",
	48: "Requested feature is no longer supported",
	49: "Empty PV search address list",
	50: "No reasonable data conversion between client and server types",
	51: "Invalid channel identifier",
	52: "Invalid function pointer",
	53: "Thread is already attached to a client context",
	54: "Not supported by attached service",
	55: "User destroyed channel",
	56: "Invalid channel priority",
	57: "Preemptive callback not enabled - additional threads may not join context",
	58: "Client's protocol revision does not support transfers exceeding 16k bytes",
	59: "Connection sequence timeout",
	60: "Unresponsive server timeout",
}

// ECAMessage returns the text for an ECA status code.
func ECAMessage(code uint32) string {
	n := code >> msgNoShift
	if int(n) < len(ecaMessages) {
		return ecaMessages[n]
	}
	return fmt.Sprintf("unknown status 0x%x", code)
}

// ECAName returns the symbolic name of an ECA status code, such as
// "ECA_NORMAL".
func ECAName(code uint32) string {
	n := code >> msgNoShift
	if int(n) < len(ecaNames) {
		return ecaNames[n]
	}
	return fmt.Sprintf("ECA_0x%x", code)
}

// ECASuccess reports whether code has a success or info severity.
func ECASuccess(code uint32) bool {
	s := code & severityMask
	return s == severitySuccess || s == severityInfo
}
