package cas

import (
	"net"
	"time"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// Host supplies process variables to the server. All methods are called
// from the engine goroutine.
type Host interface {
	// ExistTest answers a name search. Return ErrAsyncCompletion after
	// ctx.AsyncExist() to answer later.
	ExistTest(ctx *Context, name string) (ExistReturn, error)

	// Attach binds name to a PV when a client creates a channel. Return
	// ErrNotFound for unknown names, or ErrAsyncCompletion after
	// ctx.AsyncAttach() to bind later.
	Attach(ctx *Context, name string) (PV, error)
}

// PV is a process variable. All methods are called from the engine
// goroutine. A PV returned by several Attach calls must report the same
// Name, which keys the server's PV table.
type PV interface {
	Name() string

	// Read fills proto, a container built for the client's DBR type with
	// a value child sized to the requested element count. Hosts usually
	// call gdd.SmartCopy(proto, current). Return ErrAsyncCompletion after
	// ctx.AsyncRead() to complete later, or ErrPostponeAsyncIO to retry
	// after an operation on this PV completes.
	Read(ctx *Context, proto *gdd.GDD) error

	// Write applies value. value is only valid for the duration of the
	// call unless the host references it.
	Write(ctx *Context, value *gdd.GDD) error

	// BestExternalType is the native type reported at channel creation.
	BestExternalType() gdd.Type

	// MaxElements is the native element count; 1 for scalars.
	MaxElements() uint32

	// Interest is called with true when the PV gets its first monitor and
	// with false when its last monitor goes away.
	Interest(on bool) error
}

// WriteNotifier is implemented by PVs that distinguish WRITE_NOTIFY from
// WRITE. Without it WRITE_NOTIFY uses Write.
type WriteNotifier interface {
	WriteNotify(ctx *Context, value *gdd.GDD) error
}

// ChannelCreator is implemented by PVs that decide per-client access
// rights. Without it every channel is read/write. An error fails the
// channel creation.
type ChannelCreator interface {
	CreateChannel(ctx *Context, info ChannelInfo) (AccessRights, error)
}

// AccessRightsReader is implemented by PVs whose rights can change after
// creation. ChannelHandle.PostAccessRightsEvent re-reads rights through it.
type AccessRightsReader interface {
	AccessRights(info ChannelInfo) AccessRights
}

// ChannelDestroyer is implemented by PVs that track their channels.
type ChannelDestroyer interface {
	ChannelDestroyed(info ChannelInfo)
}

// Destroyer is implemented by PVs that release resources when the last
// channel attached to them is destroyed.
type Destroyer interface {
	Destroy()
}

// EnumTabler is implemented by enumerated PVs. The table is attached to
// read prototypes so DBR_GR_ENUM and DBR_CTRL_ENUM carry state strings.
type EnumTabler interface {
	EnumStrings() *gdd.EnumStringTable
}

// StallObserver is implemented by hosts that want to hear about async
// operations pending longer than the stall timeout.
type StallObserver interface {
	OpStalled(info OpInfo)
}

// ExistStatus is the answer to a name search.
type ExistStatus int

const (
	ExistStatusNotHere ExistStatus = iota
	ExistStatusHere
)

// ExistReturn is the result of Host.ExistTest. Addr optionally directs
// the client to another server; nil means this one.
type ExistReturn struct {
	Status ExistStatus
	Addr   *net.TCPAddr
}

var (
	ExistHere    = ExistReturn{Status: ExistStatusHere}
	ExistNotHere = ExistReturn{Status: ExistStatusNotHere}
)

// ExistAt answers a search with another server's address.
func ExistAt(addr *net.TCPAddr) ExistReturn {
	return ExistReturn{Status: ExistStatusHere, Addr: addr}
}

// AttachReturn is the result of an asynchronous attach.
type AttachReturn struct {
	PV  PV
	Err error
}

// AccessRights are the read and write permissions of a channel.
type AccessRights uint32

const (
	AccessNone      AccessRights = 0
	AccessRead                   = AccessRights(ca.AccessRead)
	AccessWrite                  = AccessRights(ca.AccessWrite)
	AccessReadWrite              = AccessRead | AccessWrite
)

func (a AccessRights) CanRead() bool  { return a&AccessRead != 0 }
func (a AccessRights) CanWrite() bool { return a&AccessWrite != 0 }

func (a AccessRights) String() string {
	switch a & AccessReadWrite {
	case AccessRead:
		return "ro"
	case AccessWrite:
		return "wo"
	case AccessReadWrite:
		return "rw"
	default:
		return "none"
	}
}

// ChannelInfo describes a channel to the host.
type ChannelInfo struct {
	Name       string
	User       string
	Host       string
	ClientAddr string
	CID        uint32
	SID        uint32

	// Handle lets the host act on the channel later, from any goroutine.
	Handle *ChannelHandle
}

// OpInfo describes an async operation to a StallObserver.
type OpInfo struct {
	ID         uint64
	Kind       OpKind
	PV         string
	ClientAddr string
	Pending    time.Duration
}
