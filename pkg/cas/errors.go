package cas

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittoca/internal/buffer"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/adapter"
	"github.com/marmos91/dittoca/pkg/bufpool"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// Host status sentinels.
var (
	// ErrAsyncCompletion tells the engine the host started an async
	// operation through the Context and will complete it later.
	ErrAsyncCompletion = errors.New("cas: async completion pending")

	// ErrPostponeAsyncIO tells the engine the host cannot accept another
	// request on this PV now. The request is retried after an operation on
	// the PV completes.
	ErrPostponeAsyncIO = errors.New("cas: async io postponed")

	// ErrNotFound is returned by Host.Attach for unknown names.
	ErrNotFound = errors.New("cas: process variable not found")

	// ErrNoAccess is returned by a host that denies a read or write.
	ErrNoAccess = errors.New("cas: access denied")
)

// Async operation errors returned to the host.
var (
	ErrOpCanceled  = errors.New("cas: operation canceled")
	ErrOpCompleted = errors.New("cas: operation already completed")
	ErrOpKind      = errors.New("cas: completion does not match operation kind")
	ErrNoAsync     = errors.New("cas: context does not allow async completion")
)

// Server errors.
var (
	ErrServerClosed       = errors.New("cas: server closed")
	ErrUnsupportedVersion = errors.New("cas: unsupported client protocol version")
	ErrNilValue           = errors.New("cas: nil value")
	ErrUnknownPV          = errors.New("cas: process variable has no channels")
)

// StatusError carries an ECA status code. Hosts may return one to choose
// the code sent to the client.
type StatusError struct {
	ECA uint32
	Err error
}

var _ adapter.ProtocolError = (*StatusError)(nil)

// NewStatusError wraps err with an ECA status code.
func NewStatusError(eca uint32, err error) *StatusError {
	return &StatusError{ECA: eca, Err: err}
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ca.ECAName(e.ECA), e.Err)
	}
	return ca.ECAName(e.ECA)
}

// Code returns the ECA status code.
func (e *StatusError) Code() uint32 { return e.ECA }

// Message returns the ECA status text.
func (e *StatusError) Message() string { return ca.ECAMessage(e.ECA) }

func (e *StatusError) Unwrap() error { return e.Err }

// MapError translates err into an ECA status, using fallback for errors
// with no specific mapping. A nil error maps to ECA_NORMAL.
func MapError(err error, fallback uint32) uint32 {
	if err == nil {
		return ca.ECANormal
	}
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.ECA
	case errors.Is(err, gdd.ErrNoConvert), errors.Is(err, gdd.ErrEnumIndexRange):
		return ca.ECANoConvert
	case errors.Is(err, gdd.ErrShape), errors.Is(err, ca.ErrBadCount):
		return ca.ECABadCount
	case errors.Is(err, gdd.ErrBadType), errors.Is(err, ca.ErrBadDBRType):
		return ca.ECABadType
	case errors.Is(err, bufpool.ErrTooLarge), errors.Is(err, buffer.ErrTooLarge):
		return ca.ECATooLarge
	case errors.Is(err, ErrNoAccess):
		if fallback == ca.ECAPutFail {
			return ca.ECANoWtAccess
		}
		return ca.ECANoRdAccess
	case errors.Is(err, ErrNotFound):
		return ca.ECAUknChan
	default:
		return fallback
	}
}

// MapError implements adapter.Adapter.
func (s *Server) MapError(err error) adapter.ProtocolError {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return NewStatusError(MapError(err, ca.ECAInternal), err)
}
