// Package adapter holds the stream listener shared by protocol servers:
// accept loop, connection limit, tracking and bounded shutdown.
package adapter

import "context"

// Adapter is a protocol server run by the dittoca process.
type Adapter interface {
	// Serve blocks until ctx is canceled or Stop is called, then drains
	// open connections.
	Serve(ctx context.Context) error

	// Stop begins shutdown and waits for connections until ctx is done.
	// It is idempotent.
	Stop(ctx context.Context) error

	// Protocol names the protocol in logs and metrics.
	Protocol() string

	// Port is the listening port.
	Port() int

	// MapError turns a host or codec error into a wire status, or nil
	// when the error has no mapping.
	MapError(err error) ProtocolError
}

// ProtocolError is an error carrying a wire status code. For Channel
// Access the code is an ECA status such as ECA_NOCONVERT or ECA_GETFAIL.
// Unwrap exposes the cause so errors.Is still matches sentinel errors.
type ProtocolError interface {
	error
	Code() uint32
	Message() string
	Unwrap() error
}
