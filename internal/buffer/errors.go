package buffer

import "errors"

var (
	// ErrFull means the output buffer cannot take the message now. The
	// caller keeps it and retries after the writer drains.
	ErrFull = errors.New("buffer: output buffer full")

	// ErrTooLarge means a message exceeds the largest buffer available and
	// can never be sent (ECA_TOLARGE).
	ErrTooLarge = errors.New("buffer: message exceeds maximum array size")

	// ErrMessageTooLarge means an incoming message declares a payload
	// larger than the largest buffer. The stream cannot be resynchronised.
	ErrMessageTooLarge = errors.New("buffer: incoming message too large")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("buffer: closed")
)
