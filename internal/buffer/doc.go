// Package buffer implements the per-client message buffers of the CA
// server.
//
// InBuf accumulates stream bytes and yields complete messages, keeping a
// partial message buffered until the rest arrives. OutBuf collects
// encoded replies for a connection's writer goroutine and refuses bytes
// it cannot hold, so a slow client applies backpressure instead of
// growing memory without bound.
//
// Both start on a small pooled buffer and borrow a large one only while
// a message needs it.
package buffer
