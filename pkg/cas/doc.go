// Package cas implements a Channel Access server engine.
//
// A Server answers name searches over UDP, accepts TCP stream clients,
// and binds their channels to process variables provided by a Host. The
// engine owns every session, channel, monitor and asynchronous operation
// and runs them on a single goroutine: reader goroutines hand it decoded
// request batches, writer goroutines drain each client's output buffer,
// and host completions, posted events and access rights changes arrive
// through the same event queue. Host and PV methods are therefore never
// called concurrently and never re-entered.
//
// A minimal host:
//
//	type host struct{ pv cas.PV }
//
//	func (h *host) ExistTest(ctx *cas.Context, name string) (cas.ExistReturn, error) {
//		if name == h.pv.Name() {
//			return cas.ExistHere, nil
//		}
//		return cas.ExistNotHere, nil
//	}
//
//	func (h *host) Attach(ctx *cas.Context, name string) (cas.PV, error) {
//		if name != h.pv.Name() {
//			return nil, cas.ErrNotFound
//		}
//		return h.pv, nil
//	}
//
// Asynchronous completion: a host method that cannot answer immediately
// obtains an AsyncOp from its Context (AsyncRead, AsyncWrite, AsyncExist,
// AsyncAttach), returns ErrAsyncCompletion, and later completes the op
// from any goroutine. Completions for ops whose channel or client has gone
// away are rejected with ErrOpCanceled and never reach the wire.
package cas
