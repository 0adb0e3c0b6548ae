package cas

import (
	"context"
	"errors"
	"time"
)

// Context describes the request a host callback is serving. It is only
// valid until the callback returns; keep the AsyncOp, not the Context.
type Context struct {
	ctx     context.Context
	server  *Server
	session *streamSession
	channel *channel
	kind    OpKind
	req     opRequest
	op      *AsyncOp
	done    bool
}

func (s *Server) newContext(ctx context.Context, sess *streamSession, ch *channel, kind OpKind, req opRequest) *Context {
	return &Context{
		ctx:     ctx,
		server:  s,
		session: sess,
		channel: ch,
		kind:    kind,
		req:     req,
	}
}

// Context returns the request's context.Context, carrying its trace span.
func (c *Context) Context() context.Context { return c.ctx }

// Server returns the server handling the request.
func (c *Context) Server() *Server { return c.server }

// ClientAddr returns the requesting client's address.
func (c *Context) ClientAddr() string {
	if c.session != nil {
		return c.session.addr
	}
	if c.req.replyTo != nil {
		return c.req.replyTo.String()
	}
	return ""
}

// User returns the user name the stream client announced.
func (c *Context) User() string {
	if c.session == nil {
		return ""
	}
	return c.session.user
}

// HostName returns the host name the stream client announced.
func (c *Context) HostName() string {
	if c.session == nil {
		return ""
	}
	return c.session.host
}

// Channel returns the handle of the channel a read or write arrived on,
// or nil for searches and attaches.
func (c *Context) Channel() *ChannelHandle {
	if c.channel == nil {
		return nil
	}
	return c.channel.handle
}

// AsyncRead starts an asynchronous read. Return ErrAsyncCompletion from
// PV.Read afterwards.
func (c *Context) AsyncRead() (*AsyncOp, error) { return c.async(OpRead) }

// AsyncWrite starts an asynchronous write. Return ErrAsyncCompletion from
// PV.Write afterwards.
func (c *Context) AsyncWrite() (*AsyncOp, error) { return c.async(OpWrite) }

// AsyncExist starts an asynchronous exist test. Return ErrAsyncCompletion
// from Host.ExistTest afterwards.
func (c *Context) AsyncExist() (*AsyncOp, error) { return c.async(OpExist) }

// AsyncAttach starts an asynchronous attach. Return ErrAsyncCompletion
// from Host.Attach afterwards.
func (c *Context) AsyncAttach() (*AsyncOp, error) { return c.async(OpAttach) }

func (c *Context) async(kind OpKind) (*AsyncOp, error) {
	if c.done || c.kind != kind {
		return nil, ErrNoAsync
	}
	if c.op != nil {
		return c.op, nil
	}
	op := &AsyncOp{
		id:     c.server.nextOpID.Add(1),
		kind:   kind,
		server: c.server,
		issued: time.Now(),
		req:    c.req,
	}
	c.server.eng.ops[op.id] = op
	if c.session != nil {
		c.session.ops[op.id] = op
	}
	c.op = op
	return op, nil
}

// resolve settles the context after the host returned err. It returns
// the op when the host went asynchronous, and drops an op the host
// created but did not use.
func (c *Context) resolve(err error) *AsyncOp {
	c.done = true
	if c.op == nil {
		return nil
	}
	if errors.Is(err, ErrAsyncCompletion) {
		c.op.markPending()
		return c.op
	}
	c.server.dropOp(c.op)
	return nil
}
