package logger

import "context"

type contextKey struct{}

// LogContext carries the fields DebugCtx and InfoCtx put in front of a
// request's log lines.
type LogContext struct {
	TraceID    string
	SpanID     string
	Command    string // CA command name (CREATE_CHAN, READ_NOTIFY, ...)
	ClientAddr string
}

// WithContext returns a new context carrying lc
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts the context of a client connection.
func NewLogContext(clientAddr string) *LogContext {
	return &LogContext{ClientAddr: clientAddr}
}

// WithCommand returns a copy naming the request's command. A nil
// receiver yields a context with only the command set.
func (lc *LogContext) WithCommand(cmd string) *LogContext {
	c := lc.clone()
	c.Command = cmd
	return c
}

// WithTrace returns a copy carrying the request's span.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.clone()
	c.TraceID, c.SpanID = traceID, spanID
	return c
}

func (lc *LogContext) clone() *LogContext {
	if lc == nil {
		return &LogContext{}
	}
	c := *lc
	return &c
}
