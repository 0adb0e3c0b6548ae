package cas

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/internal/telemetry"
)

// CommandHandler handles one stream request. It returns the ECA status of
// the reply for metrics, and an error only for faults that must close the
// session.
type CommandHandler func(sess *streamSession, m ca.Message) (uint32, error)

// Command metadata
type Command struct {
	Name    string
	Handler CommandHandler

	// PreVersion commands are accepted before VERSION.
	PreVersion bool
}

// DispatchTable maps CA command codes to stream request handlers.
var DispatchTable map[uint16]*Command

func init() {
	DispatchTable = map[uint16]*Command{
		ca.CmdVersion: {
			Name:       "VERSION",
			Handler:    handleVersion,
			PreVersion: true,
		},
		ca.CmdEcho: {
			Name:    "ECHO",
			Handler: handleEcho,
		},
		ca.CmdClientName: {
			Name:    "CLIENT_NAME",
			Handler: handleClientName,
		},
		ca.CmdHostName: {
			Name:    "HOST_NAME",
			Handler: handleHostName,
		},
		ca.CmdSearch: {
			Name:    "SEARCH",
			Handler: handleStreamSearch,
		},
		ca.CmdCreateChan: {
			Name:    "CREATE_CHAN",
			Handler: handleCreateChan,
		},
		ca.CmdClearChannel: {
			Name:    "CLEAR_CHANNEL",
			Handler: handleClearChannel,
		},
		ca.CmdRead: {
			Name:    "READ",
			Handler: handleRead,
		},
		ca.CmdReadNotify: {
			Name:    "READ_NOTIFY",
			Handler: handleRead,
		},
		ca.CmdReadSync: {
			Name:    "READ_SYNC",
			Handler: handleReadSync,
		},
		ca.CmdWrite: {
			Name:    "WRITE",
			Handler: handleWrite,
		},
		ca.CmdWriteNotify: {
			Name:    "WRITE_NOTIFY",
			Handler: handleWrite,
		},
		ca.CmdEventAdd: {
			Name:    "EVENT_ADD",
			Handler: handleEventAdd,
		},
		ca.CmdEventCancel: {
			Name:    "EVENT_CANCEL",
			Handler: handleEventCancel,
		},
		ca.CmdEventsOff: {
			Name:    "EVENTS_OFF",
			Handler: handleEventsOff,
		},
		ca.CmdEventsOn: {
			Name:    "EVENTS_ON",
			Handler: handleEventsOn,
		},
	}
}

// dispatch routes one request. Runs on the engine goroutine.
func (sess *streamSession) dispatch(m ca.Message) {
	h := m.Header
	start := time.Now()

	cmd, ok := DispatchTable[h.Command]
	if sess.state == StateConnected && (!ok || !cmd.PreVersion) {
		logger.Warn("CA client did not start with VERSION",
			logger.KeyClientAddr, sess.addr, logger.KeyCommand, ca.CommandName(h.Command))
		sess.server.teardown(sess, closeProtocol)
		return
	}
	if sess.state == StateVersionNegotiated {
		sess.state = StateActive
	}
	if !ok {
		// unknown commands are protocol errors: report, then close
		sess.sendError(h, h.Parameter1, ca.ECANoSupport, fmt.Sprintf("unsupported command %s", ca.CommandName(h.Command)))
		sess.server.metrics.RecordRequest(ca.CommandName(h.Command), time.Since(start), ca.ECAName(ca.ECANoSupport))
		logger.Warn("Unknown command from CA client",
			logger.KeyClientAddr, sess.addr, logger.KeyCommand, ca.CommandName(h.Command))
		sess.server.teardown(sess, closeProtocol)
		return
	}

	ctx, span := telemetry.StartCASpan(sess.ctx, cmd.Name,
		telemetry.ClientAddr(sess.addr),
		telemetry.CAMinorVersion(sess.minorVersion))
	if id := telemetry.TraceID(ctx); id != "" {
		lc := logger.FromContext(ctx).WithCommand(cmd.Name).WithTrace(id, telemetry.SpanID(ctx))
		ctx = logger.WithContext(ctx, lc)
	}
	saved := sess.ctx
	sess.ctx = ctx

	status, err := sess.safeHandle(cmd, m)

	sess.ctx = saved
	span.SetAttributes(telemetry.CAStatus(ca.ECAName(status)))
	span.End()
	sess.server.metrics.RecordRequest(cmd.Name, time.Since(start), ca.ECAName(status))

	if err != nil {
		logger.Warn("Protocol error from CA client",
			logger.KeyClientAddr, sess.addr,
			logger.KeyCommand, cmd.Name,
			logger.KeyError, err)
		sess.server.teardown(sess, closeProtocol)
	}
}

// safeHandle runs the handler, turning a panic into ECA_INTERNAL.
func (sess *streamSession) safeHandle(cmd *Command, m ca.Message) (status uint32, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in CA request handler",
				logger.KeyClientAddr, sess.addr,
				logger.KeyCommand, cmd.Name,
				"error", r,
				"stack", string(debug.Stack()))
			sess.sendError(m.Header, m.Header.Parameter1, ca.ECAInternal, "internal failure")
			status, err = ca.ECAInternal, nil
		}
	}()
	return cmd.Handler(sess, m)
}

// callHost runs a host callback, turning a panic into an ECA_INTERNAL
// status error.
func (s *Server) callHost(what, pv string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in host callback",
				"callback", what,
				logger.KeyChannel, pv,
				"error", r,
				"stack", string(debug.Stack()))
			err = NewStatusError(ca.ECAInternal, fmt.Errorf("host panic: %v", r))
		}
	}()
	return fn()
}
