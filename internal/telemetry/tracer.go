package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for CA server spans.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"
	AttrClientUser = "client.user"
	AttrClientHost = "client.host"

	// ========================================================================
	// CA protocol attributes
	// ========================================================================
	AttrCACommand  = "ca.command"   // Command name (READ_NOTIFY, EVENT_ADD, ...)
	AttrCAChannel  = "ca.channel"   // PV name
	AttrCACID      = "ca.cid"       // Client channel ID
	AttrCASID      = "ca.sid"       // Server channel ID
	AttrCAIOID     = "ca.ioid"      // Request ID of READ_NOTIFY / WRITE_NOTIFY
	AttrCASubID    = "ca.subid"     // Monitor ID
	AttrCADBRType  = "ca.dbr_type"  // Requested DBR type name
	AttrCACount    = "ca.count"     // Requested element count
	AttrCAStatus   = "ca.status"    // ECA status name
	AttrCAMinorVer = "ca.minor_ver" // Client minor protocol version
	AttrCAAsync    = "ca.async"     // Request completed asynchronously

	// ========================================================================
	// Host PV attributes
	// ========================================================================
	AttrPVOperation = "pv.operation" // read, write, exist, attach
	AttrPVName      = "pv.name"

	// ========================================================================
	// Storage attributes (autosave)
	// ========================================================================
	AttrStoreKey = "store.key"
)

// ClientAddr returns an attribute for client address (ip:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ClientUser returns an attribute for the CLIENT_NAME reported by the client
func ClientUser(name string) attribute.KeyValue {
	return attribute.String(AttrClientUser, name)
}

// ClientHost returns an attribute for the HOST_NAME reported by the client
func ClientHost(name string) attribute.KeyValue {
	return attribute.String(AttrClientHost, name)
}

// CACommand returns an attribute for the CA command name
func CACommand(name string) attribute.KeyValue {
	return attribute.String(AttrCACommand, name)
}

// CAChannel returns an attribute for a PV name
func CAChannel(name string) attribute.KeyValue {
	return attribute.String(AttrCAChannel, name)
}

// CACID returns an attribute for a client channel ID
func CACID(cid uint32) attribute.KeyValue {
	return attribute.Int64(AttrCACID, int64(cid))
}

// CASID returns an attribute for a server channel ID
func CASID(sid uint32) attribute.KeyValue {
	return attribute.Int64(AttrCASID, int64(sid))
}

// CAIOID returns an attribute for a request ID
func CAIOID(ioid uint32) attribute.KeyValue {
	return attribute.Int64(AttrCAIOID, int64(ioid))
}

// CASubID returns an attribute for a monitor ID
func CASubID(subid uint32) attribute.KeyValue {
	return attribute.Int64(AttrCASubID, int64(subid))
}

// CADBRType returns an attribute for a DBR type name
func CADBRType(name string) attribute.KeyValue {
	return attribute.String(AttrCADBRType, name)
}

// CACount returns an attribute for an element count
func CACount(count uint32) attribute.KeyValue {
	return attribute.Int64(AttrCACount, int64(count))
}

// CAStatus returns an attribute for an ECA status name
func CAStatus(name string) attribute.KeyValue {
	return attribute.String(AttrCAStatus, name)
}

// CAMinorVersion returns an attribute for the client's minor protocol version
func CAMinorVersion(v uint16) attribute.KeyValue {
	return attribute.Int(AttrCAMinorVer, int(v))
}

// CAAsync returns an attribute recording asynchronous completion
func CAAsync(async bool) attribute.KeyValue {
	return attribute.Bool(AttrCAAsync, async)
}

// PVName returns an attribute for a host PV name
func PVName(name string) attribute.KeyValue {
	return attribute.String(AttrPVName, name)
}

// StoreKey returns an attribute for an autosave key
func StoreKey(key string) attribute.KeyValue {
	return attribute.String(AttrStoreKey, key)
}

// StartCASpan starts a span for a CA request.
// This is a convenience function that sets the command attribute.
func StartCASpan(ctx context.Context, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		CACommand(command),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "ca."+command, trace.WithAttributes(allAttrs...))
}

// StartPVSpan starts a span around a host PV callback.
func StartPVSpan(ctx context.Context, operation, pvName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		attribute.String(AttrPVOperation, operation),
		PVName(pvName),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "pv."+operation, trace.WithAttributes(allAttrs...))
}

// StartAutosaveSpan starts a span for an autosave store operation.
func StartAutosaveSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	return StartSpan(ctx, "autosave."+operation, trace.WithAttributes(StoreKey(key)))
}
