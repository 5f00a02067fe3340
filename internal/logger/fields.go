package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging. Use them consistently so
// negotiation logs can be aggregated and queried.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Request
	KeyRequestID  = "request_id"  // Per-call negotiation ID
	KeyClientAddr = "client_addr" // Peer address
	KeyOperation  = "operation"   // Sub-operation: acquire, accept, dispose, ...
	KeyDurationMs = "duration_ms"
	KeyError      = "error"

	// Negotiation
	KeyMechanism    = "mechanism"     // Mechanism name or OID
	KeyMechCount    = "mech_count"    // Number of offered mechanisms
	KeyContextFlags = "context_flags" // SPNEGO context flags
	KeyTokenLen     = "token_len"     // Length of an inbound or outbound token
	KeyLegacy       = "legacy"        // Bare Kerberos token without SPNEGO wrapping

	// Kerberos
	KeyPrincipal = "principal"  // Client principal
	KeyService   = "service"    // Acceptor (service) principal
	KeyRealm     = "realm"      // Kerberos realm
	KeyLifetime  = "lifetime_s" // Remaining context lifetime in seconds
	KeyEncType   = "enctype"    // Session key encryption type
	KeyKeytab    = "keytab"     // Keytab path
	KeyKVNO      = "kvno"       // Key version number

	// Identity
	KeyUsername = "username"
	KeyDomain   = "domain"
	KeyUID      = "uid"
	KeyGID      = "gid"
)

// TraceID returns a slog.Attr for an OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for an OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// RequestID returns a slog.Attr for the per-call negotiation ID.
func RequestID(id string) slog.Attr { return slog.String(KeyRequestID, id) }

// Operation returns a slog.Attr naming a sub-operation.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// Mechanism returns a slog.Attr for a mechanism name.
func Mechanism(name string) slog.Attr { return slog.String(KeyMechanism, name) }

// MechCount returns a slog.Attr for the number of offered mechanisms.
func MechCount(n int) slog.Attr { return slog.Int(KeyMechCount, n) }

// TokenLen returns a slog.Attr for a token length.
func TokenLen(n int) slog.Attr { return slog.Int(KeyTokenLen, n) }

// Principal returns a slog.Attr for a client principal.
func Principal(p string) slog.Attr { return slog.String(KeyPrincipal, p) }

// Service returns a slog.Attr for an acceptor principal.
func Service(p string) slog.Attr { return slog.String(KeyService, p) }

// Lifetime returns a slog.Attr for a remaining lifetime in seconds.
func Lifetime(seconds int) slog.Attr { return slog.Int(KeyLifetime, seconds) }

// UID returns a slog.Attr for a user ID.
func UID(uid uint32) slog.Attr { return slog.Any(KeyUID, uid) }

// GID returns a slog.Attr for a group ID.
func GID(gid uint32) slog.Attr { return slog.Any(KeyGID, gid) }

// DurationMs returns a slog.Attr for the time elapsed since start.
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error. A nil error yields an empty Attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
