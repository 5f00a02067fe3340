package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for negotiation spans.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"
	AttrRequestID  = "request.id"

	// ========================================================================
	// SPNEGO attributes
	// ========================================================================
	AttrMechanism    = "spnego.mechanism"     // Leading or selected mechanism name
	AttrMechCount    = "spnego.mech_count"    // Number of offered mechanisms
	AttrLegacy       = "spnego.legacy"        // Bare Kerberos token, no SPNEGO wrapper
	AttrContextFlags = "spnego.context_flags" // Requested context flags
	AttrTokenLength  = "spnego.token_length"  // Inbound token size

	// ========================================================================
	// GSS / Kerberos attributes
	// ========================================================================
	AttrServicePrincipal = "krb5.service_principal"
	AttrClientPrincipal  = "krb5.client_principal"
	AttrEncType          = "krb5.enctype"
	AttrLifetime         = "krb5.lifetime_s"
	AttrResponseLength   = "gss.response_length"
	AttrDisposalFailed   = "gss.disposal_failed"

	// ========================================================================
	// Identity attributes
	// ========================================================================
	AttrUID      = "user.uid"
	AttrGID      = "user.gid"
	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrAuth     = "auth.method"
)

// Span names.
// Format: <component>.<operation>
const (
	SpanSessionSetup = "gss.session_setup"
	SpanAccept       = "gss.accept"
	SpanDecode       = "spnego.decode"
	SpanEncode       = "spnego.encode"
	SpanAuthenticate = "auth.authenticate"
	SpanKeytabReload = "krb5.keytab_reload"
)

// ClientAddr returns an attribute for client address (IP:port)
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// RequestID returns an attribute for the per-call request id
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// Mechanism returns an attribute for a mechanism name
func Mechanism(name string) attribute.KeyValue {
	return attribute.String(AttrMechanism, name)
}

// MechCount returns an attribute for the number of offered mechanisms
func MechCount(n int) attribute.KeyValue {
	return attribute.Int(AttrMechCount, n)
}

// Legacy returns an attribute marking a bare Kerberos token
func Legacy(legacy bool) attribute.KeyValue {
	return attribute.Bool(AttrLegacy, legacy)
}

// ContextFlags returns an attribute for the requested context flags (hex)
func ContextFlags(flags int) attribute.KeyValue {
	return attribute.String(AttrContextFlags, fmt.Sprintf("0x%02x", flags))
}

// TokenLength returns an attribute for an inbound token size
func TokenLength(n int) attribute.KeyValue {
	return attribute.Int(AttrTokenLength, n)
}

// ServicePrincipal returns an attribute for the acceptor principal
func ServicePrincipal(name string) attribute.KeyValue {
	return attribute.String(AttrServicePrincipal, name)
}

// ClientPrincipal returns an attribute for the initiator principal
func ClientPrincipal(name string) attribute.KeyValue {
	return attribute.String(AttrClientPrincipal, name)
}

// EncType returns an attribute for a session key encryption type
func EncType(name string) attribute.KeyValue {
	return attribute.String(AttrEncType, name)
}

// Lifetime returns an attribute for a context lifetime in seconds
func Lifetime(seconds int) attribute.KeyValue {
	return attribute.Int(AttrLifetime, seconds)
}

// ResponseLength returns an attribute for the outbound token size
func ResponseLength(n int) attribute.KeyValue {
	return attribute.Int(AttrResponseLength, n)
}

// DisposalFailed returns an attribute marking a failed resource release
func DisposalFailed(failed bool) attribute.KeyValue {
	return attribute.Bool(AttrDisposalFailed, failed)
}

// UID returns an attribute for user ID
func UID(uid uint32) attribute.KeyValue {
	return attribute.Int64(AttrUID, int64(uid))
}

// GID returns an attribute for group ID
func GID(gid uint32) attribute.KeyValue {
	return attribute.Int64(AttrGID, int64(gid))
}

// Username returns an attribute for username
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for domain/realm
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// AuthMethod returns an attribute for authentication method
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartSessionSetupSpan starts the root span of one accept operation.
func StartSessionSetupSpan(ctx context.Context, requestID, principal string, tokenLen int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		RequestID(requestID),
		ServicePrincipal(principal),
		TokenLength(tokenLen),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanSessionSetup, trace.WithAttributes(allAttrs...))
}

// StartNegotiationSpan starts a span for a codec or authenticator step.
func StartNegotiationSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
