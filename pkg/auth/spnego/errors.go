package spnego

import "errors"

// Errors returned by the codec. All are terminal: the blob should be
// rejected, not retried.
var (
	// ErrMalformedToken indicates the blob violates the NegTokenInit layout
	// (empty, truncated, wrong object type, missing required field).
	ErrMalformedToken = errors.New("spnego: malformed negotiation token")

	// ErrUnsupportedMechanism indicates a structurally valid blob whose
	// leading mechanism is neither SPNEGO nor Kerberos v5.
	ErrUnsupportedMechanism = errors.New("spnego: unsupported mechanism")

	// ErrEncoding indicates a NegTokenInit that cannot be encoded, such as
	// one with an empty mechanism list.
	ErrEncoding = errors.New("spnego: cannot encode negotiation token")

	// ErrUnexpectedToken indicates a NegTokenInit was found where a
	// NegTokenResp was expected.
	ErrUnexpectedToken = errors.New("spnego: unexpected token type")
)
