// Package gss defines the acceptor-side security provider contract used by
// Kerberos session setup.
//
// A Provider hands out a Credential for a service principal and a
// SecurityContext bound to it. Both are owned by the caller and must be
// released with Dispose exactly once. The concrete gokrb5 implementation
// lives in pkg/auth/kerberos.
package gss

import (
	"math"

	"github.com/marmos91/dittoauth/pkg/auth/oid"
)

// IndefiniteLifetime is the lifetime requested for, or reported by, a
// credential or context that does not expire.
const IndefiniteLifetime = math.MaxInt32

// Usage restricts what a credential may be used for.
type Usage int

const (
	InitiateAndAccept Usage = iota
	InitiateOnly
	AcceptOnly
)

func (u Usage) String() string {
	switch u {
	case InitiateAndAccept:
		return "initiate-and-accept"
	case InitiateOnly:
		return "initiate-only"
	case AcceptOnly:
		return "accept-only"
	default:
		return "unknown"
	}
}

// CanAccept reports whether a credential with this usage may accept contexts.
func (u Usage) CanAccept() bool {
	return u == AcceptOnly || u == InitiateAndAccept
}

// Provider creates credentials and security contexts.
//
// Implementations must be safe for concurrent use; the handles they return
// need not be.
type Provider interface {
	// AcquireCredential obtains a credential for principal restricted to
	// mech. lifetime is in seconds; IndefiniteLifetime requests no expiry.
	AcquireCredential(principal string, mech oid.MechanismOID, usage Usage, lifetime int) (Credential, error)

	// NewSecurityContext creates an acceptor context bound to cred.
	NewSecurityContext(cred Credential) (SecurityContext, error)
}

// Credential is a provider-owned credential handle.
type Credential interface {
	// Dispose releases the credential.
	Dispose() error
}

// SecurityContext is one acceptor-side authentication exchange.
type SecurityContext interface {
	// Accept consumes the initiator's token and returns the token to send
	// back, which may be empty.
	Accept(token []byte) ([]byte, error)

	// SourceName returns the initiator principal after a successful Accept.
	SourceName() string

	// TargetName returns the acceptor principal after a successful Accept.
	TargetName() string

	// Lifetime returns the remaining context lifetime in seconds, or
	// IndefiniteLifetime.
	Lifetime() int

	// Dispose releases the context.
	Dispose() error
}

// SessionKeyInquirer is implemented by contexts that can report the
// negotiated session key's encryption algorithm.
type SessionKeyInquirer interface {
	SessionKeyAlgorithm() (string, error)
}
