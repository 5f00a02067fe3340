// Package auth provides the authentication abstractions shared by the
// negotiation layer.
//
//   - AuthProvider: pluggable mechanism that consumes a session-setup blob
//   - Authenticator: chains AuthProviders, tries each in order
//   - AuthResult: outcome with Identity and the response blob for the peer
//   - Identity: protocol-neutral authenticated identity
//   - PrincipalMapper: maps a Kerberos principal to an Identity
//
// Sub-packages:
//   - oid/: mechanism identifiers and the process-wide registry
//   - spnego/: NegTokenInit codec and NegTokenResp builders
//   - gss/: acceptor credential and security-context contract
//   - kerberos/: gokrb5-backed acceptor, session setup and AuthProvider
package auth
