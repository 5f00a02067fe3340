package auth

import (
	"context"
	"errors"

	"github.com/marmos91/dittoauth/internal/logger"
)

// AuthProvider defines a pluggable authentication mechanism.
//
// The Authenticator iterates through providers in order, calling CanHandle
// to find candidates, then Authenticate to process the token.
//
// Thread safety: implementations must be safe for concurrent use.
type AuthProvider interface {
	// CanHandle returns true if this provider can process the given
	// session-setup security blob. It should be a fast structural check
	// (leading tag, OID prefix) without full parsing.
	CanHandle(token []byte) bool

	// Authenticate processes a security blob.
	//
	// Returns ErrUnsupportedMechanism when the blob turns out not to be for
	// this provider, letting the chain try the next one.
	Authenticate(ctx context.Context, token []byte) (*AuthResult, error)

	// Name returns the provider name for logging and diagnostics.
	Name() string
}

// AuthResult contains the outcome of an authentication exchange.
type AuthResult struct {
	// Identity is the authenticated identity.
	Identity Identity

	// Authenticated indicates whether authentication succeeded.
	Authenticated bool

	// Provider is the name of the AuthProvider that handled the token.
	Provider string

	// Mechanism is the negotiated mechanism name (e.g. "kerberos5").
	Mechanism string

	// ResponseToken is the security blob to return to the peer. It may be
	// empty when the mechanism has nothing to send.
	ResponseToken []byte
}

// Authenticator chains AuthProvider implementations and tries each in order.
//
// A provider is tried when its CanHandle returns true. A provider returning
// ErrUnsupportedMechanism hands the token on to the next candidate; any
// other outcome is final.
//
// Thread safety: safe for concurrent use (providers are read-only after construction).
type Authenticator struct {
	providers []AuthProvider
}

// NewAuthenticator creates a new Authenticator with the given providers.
func NewAuthenticator(providers ...AuthProvider) *Authenticator {
	return &Authenticator{providers: providers}
}

// Authenticate delegates the token to the first matching provider.
func (a *Authenticator) Authenticate(ctx context.Context, token []byte) (*AuthResult, error) {
	for _, p := range a.providers {
		if !p.CanHandle(token) {
			continue
		}

		res, err := p.Authenticate(ctx, token)
		if errors.Is(err, ErrUnsupportedMechanism) {
			logger.DebugCtx(ctx, "Auth provider declined token", "provider", p.Name())
			continue
		}
		return res, err
	}
	return nil, ErrUnsupportedMechanism
}

// Providers returns a copy of the registered providers, or nil when there
// are none.
func (a *Authenticator) Providers() []AuthProvider {
	if a == nil || len(a.providers) == 0 {
		return nil
	}
	out := make([]AuthProvider, len(a.providers))
	copy(out, a.providers)
	return out
}

// Standard authentication errors.
var (
	// ErrAuthFailed indicates that authentication was attempted but failed
	// (e.g., expired ticket, invalid signature).
	ErrAuthFailed = errors.New("auth: authentication failed")

	// ErrUnsupportedMechanism indicates that no registered AuthProvider can
	// handle the presented authentication token.
	ErrUnsupportedMechanism = errors.New("auth: unsupported authentication mechanism")

	// ErrInvalidCredentials indicates that the credentials are malformed or
	// cannot be parsed (distinct from wrong credentials).
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
