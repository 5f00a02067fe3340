package auth

// Identity represents an authenticated identity in a protocol-neutral form.
type Identity struct {
	// Username is the local user name (the principal's primary component).
	Username string

	// Domain is the Kerberos realm or Windows domain.
	Domain string

	// UID is the numeric Unix user ID.
	UID uint32

	// GID is the primary Unix group ID.
	GID uint32

	// Groups contains supplementary Unix group IDs.
	Groups []uint32

	// Principal is the Kerberos principal name (e.g., "alice@EXAMPLE.COM").
	Principal string

	// SessionID identifies the negotiation that produced this identity.
	SessionID string

	// Anonymous indicates this is an unauthenticated or guest identity.
	Anonymous bool

	// Attributes holds extensible mechanism-specific metadata.
	// Examples: "enctype" -> "aes256-cts-hmac-sha1-96"
	Attributes map[string]string
}

// PrincipalMapper maps an authenticated principal to a local Identity.
//
// Thread safety: implementations must be safe for concurrent use.
type PrincipalMapper interface {
	// MapPrincipal maps a principal's user name and realm to an Identity.
	MapPrincipal(user, realm string) (*Identity, error)
}
