package oid

import (
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/dittoauth/internal/logger"
)

// Mechanism names a well-known negotiation mechanism.
type Mechanism int

const (
	// SPNEGO is the negotiation pseudo-mechanism itself (RFC 4178).
	SPNEGO Mechanism = iota

	// KerberosV5 is the standard Kerberos 5 GSS mechanism (RFC 4121).
	KerberosV5

	// MSKerberosV5 is the legacy OID Windows clients offer for Kerberos.
	MSKerberosV5

	// KerberosUserToUser is the Kerberos user-to-user mechanism.
	KerberosUserToUser

	// NTLMSSP is the Microsoft NTLM security support provider.
	NTLMSSP
)

// Canonical dotted forms of the well-known mechanisms.
const (
	IDSPNEGO             = "1.3.6.1.5.5.2"
	IDKerberosV5         = "1.2.840.113554.1.2.2"
	IDMSKerberosV5       = "1.2.840.48018.1.2.2"
	IDKerberosUserToUser = "1.2.840.113554.1.2.2.3"
	IDNTLMSSP            = "1.3.6.1.4.1.311.2.2.10"
)

var mechanismNames = map[Mechanism]string{
	SPNEGO:             "spnego",
	KerberosV5:         "kerberos5",
	MSKerberosV5:       "mskerberos5",
	KerberosUserToUser: "kerberos5-u2u",
	NTLMSSP:            "ntlmssp",
}

func (m Mechanism) String() string {
	if name, ok := mechanismNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mechanism(%d)", int(m))
}

// MechanismByName resolves a configuration name ("kerberos5", "ntlmssp", ...).
// Matching is case-insensitive.
func MechanismByName(name string) (Mechanism, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range mechanismNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// Definition pairs a mechanism with its canonical dotted string.
type Definition struct {
	Mechanism Mechanism
	ID        string
}

// StandardDefinitions returns the fixed set of mechanisms registered by Default.
func StandardDefinitions() []Definition {
	return []Definition{
		{SPNEGO, IDSPNEGO},
		{KerberosV5, IDKerberosV5},
		{MSKerberosV5, IDMSKerberosV5},
		{KerberosUserToUser, IDKerberosUserToUser},
		{NTLMSSP, IDNTLMSSP},
	}
}

// Registry maps mechanisms to validated OIDs.
//
// A Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	byMechanism map[Mechanism]MechanismOID
	byOID       map[MechanismOID]Mechanism
}

// NewRegistry validates and registers defs.
//
// A definition whose ID is not a valid OID is logged and skipped; Lookup for
// that mechanism then returns ErrUnregisteredMechanism.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{
		byMechanism: make(map[Mechanism]MechanismOID, len(defs)),
		byOID:       make(map[MechanismOID]Mechanism, len(defs)),
	}

	for _, d := range defs {
		o, err := Parse(d.ID)
		if err != nil {
			logger.Error("Failed to register mechanism OID",
				logger.KeyMechanism, d.Mechanism.String(),
				"oid", d.ID,
				logger.KeyError, err)
			continue
		}
		r.byMechanism[d.Mechanism] = o
		r.byOID[o] = d.Mechanism
	}

	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry of StandardDefinitions.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(StandardDefinitions()...)
	})
	return defaultRegistry
}

// Lookup returns the OID registered for m.
func (r *Registry) Lookup(m Mechanism) (MechanismOID, error) {
	o, ok := r.byMechanism[m]
	if !ok {
		return MechanismOID{}, fmt.Errorf("%w: %s", ErrUnregisteredMechanism, m)
	}
	return o, nil
}

// Identify returns the mechanism registered under o.
func (r *Registry) Identify(o MechanismOID) (Mechanism, bool) {
	m, ok := r.byOID[o]
	return m, ok
}

// Is reports whether o is the OID registered for m. It is false when m is
// unregistered.
func (r *Registry) Is(o MechanismOID, m Mechanism) bool {
	registered, ok := r.byMechanism[m]
	return ok && registered == o
}
