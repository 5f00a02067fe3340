// Package oid holds the negotiation mechanism identifiers used by SPNEGO.
//
// Well-known mechanisms are registered once, at first use of Default, into
// an immutable Registry. A canonical string that fails validation is logged
// and left unregistered; consumers asking for it get ErrUnregisteredMechanism
// rather than a zero value.
package oid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jcmturner/gofork/encoding/asn1"
)

var (
	// ErrInvalidOID indicates a string is not a valid dotted-integer OID.
	ErrInvalidOID = errors.New("oid: invalid object identifier")

	// ErrUnregisteredMechanism indicates a mechanism whose OID failed to
	// register (or was never registered) was requested.
	ErrUnregisteredMechanism = errors.New("oid: unregistered mechanism")
)

// MechanismOID is an immutable, comparable object identifier naming a
// negotiation mechanism. Two values are equal (==) when their arcs are equal.
//
// The zero value is not a valid OID; use Parse or FromObjectIdentifier.
type MechanismOID struct {
	dotted string
}

// Parse validates a dotted-integer string such as "1.2.840.113554.1.2.2".
func Parse(s string) (MechanismOID, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return MechanismOID{}, fmt.Errorf("%w: %q needs at least two arcs", ErrInvalidOID, s)
	}

	arcs := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		// Reject signs, blanks and leading zeros so the string form is canonical.
		if p == "" || p[0] == '+' || p[0] == '-' || (len(p) > 1 && p[0] == '0') {
			return MechanismOID{}, fmt.Errorf("%w: %q has malformed arc %q", ErrInvalidOID, s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return MechanismOID{}, fmt.Errorf("%w: %q has malformed arc %q", ErrInvalidOID, s, p)
		}
		arcs[i] = n
	}

	return FromObjectIdentifier(arcs)
}

// MustParse is like Parse but panics on error. Intended for tests and
// compile-time-known constants.
func MustParse(s string) MechanismOID {
	o, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return o
}

// FromObjectIdentifier converts a decoded ASN.1 object identifier.
func FromObjectIdentifier(id asn1.ObjectIdentifier) (MechanismOID, error) {
	if len(id) < 2 {
		return MechanismOID{}, fmt.Errorf("%w: %v needs at least two arcs", ErrInvalidOID, id)
	}
	if id[0] > 2 || (id[0] < 2 && id[1] >= 40) {
		return MechanismOID{}, fmt.Errorf("%w: %v has out-of-range leading arcs", ErrInvalidOID, id)
	}
	for _, arc := range id {
		if arc < 0 {
			return MechanismOID{}, fmt.Errorf("%w: %v has a negative arc", ErrInvalidOID, id)
		}
	}
	return MechanismOID{dotted: id.String()}, nil
}

// String returns the dotted-integer form.
func (o MechanismOID) String() string { return o.dotted }

// IsZero reports whether o is the zero (invalid) value.
func (o MechanismOID) IsZero() bool { return o.dotted == "" }

// ObjectIdentifier returns the arcs as an asn1.ObjectIdentifier.
func (o MechanismOID) ObjectIdentifier() asn1.ObjectIdentifier {
	if o.dotted == "" {
		return nil
	}
	parts := strings.Split(o.dotted, ".")
	id := make(asn1.ObjectIdentifier, len(parts))
	for i, p := range parts {
		// Already validated on construction.
		id[i], _ = strconv.Atoi(p)
	}
	return id
}

// Equal reports whether o names the same OID as id.
func (o MechanismOID) Equal(id asn1.ObjectIdentifier) bool {
	return o.dotted != "" && o.dotted == id.String()
}

// MarshalText implements encoding.TextMarshaler.
func (o MechanismOID) MarshalText() ([]byte, error) {
	return []byte(o.dotted), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *MechanismOID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
