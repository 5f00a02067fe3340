// Package spnego decodes and encodes SPNEGO negotiation tokens (RFC 4178).
//
// The initial NegTokenInit is handled by Codec on top of internal/der:
//
//	[APPLICATION 0] {
//	    OID 1.3.6.1.5.5.2,
//	    [0] SEQUENCE {
//	        [0] SEQUENCE OF OID   -- mechTypes, required
//	        [1] BIT STRING        -- context flags, optional
//	        [2] OCTET STRING      -- mechToken, required on decode
//	        [3] SEQUENCE { [0] GeneralString }  -- principal hint
//	    }
//	}
//
// Peers that skip SPNEGO and send a bare GSS Kerberos token (leading OID
// 1.2.840.113554.1.2.2) are accepted too: the whole blob becomes the
// mechanism token. The [3] principal hint is written by Encode for the
// server's initial offer but is never parsed by Decode.
//
// NegTokenResp messages are built and parsed with gokrb5's spnego package
// (see response.go).
package spnego

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/marmos91/dittoauth/internal/der"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
)

// NoContextFlags is the ContextFlags value of a token without a [1] field.
const NoContextFlags = -1

// Context flags, RFC 4178 Section 4.2.1. Bit i of the DER BIT STRING maps
// to 1<<i.
const (
	DelegFlag    = 1 << 0
	MutualFlag   = 1 << 1
	ReplayFlag   = 1 << 2
	SequenceFlag = 1 << 3
	AnonFlag     = 1 << 4
	ConfFlag     = 1 << 5
	IntegFlag    = 1 << 6
)

// NegTokenInit is the first message of a SPNEGO exchange.
//
// A decoded token is read-only. Tokens built for Encode carry only
// MechTypes and Principal.
type NegTokenInit struct {
	// MechTypes lists the offered mechanisms in preference order.
	MechTypes []oid.MechanismOID

	// ContextFlags holds the requested context flags, or NoContextFlags.
	ContextFlags int

	// MechToken is the optimistic mechanism token, nil when absent.
	MechToken []byte

	// Principal is the non-standard mechListMIC principal hint. A non-empty
	// value is always encoded.
	Principal string

	// HasPrincipal marks the hint present even when Principal is empty.
	HasPrincipal bool

	// Legacy is set when the token was a bare Kerberos token rather than
	// a SPNEGO-wrapped one.
	Legacy bool
}

// NewNegTokenInit builds a token for Encode offering mechs, optionally with a
// principal hint.
func NewNegTokenInit(mechs []oid.MechanismOID, principal string) *NegTokenInit {
	return &NegTokenInit{
		MechTypes:    append([]oid.MechanismOID(nil), mechs...),
		ContextFlags: NoContextFlags,
		Principal:    principal,
		HasPrincipal: principal != "",
	}
}

// WithPrincipal sets the principal hint and marks it present, so an empty
// name is still encoded.
func (t *NegTokenInit) WithPrincipal(principal string) *NegTokenInit {
	t.Principal = principal
	t.HasPrincipal = true
	return t
}

// PrincipalPresent reports whether the principal hint will be encoded.
func (t *NegTokenInit) PrincipalPresent() bool { return t.HasPrincipal || t.Principal != "" }

// HasOID reports whether o is among the offered mechanisms.
func (t *NegTokenInit) HasOID(o oid.MechanismOID) bool {
	for _, m := range t.MechTypes {
		if m == o {
			return true
		}
	}
	return false
}

// NumberOfOIDs returns the number of offered mechanisms.
func (t *NegTokenInit) NumberOfOIDs() int { return len(t.MechTypes) }

// OIDAt returns the mechanism at index i and whether i is in range.
func (t *NegTokenInit) OIDAt(i int) (oid.MechanismOID, bool) {
	if i < 0 || i >= len(t.MechTypes) {
		return oid.MechanismOID{}, false
	}
	return t.MechTypes[i], true
}

// HasContextFlags reports whether the token carried a [1] field.
func (t *NegTokenInit) HasContextFlags() bool { return t.ContextFlags != NoContextFlags }

// String summarizes the token for logs. Token bytes are never included.
func (t *NegTokenInit) String() string {
	var sb strings.Builder
	sb.WriteString("[NegTokenInit")

	if len(t.MechTypes) > 0 {
		ids := make([]string, len(t.MechTypes))
		for i, m := range t.MechTypes {
			ids[i] = m.String()
		}
		sb.WriteString(" mechTypes=")
		sb.WriteString(strings.Join(ids, ","))
	}
	if t.HasContextFlags() {
		fmt.Fprintf(&sb, " context=0x%x", t.ContextFlags)
	}
	if t.MechToken != nil {
		fmt.Fprintf(&sb, " token=%d bytes", len(t.MechToken))
	}
	if t.PrincipalPresent() {
		sb.WriteString(" principal=")
		sb.WriteString(t.Principal)
	}
	if t.Legacy {
		sb.WriteString(" legacy")
	}
	sb.WriteString("]")
	return sb.String()
}

// Codec decodes and encodes NegTokenInit messages against a mechanism
// registry. A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	registry *oid.Registry
}

// NewCodec returns a Codec resolving mechanisms through r.
func NewCodec(r *oid.Registry) *Codec {
	return &Codec{registry: r}
}

var defaultCodec = &Codec{}

// Decode decodes b with the process-wide registry.
func Decode(b []byte) (*NegTokenInit, error) { return defaultCodec.Decode(b) }

// DecodeRange decodes buf[off:off+length] with the process-wide registry.
func DecodeRange(buf []byte, off, length int) (*NegTokenInit, error) {
	return defaultCodec.DecodeRange(buf, off, length)
}

// Encode encodes t with the process-wide registry.
func Encode(t *NegTokenInit) ([]byte, error) { return defaultCodec.Encode(t) }

func (c *Codec) reg() *oid.Registry {
	if c.registry == nil {
		return oid.Default()
	}
	return c.registry
}

// DecodeRange validates the range and decodes buf[off:off+length].
func (c *Codec) DecodeRange(buf []byte, off, length int) (*NegTokenInit, error) {
	if off < 0 || length < 0 || off > len(buf) || length > len(buf)-off {
		return nil, fmt.Errorf("%w: range [%d:+%d] outside %d-byte buffer", ErrMalformedToken, off, length, len(buf))
	}
	return c.Decode(buf[off : off+length])
}

// Decode parses a NegTokenInit blob, or a bare Kerberos token.
func (c *Codec) Decode(b []byte) (*NegTokenInit, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrMalformedToken)
	}

	spnegoOID, err := c.reg().Lookup(oid.SPNEGO)
	if err != nil {
		return nil, err
	}
	krb5OID, err := c.reg().Lookup(oid.KerberosV5)
	if err != nil {
		return nil, err
	}

	_, r, err := der.UnwrapApplication(b)
	if err != nil {
		return nil, fmt.Errorf("%w: not a negotiation blob: %v", ErrMalformedToken, err)
	}

	mech, err := leadingMechanism(r)
	if err != nil {
		return nil, err
	}

	switch mech {
	case krb5OID:
		return &NegTokenInit{
			MechTypes:    []oid.MechanismOID{krb5OID},
			ContextFlags: NoContextFlags,
			MechToken:    bytes.Clone(b),
			Legacy:       true,
		}, nil

	case spnegoOID:
		return decodeNegTokenInit(r)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMechanism, mech)
	}
}

func leadingMechanism(r *der.Reader) (oid.MechanismOID, error) {
	first, err := r.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return oid.MechanismOID{}, fmt.Errorf("%w: not a negotiation blob: empty wrapper", ErrMalformedToken)
		}
		return oid.MechanismOID{}, fmt.Errorf("%w: not a negotiation blob: %v", ErrMalformedToken, err)
	}

	o, ok := first.(*der.OID)
	if !ok {
		return oid.MechanismOID{}, fmt.Errorf("%w: not a negotiation blob: leading %s", ErrMalformedToken, first.Kind())
	}
	if _, tagged := o.Tag(); tagged {
		return oid.MechanismOID{}, fmt.Errorf("%w: not a negotiation blob: tagged leading OID", ErrMalformedToken)
	}

	mech, err := oid.FromObjectIdentifier(o.Value)
	if err != nil {
		return oid.MechanismOID{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return mech, nil
}

func decodeNegTokenInit(r *der.Reader) (*NegTokenInit, error) {
	obj, err := r.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing NegTokenInit body", ErrMalformedToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	body, ok := obj.(*der.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: NegTokenInit body is %s, not SEQUENCE", ErrMalformedToken, obj.Kind())
	}
	if tag, _ := body.Tag(); tag != 0 {
		return nil, fmt.Errorf("%w: negotiation token choice [%d] is not NegTokenInit", ErrMalformedToken, tag)
	}

	t := &NegTokenInit{ContextFlags: NoContextFlags}

	mechTypes, err := decodeMechTypes(body.Tagged(0))
	if err != nil {
		return nil, err
	}
	t.MechTypes = mechTypes

	if f := body.Tagged(1); f != nil {
		bs, ok := f.(*der.BitString)
		if !ok {
			return nil, fmt.Errorf("%w: context flags are %s, not BIT STRING", ErrMalformedToken, f.Kind())
		}
		t.ContextFlags = bs.IntValue()
	}

	f := body.Tagged(2)
	if f == nil {
		return nil, fmt.Errorf("%w: missing mechanism token", ErrMalformedToken)
	}
	tok, ok := f.(*der.OctetString)
	if !ok {
		return nil, fmt.Errorf("%w: mechanism token is %s, not OCTET STRING", ErrMalformedToken, f.Kind())
	}
	t.MechToken = tok.Value
	if t.MechToken == nil {
		t.MechToken = []byte{}
	}

	return t, nil
}

func decodeMechTypes(f der.Object) ([]oid.MechanismOID, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: missing mechanism list", ErrMalformedToken)
	}
	seq, ok := f.(*der.Sequence)
	if !ok {
		return nil, fmt.Errorf("%w: mechanism list is %s, not SEQUENCE", ErrMalformedToken, f.Kind())
	}

	mechs := make([]oid.MechanismOID, 0, seq.Len())
	for i, el := range seq.Objects() {
		o, ok := el.(*der.OID)
		if !ok {
			return nil, fmt.Errorf("%w: mechanism list entry %d is %s", ErrMalformedToken, i, el.Kind())
		}
		m, err := oid.FromObjectIdentifier(o.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: mechanism list entry %d: %v", ErrMalformedToken, i, err)
		}
		mechs = append(mechs, m)
	}
	return mechs, nil
}

// Encode builds the SPNEGO-wrapped NegTokenInit offering t.MechTypes and,
// when set, the principal hint. Context flags and the mechanism token are
// not written, and the bare Kerberos shape is never produced.
func (c *Codec) Encode(t *NegTokenInit) ([]byte, error) {
	if t == nil || len(t.MechTypes) == 0 {
		return nil, fmt.Errorf("%w: empty mechanism list", ErrEncoding)
	}

	spnegoOID, err := c.reg().Lookup(oid.SPNEGO)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoding, err)
	}

	mechList := der.WithTag(0, der.NewSequence())
	for i, m := range t.MechTypes {
		if m.IsZero() {
			return nil, fmt.Errorf("%w: mechanism %d is unset", ErrEncoding, i)
		}
		mechList.Append(der.NewOID(m.ObjectIdentifier()))
	}

	body := der.WithTag(0, der.NewSequence(mechList))
	if t.PrincipalPresent() {
		body.Append(der.WithTag(3, der.NewSequence(
			der.WithTag(0, der.NewGeneralString(t.Principal)),
		)))
	}

	b, err := der.MarshalApplication(0, der.NewOID(spnegoOID.ObjectIdentifier()), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return b, nil
}
