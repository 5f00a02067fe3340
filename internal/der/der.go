// Package der models the small set of DER objects that appear in SPNEGO
// negotiation tokens.
//
// The primitive tag/length/value work is delegated to
// github.com/jcmturner/gofork/encoding/asn1 (the same codec gokrb5 uses).
// On top of it this package exposes a closed set of variants:
//
//   - *OID           OBJECT IDENTIFIER
//   - *Sequence      SEQUENCE with ordered children
//   - *BitString     BIT STRING (readable as integer flags)
//   - *OctetString   OCTET STRING
//   - *GeneralString GeneralString
//
// Any variant may carry an explicit context-specific tag ([n]). Decoding
// fails with ErrUnexpectedObject on anything outside this set, so callers can
// type-switch on the result instead of assuming a shape.
package der

import (
	"errors"
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// tagGeneralString is the universal tag number of GeneralString (X.680).
const tagGeneralString = 27

var (
	// ErrMalformed indicates the input is not well-formed DER
	// (truncated, bad length, trailing bytes inside a constructed value).
	ErrMalformed = errors.New("der: malformed data")

	// ErrUnexpectedObject indicates well-formed DER that is outside the
	// supported variant set or in an unexpected position.
	ErrUnexpectedObject = errors.New("der: unexpected object")

	// ErrInvalidObject indicates an in-memory object that cannot be encoded.
	ErrInvalidObject = errors.New("der: invalid object")
)

// Kind identifies a variant of Object.
type Kind int

const (
	KindOID Kind = iota
	KindSequence
	KindBitString
	KindOctetString
	KindGeneralString
)

func (k Kind) String() string {
	switch k {
	case KindOID:
		return "OID"
	case KindSequence:
		return "SEQUENCE"
	case KindBitString:
		return "BIT STRING"
	case KindOctetString:
		return "OCTET STRING"
	case KindGeneralString:
		return "GeneralString"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Object is one decoded (or to-be-encoded) DER value.
//
// The interface is sealed: only the variants in this package implement it.
type Object interface {
	// Kind returns the variant of the object.
	Kind() Kind

	// Tag returns the explicit context-specific tag number and whether the
	// object carries one.
	Tag() (int, bool)

	setTag(n int)
}

// tagged holds the optional explicit context tag shared by all variants.
type tagged struct {
	tagNo    int
	hasTagNo bool
}

func (t *tagged) Tag() (int, bool) { return t.tagNo, t.hasTagNo }

func (t *tagged) setTag(n int) {
	t.tagNo = n
	t.hasTagNo = true
}

// WithTag attaches an explicit context-specific tag [n] to o and returns it.
func WithTag[T Object](n int, o T) T {
	o.setTag(n)
	return o
}

// OID is an OBJECT IDENTIFIER.
type OID struct {
	tagged
	Value asn1.ObjectIdentifier
}

// NewOID returns an untagged OID object.
func NewOID(v asn1.ObjectIdentifier) *OID { return &OID{Value: v} }

func (*OID) Kind() Kind { return KindOID }

// Sequence is a SEQUENCE holding its children in order.
type Sequence struct {
	tagged
	objects []Object
}

// NewSequence returns an untagged sequence holding objs.
func NewSequence(objs ...Object) *Sequence {
	return &Sequence{objects: append([]Object(nil), objs...)}
}

func (*Sequence) Kind() Kind { return KindSequence }

// Append adds objects to the end of the sequence.
func (s *Sequence) Append(objs ...Object) {
	s.objects = append(s.objects, objs...)
}

// Len returns the number of children.
func (s *Sequence) Len() int { return len(s.objects) }

// At returns the child at index i, or nil when out of range.
func (s *Sequence) At(i int) Object {
	if i < 0 || i >= len(s.objects) {
		return nil
	}
	return s.objects[i]
}

// Objects returns a copy of the children.
func (s *Sequence) Objects() []Object {
	return append([]Object(nil), s.objects...)
}

// Tagged returns the first child carrying context tag [n], or nil.
func (s *Sequence) Tagged(n int) Object {
	for _, o := range s.objects {
		if tag, ok := o.Tag(); ok && tag == n {
			return o
		}
	}
	return nil
}

// BitString is a BIT STRING.
type BitString struct {
	tagged
	Value asn1.BitString
}

// NewBitString returns an untagged bit string.
func NewBitString(v asn1.BitString) *BitString { return &BitString{Value: v} }

// NewBitStringFromInt builds the shortest bit string whose bit i is set when
// bit i of v is set.
func NewBitStringFromInt(v int) *BitString {
	if v < 0 {
		v = 0
	}
	n := 0
	for x := v; x != 0; x >>= 1 {
		n++
	}
	bs := asn1.BitString{Bytes: make([]byte, (n+7)/8), BitLength: n}
	for i := 0; i < n; i++ {
		if v&(1<<i) != 0 {
			bs.Bytes[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return &BitString{Value: bs}
}

func (*BitString) Kind() Kind { return KindBitString }

// IntValue maps bit i of the string (bit 0 is the most significant bit of
// the first octet) onto 1<<i. Only the first 31 bits are considered.
func (b *BitString) IntValue() int {
	v := 0
	for i := 0; i < b.Value.BitLength && i < 31; i++ {
		if b.Value.At(i) != 0 {
			v |= 1 << i
		}
	}
	return v
}

// OctetString is an OCTET STRING.
type OctetString struct {
	tagged
	Value []byte
}

// NewOctetString returns an untagged octet string.
func NewOctetString(v []byte) *OctetString { return &OctetString{Value: v} }

func (*OctetString) Kind() Kind { return KindOctetString }

// GeneralString is a GeneralString, as used by Kerberos for names.
type GeneralString struct {
	tagged
	Value string
}

// NewGeneralString returns an untagged general string.
func NewGeneralString(v string) *GeneralString { return &GeneralString{Value: v} }

func (*GeneralString) Kind() Kind { return KindGeneralString }
