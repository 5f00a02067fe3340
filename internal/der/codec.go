package der

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jcmturner/gofork/encoding/asn1"
)

// Reader walks a run of concatenated DER objects.
type Reader struct {
	rest []byte
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{rest: b}
}

// More reports whether unread bytes remain.
func (r *Reader) More() bool { return len(r.rest) > 0 }

// Next decodes the next object. It returns io.EOF when the input is exhausted.
func (r *Reader) Next() (Object, error) {
	if len(r.rest) == 0 {
		return nil, io.EOF
	}
	obj, rest, err := Unmarshal(r.rest)
	if err != nil {
		return nil, err
	}
	r.rest = rest
	return obj, nil
}

// UnwrapApplication parses an [APPLICATION n] constructed wrapper at the
// start of b and returns its tag number and a Reader over its contents.
// Bytes following the wrapper are ignored.
func UnwrapApplication(b []byte) (int, *Reader, error) {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(b, &raw); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Class != asn1.ClassApplication || !raw.IsCompound {
		return 0, nil, fmt.Errorf("%w: expected constructed application tag, got class %d tag %d",
			ErrUnexpectedObject, raw.Class, raw.Tag)
	}
	return raw.Tag, NewReader(raw.Bytes), nil
}

// Unmarshal decodes a single object from the start of b and returns the
// remaining bytes.
func Unmarshal(b []byte) (Object, []byte, error) {
	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(b, &raw)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj, err := fromRaw(raw)
	if err != nil {
		return nil, nil, err
	}
	return obj, rest, nil
}

func fromRaw(raw asn1.RawValue) (Object, error) {
	switch raw.Class {
	case asn1.ClassContextSpecific:
		return fromExplicitTag(raw)
	case asn1.ClassUniversal:
		return fromUniversal(raw)
	default:
		return nil, fmt.Errorf("%w: class %d tag %d", ErrUnexpectedObject, raw.Class, raw.Tag)
	}
}

// fromExplicitTag unwraps [n] { inner } and tags the inner object with n.
func fromExplicitTag(raw asn1.RawValue) (Object, error) {
	if !raw.IsCompound {
		return nil, fmt.Errorf("%w: implicit context tag [%d] is not supported", ErrUnexpectedObject, raw.Tag)
	}
	inner, rest, err := Unmarshal(raw.Bytes)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes inside [%d]", ErrMalformed, len(rest), raw.Tag)
	}
	if _, ok := inner.Tag(); ok {
		return nil, fmt.Errorf("%w: nested context tag inside [%d]", ErrUnexpectedObject, raw.Tag)
	}
	inner.setTag(raw.Tag)
	return inner, nil
}

func fromUniversal(raw asn1.RawValue) (Object, error) {
	switch raw.Tag {
	case asn1.TagOID:
		var oid asn1.ObjectIdentifier
		if _, err := asn1.Unmarshal(raw.FullBytes, &oid); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return NewOID(oid), nil

	case asn1.TagSequence:
		if !raw.IsCompound {
			return nil, fmt.Errorf("%w: primitive SEQUENCE", ErrMalformed)
		}
		seq := NewSequence()
		r := NewReader(raw.Bytes)
		for r.More() {
			child, err := r.Next()
			if err != nil {
				return nil, err
			}
			seq.Append(child)
		}
		return seq, nil

	case asn1.TagBitString:
		var bs asn1.BitString
		if _, err := asn1.Unmarshal(raw.FullBytes, &bs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return NewBitString(bs), nil

	case asn1.TagOctetString:
		if raw.IsCompound {
			return nil, fmt.Errorf("%w: constructed OCTET STRING", ErrMalformed)
		}
		return NewOctetString(bytes.Clone(raw.Bytes)), nil

	case tagGeneralString:
		if raw.IsCompound {
			return nil, fmt.Errorf("%w: constructed GeneralString", ErrMalformed)
		}
		return NewGeneralString(string(raw.Bytes)), nil

	default:
		return nil, fmt.Errorf("%w: universal tag %d", ErrUnexpectedObject, raw.Tag)
	}
}

// Marshal encodes o, including its explicit context tag when it has one.
func Marshal(o Object) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("%w: nil object", ErrInvalidObject)
	}
	body, err := marshalUntagged(o)
	if err != nil {
		return nil, err
	}
	n, ok := o.Tag()
	if !ok {
		return body, nil
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative context tag %d", ErrInvalidObject, n)
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        n,
		IsCompound: true,
		Bytes:      body,
	})
}

// MarshalApplication encodes objs inside an [APPLICATION tag] wrapper.
func MarshalApplication(tag int, objs ...Object) ([]byte, error) {
	body, err := marshalAll(objs)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassApplication,
		Tag:        tag,
		IsCompound: true,
		Bytes:      body,
	})
}

func marshalAll(objs []Object) ([]byte, error) {
	var buf bytes.Buffer
	for _, o := range objs {
		b, err := Marshal(o)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func marshalUntagged(o Object) ([]byte, error) {
	switch v := o.(type) {
	case *OID:
		b, err := asn1.Marshal(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: OID %v: %v", ErrInvalidObject, v.Value, err)
		}
		return b, nil

	case *Sequence:
		body, err := marshalAll(v.objects)
		if err != nil {
			return nil, err
		}
		return asn1.Marshal(asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSequence,
			IsCompound: true,
			Bytes:      body,
		})

	case *BitString:
		return asn1.Marshal(v.Value)

	case *OctetString:
		return asn1.Marshal(asn1.RawValue{
			Class: asn1.ClassUniversal,
			Tag:   asn1.TagOctetString,
			Bytes: v.Value,
		})

	case *GeneralString:
		return asn1.Marshal(asn1.RawValue{
			Class: asn1.ClassUniversal,
			Tag:   tagGeneralString,
			Bytes: []byte(v.Value),
		})

	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidObject, o)
	}
}
