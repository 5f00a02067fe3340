package spnego

import (
	"fmt"

	"github.com/jcmturner/gofork/encoding/asn1"
	gokrb5spnego "github.com/jcmturner/gokrb5/v8/spnego"

	"github.com/marmos91/dittoauth/pkg/auth/oid"
)

// NegState represents the state of SPNEGO negotiation.
// [RFC 4178] Section 4.2.2
type NegState int

const (
	// NegStateAcceptCompleted indicates successful authentication.
	NegStateAcceptCompleted NegState = 0

	// NegStateAcceptIncomplete indicates more tokens are needed.
	NegStateAcceptIncomplete NegState = 1

	// NegStateReject indicates authentication was rejected.
	NegStateReject NegState = 2

	// NegStateRequestMIC indicates a MIC is required.
	NegStateRequestMIC NegState = 3
)

func (s NegState) String() string {
	switch s {
	case NegStateAcceptCompleted:
		return "accept-completed"
	case NegStateAcceptIncomplete:
		return "accept-incomplete"
	case NegStateReject:
		return "reject"
	case NegStateRequestMIC:
		return "request-mic"
	default:
		return fmt.Sprintf("negstate(%d)", int(s))
	}
}

// NegTokenResp is a decoded server (or follow-up client) response.
type NegTokenResp struct {
	State         NegState
	SupportedMech oid.MechanismOID // zero when absent
	ResponseToken []byte
}

// BuildResponse creates a DER-encoded NegTokenResp.
//
// mech may be the zero MechanismOID when rejecting; responseToken may be
// empty, in which case the [2] field is omitted.
func BuildResponse(state NegState, mech oid.MechanismOID, responseToken []byte) ([]byte, error) {
	resp := gokrb5spnego.NegTokenResp{
		NegState:      asn1.Enumerated(state),
		SupportedMech: mech.ObjectIdentifier(),
		ResponseToken: responseToken,
	}

	b, err := resp.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: NegTokenResp: %v", ErrEncoding, err)
	}
	return b, nil
}

// BuildAcceptIncomplete creates a NegTokenResp indicating more tokens are needed.
func BuildAcceptIncomplete(mech oid.MechanismOID, responseToken []byte) ([]byte, error) {
	return BuildResponse(NegStateAcceptIncomplete, mech, responseToken)
}

// BuildAcceptComplete creates a NegTokenResp indicating successful
// authentication, carrying the mechanism's final token (for Kerberos, the
// AP-REP when mutual authentication was requested).
func BuildAcceptComplete(mech oid.MechanismOID, responseToken []byte) ([]byte, error) {
	return BuildResponse(NegStateAcceptCompleted, mech, responseToken)
}

// BuildReject creates a NegTokenResp indicating authentication failure.
func BuildReject() ([]byte, error) {
	return BuildResponse(NegStateReject, oid.MechanismOID{}, nil)
}

// ParseResponse decodes a NegTokenResp. A NegTokenInit yields
// ErrUnexpectedToken.
func ParseResponse(b []byte) (*NegTokenResp, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: %d-byte response", ErrMalformedToken, len(b))
	}

	isInit, tok, err := gokrb5spnego.UnmarshalNegToken(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if isInit {
		return nil, ErrUnexpectedToken
	}

	resp, ok := tok.(gokrb5spnego.NegTokenResp)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedToken, tok)
	}

	out := &NegTokenResp{
		State:         NegState(resp.NegState),
		ResponseToken: resp.ResponseToken,
	}
	if len(resp.SupportedMech) > 0 {
		mech, err := oid.FromObjectIdentifier(resp.SupportedMech)
		if err != nil {
			return nil, fmt.Errorf("%w: supported mechanism: %v", ErrMalformedToken, err)
		}
		out.SupportedMech = mech
	}
	return out, nil
}
