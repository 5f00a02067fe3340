package kerberos

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jcmturner/gofork/encoding/asn1"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/internal/telemetry"
	"github.com/marmos91/dittoauth/pkg/auth"
	"github.com/marmos91/dittoauth/pkg/auth/gss"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/auth/spnego"
	"github.com/marmos91/dittoauth/pkg/metrics"
)

// ProviderName is the name the Authenticator reports in AuthResult.
const ProviderName = "kerberos"

// Identity attributes set by the Authenticator.
const (
	AttrEncType   = "enctype"
	AttrTarget    = "target"
	AttrLifetime  = "lifetime_s"
	AttrMechanism = "mechanism"
)

// Decode results reported to NegotiationMetrics.RecordDecode.
const (
	decodeSPNEGO      = "spnego"
	decodeLegacy      = "legacy"
	decodeMalformed   = "malformed"
	decodeUnsupported = "unsupported"
)

// Authenticator is the auth.AuthProvider for SMB-style session-setup
// security blobs: a SPNEGO NegTokenInit carrying a Kerberos token, or a bare
// GSS Kerberos token.
//
// Thread safety: safe for concurrent use.
type Authenticator struct {
	setup    *SessionSetup
	mapper   auth.PrincipalMapper
	codec    *spnego.Codec
	registry *oid.Registry
	metrics  metrics.NegotiationMetrics

	offer         []oid.MechanismOID
	principalHint string

	// DER encodings of the OIDs that may lead a handled blob.
	leadingOIDs [][]byte
}

var _ auth.AuthProvider = (*Authenticator)(nil)

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithOffer sets the mechanisms and principal hint of ServerOffer.
func WithOffer(mechs []oid.MechanismOID, principalHint string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.offer = append([]oid.MechanismOID(nil), mechs...)
		a.principalHint = principalHint
	}
}

// NewAuthenticator creates an Authenticator running setup for every
// Kerberos token and mapping principals through mapper. It shares setup's
// registry and metrics.
func NewAuthenticator(setup *SessionSetup, mapper auth.PrincipalMapper, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		setup:    setup,
		mapper:   mapper,
		registry: setup.registry,
		metrics:  setup.metrics,
	}
	a.codec = spnego.NewCodec(a.registry)

	for _, m := range []oid.Mechanism{oid.MSKerberosV5, oid.KerberosV5} {
		if o, err := a.registry.Lookup(m); err == nil {
			a.offer = append(a.offer, o)
		}
	}

	for _, opt := range opts {
		opt(a)
	}

	for _, m := range []oid.Mechanism{oid.SPNEGO, oid.KerberosV5} {
		o, err := a.registry.Lookup(m)
		if err != nil {
			continue
		}
		if enc, err := asn1.Marshal(o.ObjectIdentifier()); err == nil {
			a.leadingOIDs = append(a.leadingOIDs, enc)
		}
	}
	return a
}

// Name returns the provider name for logging and diagnostics.
func (a *Authenticator) Name() string { return ProviderName }

// CanHandle reports whether token looks like a SPNEGO or GSS Kerberos blob:
// an [APPLICATION 0] wrapper led by the SPNEGO or Kerberos v5 OID, or a bare
// AP-REQ ([APPLICATION 14]).
func (a *Authenticator) CanHandle(token []byte) bool {
	if len(token) < 2 {
		return false
	}
	if token[0] == 0x6E {
		return true
	}
	if token[0] != 0x60 {
		return false
	}

	// Skip the wrapper's length octets.
	off := 2
	if token[1]&0x80 != 0 {
		off += int(token[1] & 0x7f)
	}
	if off >= len(token) {
		return false
	}
	for _, enc := range a.leadingOIDs {
		if bytes.HasPrefix(token[off:], enc) {
			return true
		}
	}
	return false
}

// Authenticate decodes the negotiation blob, accepts its Kerberos token and
// maps the client principal to a local identity.
//
// The response token is a NegTokenResp accept-completed for SPNEGO blobs and
// the raw mechanism reply for bare Kerberos blobs. A failure to release GSS
// resources after a successful accept is logged and does not fail
// authentication.
func (a *Authenticator) Authenticate(ctx context.Context, token []byte) (*auth.AuthResult, error) {
	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(uuid.NewString())
	} else if lc.RequestID == "" {
		lc = lc.Clone()
		lc.RequestID = uuid.NewString()
	}
	ctx = logger.WithContext(ctx, lc)

	ctx, span := telemetry.StartNegotiationSpan(ctx, telemetry.SpanAuthenticate,
		telemetry.RequestID(lc.RequestID),
		telemetry.TokenLength(len(token)))
	defer span.End()

	nt, err := a.decode(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return nil, err
	}

	mech, ok := nt.OIDAt(0)
	if !ok {
		span.SetStatus(codes.Error, "decode")
		return nil, fmt.Errorf("%w: empty mechanism list", auth.ErrInvalidCredentials)
	}
	mechName := mech.String()
	if m, ok := a.registry.Identify(mech); ok {
		mechName = m.String()
	}
	span.SetAttributes(
		telemetry.Mechanism(mechName),
		telemetry.MechCount(nt.NumberOfOIDs()),
		telemetry.Legacy(nt.Legacy),
	)
	if nt.HasContextFlags() {
		span.SetAttributes(telemetry.ContextFlags(nt.ContextFlags))
	}
	lc = lc.WithMechanism(mechName)
	ctx = logger.WithContext(ctx, lc)

	if !a.registry.Is(mech, oid.KerberosV5) && !a.registry.Is(mech, oid.MSKerberosV5) {
		logger.DebugCtx(ctx, "Preferred mechanism is not Kerberos",
			logger.MechCount(nt.NumberOfOIDs()))
		return nil, fmt.Errorf("%w: preferred mechanism %s", auth.ErrUnsupportedMechanism, mechName)
	}

	details, err := a.setup.Execute(ctx, nt.MechToken, 0, len(nt.MechToken))
	if details == nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session setup")
		if errors.Is(err, gss.ErrNegotiationFailed) {
			return nil, fmt.Errorf("%w: %w", auth.ErrAuthFailed, err)
		}
		return nil, err
	}
	if err != nil {
		logger.WarnCtx(ctx, "Session setup succeeded with release failure", logger.Err(err))
	}

	ctx = logger.WithContext(ctx, lc.WithPrincipal(details.SourceName()))

	identity, err := a.mapper.MapPrincipal(details.UserName(), details.Domain())
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("map principal %s: %w", details.SourceName(), err)
	}
	identity.SessionID = lc.RequestID
	if identity.Attributes == nil {
		identity.Attributes = make(map[string]string)
	}
	identity.Attributes[AttrMechanism] = mechName
	identity.Attributes[AttrTarget] = details.TargetName()
	identity.Attributes[AttrLifetime] = fmt.Sprint(details.RemainingLifetime())
	if alg, ok := details.SessionKeyAlgorithm(); ok {
		identity.Attributes[AttrEncType] = alg
	}

	response := details.ResponseToken()
	if !nt.Legacy {
		response, err = spnego.BuildAcceptComplete(mech, response)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, fmt.Errorf("build SPNEGO response: %w", err)
		}
	}

	span.SetAttributes(
		telemetry.ClientPrincipal(details.SourceName()),
		telemetry.UID(identity.UID),
		telemetry.GID(identity.GID),
		telemetry.ResponseLength(len(response)),
	)

	logger.InfoCtx(ctx, "Kerberos authentication succeeded",
		logger.KeyUsername, identity.Username,
		logger.KeyDomain, identity.Domain,
		logger.UID(identity.UID),
		logger.GID(identity.GID))

	return &auth.AuthResult{
		Identity:      *identity,
		Authenticated: true,
		Provider:      ProviderName,
		Mechanism:     mechName,
		ResponseToken: response,
	}, nil
}

func (a *Authenticator) decode(ctx context.Context, token []byte) (*spnego.NegTokenInit, error) {
	nt, err := a.codec.Decode(token)
	if err != nil {
		result := decodeMalformed
		mapped := auth.ErrInvalidCredentials
		if errors.Is(err, spnego.ErrUnsupportedMechanism) {
			result, mapped = decodeUnsupported, auth.ErrUnsupportedMechanism
		}
		a.recordDecode(result)
		logger.DebugCtx(ctx, "Negotiation token rejected", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", mapped, err)
	}

	if nt.Legacy {
		a.recordDecode(decodeLegacy)
	} else {
		a.recordDecode(decodeSPNEGO)
	}
	logger.DebugCtx(ctx, "Negotiation token decoded",
		logger.MechCount(nt.NumberOfOIDs()),
		logger.KeyLegacy, nt.Legacy,
		logger.TokenLen(len(nt.MechToken)))
	return nt, nil
}

func (a *Authenticator) recordDecode(result string) {
	if a.metrics != nil {
		a.metrics.RecordDecode(result)
	}
}

// ServerOffer encodes the server's initial NegTokenInit advertising the
// configured mechanisms and principal hint.
func (a *Authenticator) ServerOffer() ([]byte, error) {
	return a.codec.Encode(spnego.NewNegTokenInit(a.offer, a.principalHint))
}

// Offer returns the mechanisms advertised by ServerOffer.
func (a *Authenticator) Offer() []oid.MechanismOID {
	return append([]oid.MechanismOID(nil), a.offer...)
}
