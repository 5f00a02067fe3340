package kerberos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/internal/telemetry"
	"github.com/marmos91/dittoauth/pkg/auth/gss"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/metrics"
)

// ErrInvalidTokenRange is returned by Execute when offset and length do not
// describe a slice of the inbound buffer.
var ErrInvalidTokenRange = errors.New("kerberos: token range outside buffer")

// SessionSetup accepts one inbound Kerberos token per Execute call on behalf
// of a fixed acceptor principal.
//
// Each call acquires its own credential and context and releases both before
// returning, so a SessionSetup is safe for concurrent use.
type SessionSetup struct {
	provider  gss.Provider
	principal string
	registry  *oid.Registry
	metrics   metrics.NegotiationMetrics
}

// SessionSetupOption configures a SessionSetup.
type SessionSetupOption func(*SessionSetup)

// WithRegistry resolves the Kerberos mechanism through r instead of the
// process-wide registry.
func WithRegistry(r *oid.Registry) SessionSetupOption {
	return func(s *SessionSetup) { s.registry = r }
}

// WithMetrics records accept outcomes and disposal failures to m.
func WithMetrics(m metrics.NegotiationMetrics) SessionSetupOption {
	return func(s *SessionSetup) { s.metrics = m }
}

// NewSessionSetup creates a session-setup action for principal.
func NewSessionSetup(provider gss.Provider, principal string, opts ...SessionSetupOption) *SessionSetup {
	s := &SessionSetup{
		provider:  provider,
		principal: principal,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = oid.Default()
	}
	return s
}

// Principal returns the acceptor principal.
func (s *SessionSetup) Principal() string { return s.principal }

// Execute accepts blob[off:off+length] as a Kerberos security token.
//
// On success the returned details describe the established context. A
// failure to release the credential or context after a successful accept is
// reported alongside the details as an error matching gss.ErrResourceDisposal.
// A rejected token yields an error matching gss.ErrNegotiationFailed, joined
// with any release failure.
func (s *SessionSetup) Execute(ctx context.Context, blob []byte, off, length int) (*KerberosDetails, error) {
	if off < 0 || length < 0 || off > len(blob) || length > len(blob)-off {
		return nil, fmt.Errorf("%w: [%d:+%d] of %d bytes", ErrInvalidTokenRange, off, length, len(blob))
	}
	token := blob[off : off+length]

	start := time.Now()

	parent := logger.FromContext(ctx)
	requestID := ""
	if parent != nil {
		requestID = parent.RequestID
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, span := telemetry.StartSessionSetupSpan(ctx, requestID, s.principal, len(token))
	defer span.End()

	lc := logger.NewLogContext(requestID).
		WithMechanism(oid.KerberosV5.String()).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	if parent != nil {
		lc = lc.WithClientAddr(parent.ClientAddr)
	}
	ctx = logger.WithContext(ctx, lc)

	logger.DebugCtx(ctx, "Session setup started",
		logger.Service(s.principal),
		logger.TokenLen(len(token)))

	details, err := s.execute(ctx, token)

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, gss.ErrNegotiationFailed):
		outcome = metrics.OutcomeNegotiationFailed
	case details == nil && err != nil:
		outcome = metrics.OutcomeSetupFailed
	}
	if s.metrics != nil {
		s.metrics.RecordAccept(outcome, time.Since(start))
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.DisposalFailed(errors.Is(err, gss.ErrResourceDisposal)))
	}
	if details == nil {
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}

	span.SetAttributes(
		telemetry.ClientPrincipal(details.SourceName()),
		telemetry.Lifetime(details.RemainingLifetime()),
		telemetry.ResponseLength(details.ResponseLength()),
	)
	if alg, ok := details.SessionKeyAlgorithm(); ok {
		span.SetAttributes(telemetry.EncType(alg))
	}

	logger.InfoCtx(ctx, "Session setup complete",
		logger.Principal(details.SourceName()),
		logger.Service(details.TargetName()),
		logger.Lifetime(details.RemainingLifetime()),
		logger.DurationMs(start))

	return details, err
}

// execute runs one credential/context lifecycle. The release is deferred
// as soon as a credential exists, so it runs exactly once whichever step
// fails or panics.
func (s *SessionSetup) execute(ctx context.Context, token []byte) (details *KerberosDetails, err error) {
	mech, err := s.registry.Lookup(oid.KerberosV5)
	if err != nil {
		logger.ErrorCtx(ctx, "Kerberos mechanism not registered", logger.Err(err))
		return nil, err
	}

	res := &acceptorResources{ctx: ctx, metrics: s.metrics}

	res.cred, err = s.provider.AcquireCredential(s.principal, mech, gss.AcceptOnly, gss.IndefiniteLifetime)
	if err != nil {
		logger.WarnCtx(ctx, "Acquire acceptor credential failed",
			logger.Service(s.principal), logger.Err(err))
		return nil, fmt.Errorf("acquire credential for %s: %w", s.principal, err)
	}
	defer func() {
		releaseErr := res.release()
		switch {
		case releaseErr == nil:
		case err == nil:
			err = releaseErr
		default:
			err = errors.Join(err, releaseErr)
		}
	}()

	res.sc, err = newSecurityContext(s.provider, res.cred)
	if err != nil {
		logger.WarnCtx(ctx, "Create security context failed", logger.Err(err))
		return nil, fmt.Errorf("create security context: %w", err)
	}

	response, err := accept(res.sc, token)
	if err != nil {
		logger.WarnCtx(ctx, "Kerberos token rejected", logger.Err(err))
		return nil, fmt.Errorf("%w: %w", gss.ErrNegotiationFailed, err)
	}

	return detailsFromContext(res.sc, s.sessionKeyAlgorithm(ctx, res.sc), response), nil
}

func newSecurityContext(p gss.Provider, cred gss.Credential) (sc gss.SecurityContext, err error) {
	defer recoverInto(&err, "security context creation")
	return p.NewSecurityContext(cred)
}

func accept(sc gss.SecurityContext, token []byte) (response []byte, err error) {
	defer recoverInto(&err, "accept")
	return sc.Accept(token)
}

// sessionKeyAlgorithm returns "" when the context cannot report the
// algorithm; the inquiry never fails the setup.
func (s *SessionSetup) sessionKeyAlgorithm(ctx context.Context, sc gss.SecurityContext) string {
	inq, ok := sc.(gss.SessionKeyInquirer)
	if !ok {
		return ""
	}
	alg, err := inquire(inq)
	if err != nil {
		logger.WarnCtx(ctx, "Session key algorithm unavailable", logger.Err(err))
		return ""
	}
	return alg
}

func inquire(inq gss.SessionKeyInquirer) (alg string, err error) {
	defer recoverInto(&err, "session key inquiry")
	return inq.SessionKeyAlgorithm()
}

// recoverInto turns a panic in the deferring function into *err.
func recoverInto(err *error, op string) {
	if p := recover(); p != nil {
		*err = fmt.Errorf("panic during %s: %v", op, p)
	}
}

// acceptorResources owns the credential and context of one Execute call.
type acceptorResources struct {
	ctx     context.Context
	metrics metrics.NegotiationMetrics
	cred    gss.Credential
	sc      gss.SecurityContext
}

// release disposes the credential, then the context. Both are attempted; a
// context failure becomes the primary error when both fail.
func (r *acceptorResources) release() error {
	var credErr, ctxErr error
	if r.cred != nil {
		credErr = r.dispose(metrics.ResourceCredential, r.cred.Dispose)
		r.cred = nil
	}
	if r.sc != nil {
		ctxErr = r.dispose(metrics.ResourceContext, r.sc.Dispose)
		r.sc = nil
	}
	return gss.NewDisposalError(credErr, ctxErr)
}

func (r *acceptorResources) dispose(resource string, fn func() error) error {
	err := safeDispose(fn)
	if err == nil {
		return nil
	}
	if r.metrics != nil {
		r.metrics.RecordDisposalFailure(resource)
	}
	logger.WarnCtx(r.ctx, "GSS resource release failed",
		logger.Operation("dispose_"+resource), logger.Err(err))
	return fmt.Errorf("dispose %s: %w", resource, err)
}

// safeDispose runs fn, converting a panic into an error.
func safeDispose(fn func() error) (err error) {
	defer recoverInto(&err, "dispose")
	return fn()
}
