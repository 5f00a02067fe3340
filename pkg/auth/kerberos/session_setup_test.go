package kerberos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/internal/telemetry"
	"github.com/marmos91/dittoauth/pkg/auth/gss"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/metrics"
)

// fakeProvider is a scriptable gss.Provider recording the order of events.
type fakeProvider struct {
	acquireErr   error
	newCtxErr    error
	acceptErr    error
	response     []byte
	credDispose  func() error
	ctxDispose   func() error
	algorithm    string
	algorithmErr error
	noInquirer   bool

	// Panics raised from the matching provider call.
	newCtxPanic    any
	acceptPanic    any
	algorithmPanic any

	// sourceFromToken derives the source name from the accepted bytes.
	sourceFromToken bool

	mu        sync.Mutex
	events    []string
	principal string
	mech      oid.MechanismOID
	usage     gss.Usage
	lifetime  int
	accepted  [][]byte
}

func (p *fakeProvider) record(ev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *fakeProvider) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *fakeProvider) AcquireCredential(principal string, mech oid.MechanismOID, usage gss.Usage, lifetime int) (gss.Credential, error) {
	p.mu.Lock()
	p.principal, p.mech, p.usage, p.lifetime = principal, mech, usage, lifetime
	p.mu.Unlock()
	p.record("acquire")
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return &fakeCredential{p: p}, nil
}

func (p *fakeProvider) NewSecurityContext(cred gss.Credential) (gss.SecurityContext, error) {
	p.record("new_context")
	if p.newCtxPanic != nil {
		panic(p.newCtxPanic)
	}
	if p.newCtxErr != nil {
		return nil, p.newCtxErr
	}
	sc := &fakeContext{p: p}
	if p.noInquirer {
		return struct{ gss.SecurityContext }{sc}, nil
	}
	return sc, nil
}

type fakeCredential struct {
	p *fakeProvider
}

func (c *fakeCredential) Dispose() error {
	if c.p == nil {
		return nil
	}
	c.p.record("dispose_credential")
	if c.p.credDispose != nil {
		return c.p.credDispose()
	}
	return nil
}

type fakeContext struct {
	p      *fakeProvider
	source string
}

func (c *fakeContext) Accept(token []byte) ([]byte, error) {
	c.p.record("accept")
	c.p.mu.Lock()
	c.p.accepted = append(c.p.accepted, append([]byte(nil), token...))
	c.p.mu.Unlock()
	if c.p.acceptPanic != nil {
		panic(c.p.acceptPanic)
	}
	if c.p.acceptErr != nil {
		return nil, c.p.acceptErr
	}
	c.source = "alice@EXAMPLE.COM"
	if c.p.sourceFromToken {
		c.source = string(token) + "@EXAMPLE.COM"
	}
	return c.p.response, nil
}

func (c *fakeContext) SourceName() string { return c.source }
func (c *fakeContext) TargetName() string { return testSPN + "@" + testRealm }
func (c *fakeContext) Lifetime() int      { return 600 }

func (c *fakeContext) Dispose() error {
	c.p.record("dispose_context")
	if c.p.ctxDispose != nil {
		return c.p.ctxDispose()
	}
	return nil
}

func (c *fakeContext) SessionKeyAlgorithm() (string, error) {
	if c.p.algorithmPanic != nil {
		panic(c.p.algorithmPanic)
	}
	if c.p.algorithmErr != nil {
		return "", c.p.algorithmErr
	}
	return c.p.algorithm, nil
}

var (
	errCredRelease = errors.New("credential release failed")
	errCtxRelease  = errors.New("context release failed")
	errBadTicket   = errors.New("ticket expired")
)

func TestSessionSetup_Success(t *testing.T) {
	p := &fakeProvider{response: []byte{0xaa, 0xbb}, algorithm: "aes256-cts-hmac-sha1-96"}
	m := newRecordingMetrics()
	s := NewSessionSetup(p, testSPN, WithMetrics(m))

	blob := []byte("token")
	details, err := s.Execute(context.Background(), blob, 0, len(blob))
	require.NoError(t, err)
	require.NotNil(t, details)

	assert.Equal(t, "alice@EXAMPLE.COM", details.SourceName())
	assert.Equal(t, testSPN+"@"+testRealm, details.TargetName())
	assert.Equal(t, 600, details.RemainingLifetime())
	assert.Equal(t, []byte{0xaa, 0xbb}, details.ResponseToken())
	alg, ok := details.SessionKeyAlgorithm()
	assert.True(t, ok)
	assert.Equal(t, "aes256-cts-hmac-sha1-96", alg)

	assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
	assert.Equal(t, testSPN, p.principal)
	assert.Equal(t, krb5OID(t), p.mech)
	assert.Equal(t, gss.AcceptOnly, p.usage)
	assert.Equal(t, gss.IndefiniteLifetime, p.lifetime)

	assert.Equal(t, 1, m.accept(metrics.OutcomeSuccess))
	assert.Zero(t, m.disposal(metrics.ResourceCredential))
	assert.Zero(t, m.disposal(metrics.ResourceContext))
}

func TestSessionSetup_AcceptsOnlyTheRange(t *testing.T) {
	p := &fakeProvider{}
	s := NewSessionSetup(p, testSPN)

	blob := []byte("xxTOKENyy")
	_, err := s.Execute(context.Background(), blob, 2, 5)
	require.NoError(t, err)
	require.Len(t, p.accepted, 1)
	assert.Equal(t, []byte("TOKEN"), p.accepted[0])
}

func TestSessionSetup_InvalidRange(t *testing.T) {
	blob := []byte("token")
	tests := []struct {
		name        string
		off, length int
	}{
		{"NegativeOffset", -1, 2},
		{"NegativeLength", 0, -1},
		{"OffsetPastEnd", 6, 0},
		{"LengthPastEnd", 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{}
			s := NewSessionSetup(p, testSPN)

			details, err := s.Execute(context.Background(), blob, tt.off, tt.length)
			assert.Nil(t, details)
			assert.ErrorIs(t, err, ErrInvalidTokenRange)
			assert.Empty(t, p.Events(), "no resources acquired")
		})
	}
}

func TestSessionSetup_AcceptFailure(t *testing.T) {
	p := &fakeProvider{acceptErr: errBadTicket}
	m := newRecordingMetrics()
	s := NewSessionSetup(p, testSPN, WithMetrics(m))

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, gss.ErrNegotiationFailed)
	assert.ErrorIs(t, err, errBadTicket)
	assert.NotErrorIs(t, err, gss.ErrResourceDisposal)

	assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
	assert.Equal(t, 1, m.accept(metrics.OutcomeNegotiationFailed))
}

func TestSessionSetup_PanickingProvider(t *testing.T) {
	t.Run("Accept", func(t *testing.T) {
		p := &fakeProvider{acceptPanic: "asn1: index out of range"}
		m := newRecordingMetrics()
		s := NewSessionSetup(p, testSPN, WithMetrics(m))

		var details *KerberosDetails
		var err error
		require.NotPanics(t, func() {
			details, err = s.Execute(context.Background(), []byte("t"), 0, 1)
		})
		assert.Nil(t, details)
		assert.ErrorIs(t, err, gss.ErrNegotiationFailed)
		assert.ErrorContains(t, err, "asn1: index out of range")
		assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
		assert.Equal(t, 1, m.accept(metrics.OutcomeNegotiationFailed))
	})

	t.Run("AcceptWithReleaseFailure", func(t *testing.T) {
		p := &fakeProvider{acceptPanic: "boom", credDispose: func() error { return errCredRelease }}
		s := NewSessionSetup(p, testSPN)

		_, err := s.Execute(context.Background(), []byte("t"), 0, 1)
		assert.ErrorIs(t, err, gss.ErrNegotiationFailed)
		assert.ErrorIs(t, err, errCredRelease)
	})

	t.Run("SessionKeyInquiry", func(t *testing.T) {
		p := &fakeProvider{response: []byte{0x01}, algorithmPanic: "no session key"}
		m := newRecordingMetrics()
		s := NewSessionSetup(p, testSPN, WithMetrics(m))

		details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
		require.NoError(t, err)
		require.NotNil(t, details)
		assert.Equal(t, "alice@EXAMPLE.COM", details.SourceName())
		_, ok := details.SessionKeyAlgorithm()
		assert.False(t, ok)
		assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
		assert.Equal(t, 1, m.accept(metrics.OutcomeSuccess))
	})

	t.Run("NewSecurityContext", func(t *testing.T) {
		p := &fakeProvider{newCtxPanic: "nil keytab"}
		m := newRecordingMetrics()
		s := NewSessionSetup(p, testSPN, WithMetrics(m))

		details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
		assert.Nil(t, details)
		assert.ErrorContains(t, err, "nil keytab")
		assert.NotErrorIs(t, err, gss.ErrNegotiationFailed)
		assert.Equal(t, []string{"acquire", "new_context", "dispose_credential"}, p.Events())
		assert.Equal(t, 1, m.accept(metrics.OutcomeSetupFailed))
	})
}

func TestSessionSetup_AcceptFailureWithReleaseFailure(t *testing.T) {
	p := &fakeProvider{
		acceptErr:  errBadTicket,
		ctxDispose: func() error { return errCtxRelease },
	}
	s := NewSessionSetup(p, testSPN)

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, gss.ErrNegotiationFailed)
	assert.ErrorIs(t, err, gss.ErrResourceDisposal)
	assert.ErrorIs(t, err, errCtxRelease)
}

func TestSessionSetup_ContextReleaseFailureKeepsResult(t *testing.T) {
	p := &fakeProvider{ctxDispose: func() error { return errCtxRelease }}
	m := newRecordingMetrics()
	s := NewSessionSetup(p, testSPN, WithMetrics(m))

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	require.NotNil(t, details)
	assert.Equal(t, "alice@EXAMPLE.COM", details.SourceName())

	require.Error(t, err)
	assert.ErrorIs(t, err, gss.ErrResourceDisposal)
	assert.NotErrorIs(t, err, gss.ErrNegotiationFailed)

	var de *gss.DisposalError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, de.Primary, errCtxRelease)
	assert.Empty(t, de.Secondary)

	assert.Equal(t, 1, m.accept(metrics.OutcomeSuccess))
	assert.Equal(t, 1, m.disposal(metrics.ResourceContext))
}

func TestSessionSetup_BothReleasesFail(t *testing.T) {
	p := &fakeProvider{
		credDispose: func() error { return errCredRelease },
		ctxDispose:  func() error { return errCtxRelease },
	}
	m := newRecordingMetrics()
	s := NewSessionSetup(p, testSPN, WithMetrics(m))

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	require.NotNil(t, details)

	var de *gss.DisposalError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, de.Primary, errCtxRelease)
	require.Len(t, de.Secondary, 1)
	assert.ErrorIs(t, de.Secondary[0], errCredRelease)

	assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
	assert.Equal(t, 1, m.disposal(metrics.ResourceCredential))
	assert.Equal(t, 1, m.disposal(metrics.ResourceContext))
}

func TestSessionSetup_DisposePanicIsRecovered(t *testing.T) {
	p := &fakeProvider{
		credDispose: func() error { panic("native handle corrupted") },
	}
	s := NewSessionSetup(p, testSPN)

	var (
		details *KerberosDetails
		err     error
	)
	require.NotPanics(t, func() {
		details, err = s.Execute(context.Background(), []byte("t"), 0, 1)
	})
	require.NotNil(t, details)
	assert.ErrorIs(t, err, gss.ErrResourceDisposal)
	assert.Contains(t, err.Error(), "native handle corrupted")

	// The context is still released after the credential panicked.
	assert.Equal(t, []string{"acquire", "new_context", "accept", "dispose_credential", "dispose_context"}, p.Events())
}

func TestSessionSetup_NewContextFailure(t *testing.T) {
	errNoContext := errors.New("context creation failed")

	t.Run("CredentialReleased", func(t *testing.T) {
		p := &fakeProvider{newCtxErr: errNoContext}
		m := newRecordingMetrics()
		s := NewSessionSetup(p, testSPN, WithMetrics(m))

		details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
		assert.Nil(t, details)
		assert.ErrorIs(t, err, errNoContext)
		assert.NotErrorIs(t, err, gss.ErrResourceDisposal)
		assert.Equal(t, []string{"acquire", "new_context", "dispose_credential"}, p.Events())
		assert.Equal(t, 1, m.accept(metrics.OutcomeSetupFailed))
	})

	t.Run("CredentialReleaseFailureAttached", func(t *testing.T) {
		p := &fakeProvider{
			newCtxErr:   errNoContext,
			credDispose: func() error { return errCredRelease },
		}
		s := NewSessionSetup(p, testSPN)

		_, err := s.Execute(context.Background(), []byte("t"), 0, 1)
		assert.ErrorIs(t, err, errNoContext)
		assert.ErrorIs(t, err, gss.ErrResourceDisposal)
		assert.ErrorIs(t, err, errCredRelease)
	})
}

func TestSessionSetup_AcquireFailure(t *testing.T) {
	p := &fakeProvider{acquireErr: gss.ErrNoCredential}
	m := newRecordingMetrics()
	s := NewSessionSetup(p, testSPN, WithMetrics(m))

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, gss.ErrNoCredential)
	assert.Equal(t, []string{"acquire"}, p.Events())
	assert.Equal(t, 1, m.accept(metrics.OutcomeSetupFailed))
}

func TestSessionSetup_SessionKeyAlgorithm(t *testing.T) {
	t.Run("InquiryFails", func(t *testing.T) {
		p := &fakeProvider{algorithmErr: errors.New("extension unsupported")}
		details, err := NewSessionSetup(p, testSPN).Execute(context.Background(), []byte("t"), 0, 1)
		require.NoError(t, err)

		_, ok := details.SessionKeyAlgorithm()
		assert.False(t, ok)
		assert.Contains(t, details.String(), "Session Key Algorithm=?")
	})

	t.Run("NotSupported", func(t *testing.T) {
		p := &fakeProvider{noInquirer: true, algorithm: "unused"}
		details, err := NewSessionSetup(p, testSPN).Execute(context.Background(), []byte("t"), 0, 1)
		require.NoError(t, err)

		_, ok := details.SessionKeyAlgorithm()
		assert.False(t, ok)
	})
}

func TestSessionSetup_UnregisteredMechanism(t *testing.T) {
	p := &fakeProvider{}
	reg := oid.NewRegistry(oid.Definition{Mechanism: oid.KerberosV5, ID: "1.2.840.not-an-oid"})
	s := NewSessionSetup(p, testSPN, WithRegistry(reg))

	details, err := s.Execute(context.Background(), []byte("t"), 0, 1)
	assert.Nil(t, details)
	assert.ErrorIs(t, err, oid.ErrUnregisteredMechanism)
	assert.Empty(t, p.Events())
}

func TestSessionSetup_ConcurrentCallsAreIndependent(t *testing.T) {
	p := &fakeProvider{sourceFromToken: true}
	s := NewSessionSetup(p, testSPN)

	const workers = 32
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user%02d", i)
			buf := []byte("pad" + user)
			details, err := s.Execute(context.Background(), buf, 3, len(user))
			if err != nil {
				errs <- err
				return
			}
			if details.UserName() != user {
				errs <- fmt.Errorf("worker %d got %q", i, details.UserName())
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	var creds, ctxs int
	for _, ev := range p.Events() {
		switch ev {
		case "dispose_credential":
			creds++
		case "dispose_context":
			ctxs++
		}
	}
	assert.Equal(t, workers, creds)
	assert.Equal(t, workers, ctxs)
}

func TestSessionSetup_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	telemetry.UseTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { telemetry.UseTracerProvider(nil) })

	p := &fakeProvider{algorithm: "aes128-cts-hmac-sha1-96"}
	s := NewSessionSetup(p, testSPN)

	ctx := logger.WithContext(context.Background(), logger.NewLogContext("req-42"))
	_, err := s.Execute(ctx, []byte("abc"), 0, 3)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, telemetry.SpanSessionSetup, span.Name())

	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "req-42", attrs[telemetry.AttrRequestID])
	assert.Equal(t, testSPN, attrs[telemetry.AttrServicePrincipal])
	assert.Equal(t, "3", attrs[telemetry.AttrTokenLength])
	assert.Equal(t, "alice@EXAMPLE.COM", attrs[telemetry.AttrClientPrincipal])
	assert.Equal(t, "aes128-cts-hmac-sha1-96", attrs[telemetry.AttrEncType])
}

func TestSessionSetup_WithAcceptor(t *testing.T) {
	a, p := newTestAcceptor(t)
	m := newRecordingMetrics()
	s := NewSessionSetup(a, p.ServicePrincipal(), WithMetrics(m))

	req := issueAPReq(t, p.Keytab(), apReqOptions{client: "frank", mutual: true})
	blob := append([]byte{0, 0, 0, 0}, req.token...)

	details, err := s.Execute(context.Background(), blob, 4, len(req.token))
	require.NoError(t, err)

	assert.Equal(t, "frank", details.UserName())
	assert.Equal(t, testRealm, details.Domain())
	assert.Equal(t, testSPN+"@"+testRealm, details.TargetName())
	assert.Positive(t, details.ResponseLength())
	assert.True(t, strings.HasPrefix(details.String(), "[Source=frank@EXAMPLE.COM,Target=cifs/server.example.com@EXAMPLE.COM,"))
	alg, ok := details.SessionKeyAlgorithm()
	assert.True(t, ok)
	assert.Equal(t, "aes256-cts-hmac-sha1-96", alg)

	// Replaying the same bytes fails.
	_, err = s.Execute(context.Background(), blob, 4, len(req.token))
	assert.ErrorIs(t, err, gss.ErrNegotiationFailed)
	assert.Equal(t, 1, m.accept(metrics.OutcomeSuccess))
	assert.Equal(t, 1, m.accept(metrics.OutcomeNegotiationFailed))
}
