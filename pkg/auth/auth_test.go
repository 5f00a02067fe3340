package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider is a scripted AuthProvider.
type stubProvider struct {
	name    string
	handles bool
	result  *AuthResult
	err     error

	mu      sync.Mutex
	checked int
	called  int
}

func (s *stubProvider) CanHandle(_ []byte) bool {
	s.mu.Lock()
	s.checked++
	s.mu.Unlock()
	return s.handles
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Authenticate(_ context.Context, _ []byte) (*AuthResult, error) {
	s.mu.Lock()
	s.called++
	s.mu.Unlock()
	return s.result, s.err
}

func accepting(name string) *stubProvider {
	return &stubProvider{
		name:    name,
		handles: true,
		result:  &AuthResult{Provider: name, Authenticated: true},
	}
}

func TestAuthenticator_FirstMatchingProviderWins(t *testing.T) {
	first := &stubProvider{name: "ntlm"}
	second := accepting("kerberos")
	third := accepting("fallback")

	res, err := NewAuthenticator(first, second, third).Authenticate(context.Background(), []byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, "kerberos", res.Provider)

	assert.Equal(t, 1, first.checked)
	assert.Equal(t, 0, first.called)
	assert.Equal(t, 1, second.called)
	assert.Equal(t, 0, third.checked)
}

func TestAuthenticator_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		providers []AuthProvider
		want      string
		wantErr   error
	}{
		{
			name:      "NoProviders",
			providers: nil,
			wantErr:   ErrUnsupportedMechanism,
		},
		{
			name:      "NoneCanHandle",
			providers: []AuthProvider{&stubProvider{name: "a"}, &stubProvider{name: "b"}},
			wantErr:   ErrUnsupportedMechanism,
		},
		{
			name: "DeclineFallsThrough",
			providers: []AuthProvider{
				&stubProvider{name: "spnego-krb5", handles: true, err: ErrUnsupportedMechanism},
				accepting("spnego-ntlm"),
			},
			want: "spnego-ntlm",
		},
		{
			name: "AllDecline",
			providers: []AuthProvider{
				&stubProvider{name: "a", handles: true, err: ErrUnsupportedMechanism},
				&stubProvider{name: "b", handles: true, err: ErrUnsupportedMechanism},
			},
			wantErr: ErrUnsupportedMechanism,
		},
		{
			name: "FailureIsFinal",
			providers: []AuthProvider{
				&stubProvider{name: "krb5", handles: true, err: ErrAuthFailed},
				accepting("never"),
			},
			wantErr: ErrAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewAuthenticator(tt.providers...).Authenticate(context.Background(), []byte("blob"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Provider)
		})
	}
}

func TestAuthenticator_PassesResponseToken(t *testing.T) {
	p := accepting("kerberos")
	p.result.Mechanism = "kerberos5"
	p.result.ResponseToken = []byte{0xa1, 0x00}
	p.result.Identity = Identity{Username: "alice", Domain: "EXAMPLE.COM", Principal: "alice@EXAMPLE.COM"}

	res, err := NewAuthenticator(p).Authenticate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "kerberos5", res.Mechanism)
	assert.Equal(t, []byte{0xa1, 0x00}, res.ResponseToken)
	assert.Equal(t, "alice@EXAMPLE.COM", res.Identity.Principal)
}

func TestAuthenticator_Providers(t *testing.T) {
	t.Run("ReturnsCopy", func(t *testing.T) {
		a := NewAuthenticator(&stubProvider{name: "orig"})

		providers := a.Providers()
		require.Len(t, providers, 1)
		providers[0] = &stubProvider{name: "mutated"}

		assert.Equal(t, "orig", a.Providers()[0].Name())
	})

	t.Run("NilAuthenticator", func(t *testing.T) {
		var a *Authenticator
		assert.Nil(t, a.Providers())
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Nil(t, NewAuthenticator().Providers())
	})
}

func TestAuthenticator_Concurrent(t *testing.T) {
	a := NewAuthenticator(&stubProvider{name: "skip"}, accepting("concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := a.Authenticate(context.Background(), []byte("blob"))
			if assert.NoError(t, err) {
				assert.True(t, res.Authenticated)
			}
		}()
	}
	wg.Wait()
}
