package kerberos

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoauth/pkg/auth/gss"
)

func TestKerberosDetails_String(t *testing.T) {
	d := NewKerberosDetails("alice@EXAMPLE.COM", "cifs/server.example.com@EXAMPLE.COM", 3599,
		"aes256-cts-hmac-sha1-96", []byte{1, 2, 3})
	assert.Equal(t,
		"[Source=alice@EXAMPLE.COM,Target=cifs/server.example.com@EXAMPLE.COM,Remaining Lifetime=3599s,Session Key Algorithm=aes256-cts-hmac-sha1-96:Response=3 bytes]",
		d.String())

	unknown := NewKerberosDetails("bob", "svc", gss.IndefiniteLifetime, "", nil)
	assert.Contains(t, unknown.String(), "Session Key Algorithm=?")
	assert.Contains(t, unknown.String(), "Response=0 bytes")
}

func TestKerberosDetails_Names(t *testing.T) {
	tests := []struct {
		source string
		user   string
		domain string
	}{
		{"alice@EXAMPLE.COM", "alice", "EXAMPLE.COM"},
		{"host/client.example.com@EXAMPLE.COM", "host/client.example.com", "EXAMPLE.COM"},
		{"bob", "bob", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			d := NewKerberosDetails(tt.source, "svc", 0, "", nil)
			assert.Equal(t, tt.user, d.UserName())
			assert.Equal(t, tt.domain, d.Domain())
		})
	}
}

func TestKerberosDetails_Accessors(t *testing.T) {
	resp := []byte{0xa, 0xb}
	d := NewKerberosDetails("alice@EXAMPLE.COM", "svc@EXAMPLE.COM", 60, "rc4-hmac", resp)

	resp[0] = 0xff
	got := d.ResponseToken()
	assert.Equal(t, []byte{0xa, 0xb}, got, "constructor copies the response")

	got[1] = 0xff
	assert.Equal(t, []byte{0xa, 0xb}, d.ResponseToken(), "accessor returns a copy")
	assert.Equal(t, 2, d.ResponseLength())

	alg, ok := d.SessionKeyAlgorithm()
	assert.True(t, ok)
	assert.Equal(t, "rc4-hmac", alg)
	assert.Equal(t, 60, d.RemainingLifetime())
	assert.False(t, d.IndefiniteLifetime())

	d = NewKerberosDetails("alice", "svc", gss.IndefiniteLifetime, "", nil)
	_, ok = d.SessionKeyAlgorithm()
	assert.False(t, ok)
	assert.True(t, d.IndefiniteLifetime())
}

func TestKerberosDetails_Marshal(t *testing.T) {
	d := NewKerberosDetails("alice@EXAMPLE.COM", "svc@EXAMPLE.COM", 120, "aes128-cts-hmac-sha1-96", []byte{0xde, 0xad})

	t.Run("JSON", func(t *testing.T) {
		b, err := json.Marshal(d)
		require.NoError(t, err)

		var m map[string]any
		require.NoError(t, json.Unmarshal(b, &m))
		assert.Equal(t, "alice@EXAMPLE.COM", m["source"])
		assert.Equal(t, "alice", m["user_name"])
		assert.Equal(t, "EXAMPLE.COM", m["domain"])
		assert.Equal(t, float64(120), m["remaining_lifetime_s"])
		assert.Equal(t, "dead", m["response_token"])
	})

	t.Run("YAML", func(t *testing.T) {
		b, err := yaml.Marshal(d)
		require.NoError(t, err)
		assert.Contains(t, string(b), "target: svc@EXAMPLE.COM")
		assert.Contains(t, string(b), "session_key_algorithm: aes128-cts-hmac-sha1-96")
		assert.Contains(t, string(b), "response_length: 2")
	})

	t.Run("OmitsEmpty", func(t *testing.T) {
		b, err := json.Marshal(NewKerberosDetails("bob", "svc", 0, "", nil))
		require.NoError(t, err)
		assert.NotContains(t, string(b), "domain")
		assert.NotContains(t, string(b), "session_key_algorithm")
		assert.NotContains(t, string(b), "response_token")
	})
}
