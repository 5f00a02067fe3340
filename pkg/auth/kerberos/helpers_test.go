package kerberos

import (
	"sync"
	"testing"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/nametype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "EXAMPLE.COM"
	testSPN      = "cifs/server.example.com"
	testPassword = "service-password"
)

// newServiceKeytab returns a keytab holding an AES256 key for testSPN.
func newServiceKeytab(t *testing.T, password string) *keytab.Keytab {
	t.Helper()
	kt := keytab.New()
	require.NoError(t, kt.AddEntry(testSPN, testRealm, password, time.Now(), 1, etypeID.AES256_CTS_HMAC_SHA1_96))
	return kt
}

type apReqOptions struct {
	client string
	mutual bool
	subkey bool
	raw    bool
	start  time.Time
	end    time.Time
}

// issuedAPReq is a client AP-REQ together with the secrets needed to check
// the service's reply.
type issuedAPReq struct {
	token         []byte
	sessionKey    types.EncryptionKey
	authenticator types.Authenticator
}

// issueAPReq plays the KDC and the client: it issues a ticket for testSPN
// encrypted with kt and wraps it in an AP-REQ.
func issueAPReq(t *testing.T, kt *keytab.Keytab, opts apReqOptions) issuedAPReq {
	t.Helper()

	if opts.client == "" {
		opts.client = "alice"
	}
	now := time.Now().UTC()
	if opts.start.IsZero() {
		opts.start = now
	}
	if opts.end.IsZero() {
		opts.end = now.Add(time.Hour)
	}

	cname := types.NewPrincipalName(nametype.KRB_NT_PRINCIPAL, opts.client)
	sname := types.NewPrincipalName(nametype.KRB_NT_SRV_INST, testSPN)

	tkt, sessionKey, err := messages.NewTicket(cname, testRealm, sname, testRealm,
		types.NewKrbFlags(), kt, etypeID.AES256_CTS_HMAC_SHA1_96, 1,
		opts.start, opts.start, opts.end, opts.end)
	require.NoError(t, err)

	auth, err := types.NewAuthenticator(testRealm, cname)
	require.NoError(t, err)
	if opts.subkey {
		require.NoError(t, auth.GenerateSeqNumberAndSubKey(etypeID.AES256_CTS_HMAC_SHA1_96, 32))
	}

	apReq, err := messages.NewAPReq(tkt, sessionKey, auth)
	require.NoError(t, err)
	if opts.mutual {
		types.SetFlag(&apReq.APOptions, flags.APOptionMutualRequired)
	}

	b, err := apReq.Marshal()
	require.NoError(t, err)

	if !opts.raw {
		b = frameKerberos(t, b)
	}
	return issuedAPReq{token: b, sessionKey: sessionKey, authenticator: auth}
}

// frameKerberos wraps a raw AP-REQ in a GSS krb5 initial-context token.
func frameKerberos(t *testing.T, apReq []byte) []byte {
	t.Helper()
	b, err := asn1.Marshal(gssapi.OIDKRB5.OID())
	require.NoError(t, err)
	b = append(b, 0x01, 0x00)
	b = append(b, apReq...)
	return asn1tools.AddASNAppTag(b, 0)
}

// recordingMetrics is a NegotiationMetrics capturing every call.
type recordingMetrics struct {
	mu            sync.Mutex
	accepts       map[string]int
	disposals     map[string]int
	decodes       map[string]int
	reloads       map[bool]int
	keytabEntries int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		accepts:   make(map[string]int),
		disposals: make(map[string]int),
		decodes:   make(map[string]int),
		reloads:   make(map[bool]int),
	}
}

func (m *recordingMetrics) RecordAccept(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepts[outcome]++
}

func (m *recordingMetrics) RecordDisposalFailure(resource string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposals[resource]++
}

func (m *recordingMetrics) RecordDecode(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decodes[result]++
}

func (m *recordingMetrics) RecordKeytabReload(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads[success]++
}

func (m *recordingMetrics) SetKeytabEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keytabEntries = n
}

func (m *recordingMetrics) accept(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepts[outcome]
}

func (m *recordingMetrics) disposal(resource string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposals[resource]
}

func (m *recordingMetrics) decode(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decodes[result]
}
