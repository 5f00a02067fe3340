package kerberos

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jcmturner/gofork/encoding/asn1"
	"github.com/jcmturner/gokrb5/v8/asn1tools"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/iana/etypeID"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/iana/msgtype"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/service"
	"github.com/jcmturner/gokrb5/v8/types"

	"github.com/marmos91/dittoauth/internal/logger"
	"github.com/marmos91/dittoauth/pkg/auth/gss"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
)

// GSS krb5 inner token IDs (RFC 1964 section 1.1).
var (
	tokIDAPReq = [2]byte{0x01, 0x00}
	tokIDAPRep = [2]byte{0x02, 0x00}
)

// ASN.1 application tags of the Kerberos messages built or recognized here.
const (
	appTagGSSFrame     = 0
	appTagAPReq        = 14
	appTagAPRep        = 15
	appTagEncAPRepPart = 27
)

// KeytabSource supplies the service keys and clock-skew tolerance used to
// verify AP-REQs. Provider implements it.
type KeytabSource interface {
	Keytab() *keytab.Keytab
	MaxClockSkew() time.Duration
}

// Acceptor is a gss.Provider verifying Kerberos AP-REQs with gokrb5.
//
// Credentials snapshot the keytab current at acquisition, so a concurrent
// keytab reload never affects an exchange in flight.
type Acceptor struct {
	source       KeytabSource
	registry     *oid.Registry
	defaultRealm string
}

// AcceptorOption configures an Acceptor.
type AcceptorOption func(*Acceptor)

// WithDefaultRealm qualifies acceptor principals that carry no realm.
func WithDefaultRealm(realm string) AcceptorOption {
	return func(a *Acceptor) { a.defaultRealm = realm }
}

// WithAcceptorRegistry identifies mechanism OIDs through r.
func WithAcceptorRegistry(r *oid.Registry) AcceptorOption {
	return func(a *Acceptor) { a.registry = r }
}

// NewAcceptor creates an Acceptor over source.
func NewAcceptor(source KeytabSource, opts ...AcceptorOption) *Acceptor {
	a := &Acceptor{source: source}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = oid.Default()
	}
	return a
}

// AcquireCredential returns an accept-only credential for principal. The
// lifetime is ignored: keytab keys do not expire.
func (a *Acceptor) AcquireCredential(principal string, mech oid.MechanismOID, usage gss.Usage, lifetime int) (gss.Credential, error) {
	m, ok := a.registry.Identify(mech)
	if !ok || (m != oid.KerberosV5 && m != oid.MSKerberosV5) {
		return nil, fmt.Errorf("%w: %s", gss.ErrBadMech, mech)
	}
	if !usage.CanAccept() {
		return nil, fmt.Errorf("%w: %s cannot accept with usage %s", gss.ErrNoCredential, principal, usage)
	}

	kt := a.source.Keytab()
	if kt == nil {
		return nil, fmt.Errorf("%w: no keytab loaded", gss.ErrNoCredential)
	}

	pn, realm := types.ParseSPNString(principal)
	if realm == "" {
		realm = a.defaultRealm
	}
	if len(pn.NameString) == 0 || pn.NameString[0] == "" {
		return nil, fmt.Errorf("%w: empty principal", gss.ErrNoCredential)
	}
	if !keytabHasPrincipal(kt, pn, realm) {
		return nil, fmt.Errorf("%w: %s", gss.ErrNoCredential, principal)
	}

	logger.Debug("Acceptor credential acquired",
		logger.Service(pn.PrincipalNameString()),
		logger.KeyRealm, realm)

	return &credential{
		principal: pn.PrincipalNameString(),
		realm:     realm,
		keytab:    kt,
		skew:      a.source.MaxClockSkew(),
	}, nil
}

// NewSecurityContext creates an acceptor context bound to cred, which must
// come from this package's AcquireCredential.
func (a *Acceptor) NewSecurityContext(cred gss.Credential) (gss.SecurityContext, error) {
	c, ok := cred.(*credential)
	if !ok {
		return nil, fmt.Errorf("%w: foreign credential %T", gss.ErrNoCredential, cred)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return nil, fmt.Errorf("%w: credential disposed", gss.ErrNoCredential)
	}

	return &securityContext{
		principal: c.principal,
		realm:     c.realm,
		keytab:    c.keytab,
		skew:      c.skew,
	}, nil
}

func keytabHasPrincipal(kt *keytab.Keytab, pn types.PrincipalName, realm string) bool {
	for _, e := range kt.Entries {
		if realm != "" && e.Principal.Realm != realm {
			continue
		}
		if len(e.Principal.Components) != len(pn.NameString) {
			continue
		}
		match := true
		for i, c := range e.Principal.Components {
			if c != pn.NameString[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// credential is a keytab snapshot for one acceptor principal.
type credential struct {
	mu        sync.Mutex
	principal string
	realm     string
	keytab    *keytab.Keytab
	skew      time.Duration
	disposed  bool
}

// Dispose drops the keytab reference. It is idempotent.
func (c *credential) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keytab = nil
	c.disposed = true
	return nil
}

// securityContext verifies one AP-REQ.
type securityContext struct {
	mu        sync.Mutex
	principal string
	realm     string
	keytab    *keytab.Keytab
	skew      time.Duration

	established bool
	disposed    bool
	source      string
	target      string
	endTime     time.Time
	sessionKey  types.EncryptionKey
}

// Accept verifies a GSS-framed Kerberos token or a bare AP-REQ. The returned
// token is a GSS-framed AP-REP when the client asked for mutual
// authentication, and empty otherwise.
func (sc *securityContext) Accept(token []byte) ([]byte, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.disposed {
		return nil, gss.ErrContextDisposed
	}
	if sc.established {
		return nil, errors.New("kerberos: context already established")
	}

	apReq, err := parseAPReq(token)
	if err != nil {
		return nil, err
	}

	settings := service.NewSettings(
		sc.keytab,
		service.MaxClockSkew(sc.skew),
		service.DecodePAC(false),
		service.KeytabPrincipal(sc.principal),
	)

	ok, _, err := service.VerifyAPREQ(&apReq, settings)
	if err != nil {
		return nil, fmt.Errorf("verify AP-REQ: %w", err)
	}
	if !ok {
		return nil, errors.New("AP-REQ verification failed")
	}

	enc := apReq.Ticket.DecryptedEncPart
	mutual := types.IsFlagSet(&apReq.APOptions, flags.APOptionMutualRequired)

	logger.Debug("AP-REQ verified",
		logger.Principal(enc.CName.PrincipalNameString()),
		logger.KeyRealm, enc.CRealm,
		logger.Service(apReq.Ticket.SName.PrincipalNameString()),
		logger.KeyEncType, enc.Key.KeyType,
		"mutual_required", mutual,
		"has_subkey", hasSubkey(apReq))

	var response []byte
	if mutual {
		response, err = buildAPRep(apReq, enc.Key)
		if err != nil {
			return nil, fmt.Errorf("build AP-REP: %w", err)
		}
	}

	sc.source = enc.CName.PrincipalNameString() + "@" + enc.CRealm
	sc.target = apReq.Ticket.SName.PrincipalNameString() + "@" + apReq.Ticket.Realm
	sc.endTime = enc.EndTime
	sc.sessionKey = copyKey(enc.Key)
	if hasSubkey(apReq) {
		sc.sessionKey = copyKey(apReq.Authenticator.SubKey)
	}
	wipeKey(&apReq.Ticket.DecryptedEncPart.Key)
	wipeKey(&apReq.Authenticator.SubKey)
	sc.established = true

	return response, nil
}

func (sc *securityContext) SourceName() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.source
}

func (sc *securityContext) TargetName() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.target
}

// Lifetime returns whole seconds until the ticket end time, never negative.
func (sc *securityContext) Lifetime() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.established || sc.endTime.IsZero() {
		return gss.IndefiniteLifetime
	}
	remaining := int(time.Until(sc.endTime) / time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SessionKeyAlgorithm returns the RFC 3961 name of the context key's
// encryption type.
func (sc *securityContext) SessionKeyAlgorithm() (string, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.disposed {
		return "", gss.ErrContextDisposed
	}
	if !sc.established {
		return "", errors.New("kerberos: context not established")
	}
	name, ok := EncTypeName(sc.sessionKey.KeyType)
	if !ok {
		return "", fmt.Errorf("kerberos: unknown encryption type %d", sc.sessionKey.KeyType)
	}
	return name, nil
}

// Dispose wipes the session key. It is idempotent.
func (sc *securityContext) Dispose() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	wipeKey(&sc.sessionKey)
	sc.keytab = nil
	sc.disposed = true
	return nil
}

// parseAPReq strips an optional GSS initial-context frame and unmarshals the
// AP-REQ inside it.
func parseAPReq(token []byte) (messages.APReq, error) {
	var apReq messages.APReq
	if len(token) < 2 {
		return apReq, fmt.Errorf("kerberos token too short: %d bytes", len(token))
	}

	raw := token
	if token[0] != 0x60 {
		if token[0] != 0x40|0x20|appTagAPReq {
			return apReq, fmt.Errorf("unexpected kerberos token tag 0x%02x", token[0])
		}
	} else {
		var mech asn1.ObjectIdentifier
		rest, err := asn1.UnmarshalWithParams(token, &mech, fmt.Sprintf("application,explicit,tag:%d", appTagGSSFrame))
		if err != nil {
			return apReq, fmt.Errorf("unmarshal GSS frame: %w", err)
		}
		o, err := oid.FromObjectIdentifier(mech)
		if err != nil {
			return apReq, fmt.Errorf("GSS frame mechanism: %w", err)
		}
		reg := oid.Default()
		if !reg.Is(o, oid.KerberosV5) && !reg.Is(o, oid.MSKerberosV5) {
			return apReq, fmt.Errorf("%w: GSS frame carries %s", gss.ErrBadMech, o)
		}
		if len(rest) < 2 {
			return apReq, errors.New("GSS frame truncated before token ID")
		}
		if [2]byte{rest[0], rest[1]} != tokIDAPReq {
			return apReq, fmt.Errorf("unexpected krb5 token ID 0x%02x%02x", rest[0], rest[1])
		}
		raw = rest[2:]
	}

	if err := apReq.Unmarshal(raw); err != nil {
		return apReq, fmt.Errorf("unmarshal AP-REQ: %w", err)
	}
	return apReq, nil
}

// buildAPRep constructs the GSS-framed AP-REP proving the service decrypted
// the authenticator. A client subkey is echoed back.
func buildAPRep(apReq messages.APReq, sessionKey types.EncryptionKey) ([]byte, error) {
	part := messages.EncAPRepPart{
		CTime:          apReq.Authenticator.CTime,
		Cusec:          apReq.Authenticator.Cusec,
		SequenceNumber: apReq.Authenticator.SeqNumber,
	}
	if hasSubkey(apReq) {
		part.Subkey = apReq.Authenticator.SubKey
	}

	b, err := asn1.Marshal(part)
	if err != nil {
		return nil, fmt.Errorf("marshal EncAPRepPart: %w", err)
	}
	b = asn1tools.AddASNAppTag(b, appTagEncAPRepPart)

	ed, err := crypto.GetEncryptedData(b, sessionKey, keyusage.AP_REP_ENCPART, 0)
	if err != nil {
		return nil, fmt.Errorf("encrypt EncAPRepPart: %w", err)
	}

	rep := messages.APRep{
		PVNO:    5,
		MsgType: msgtype.KRB_AP_REP,
		EncPart: ed,
	}
	b, err = asn1.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("marshal AP-REP: %w", err)
	}
	b = asn1tools.AddASNAppTag(b, appTagAPRep)

	return wrapGSSToken(b, tokIDAPRep)
}

// wrapGSSToken frames inner as a krb5 GSS token (RFC 2743 section 3.1).
func wrapGSSToken(inner []byte, tokID [2]byte) ([]byte, error) {
	krb5, err := oid.Default().Lookup(oid.KerberosV5)
	if err != nil {
		return nil, err
	}
	b, err := asn1.Marshal(krb5.ObjectIdentifier())
	if err != nil {
		return nil, fmt.Errorf("marshal mechanism OID: %w", err)
	}
	b = append(b, tokID[:]...)
	b = append(b, inner...)
	return asn1tools.AddASNAppTag(b, appTagGSSFrame), nil
}

func hasSubkey(apReq messages.APReq) bool {
	return apReq.Authenticator.SubKey.KeyType != 0 &&
		len(apReq.Authenticator.SubKey.KeyValue) > 0
}

func copyKey(k types.EncryptionKey) types.EncryptionKey {
	return types.EncryptionKey{
		KeyType:  k.KeyType,
		KeyValue: append([]byte(nil), k.KeyValue...),
	}
}

func wipeKey(k *types.EncryptionKey) {
	for i := range k.KeyValue {
		k.KeyValue[i] = 0
	}
	k.KeyValue = nil
}

var encTypeNames = func() map[int32]string {
	names := make(map[int32][]string)
	for name, id := range etypeID.ETypesByName {
		names[id] = append(names[id], name)
	}
	out := make(map[int32]string, len(names))
	for id, aliases := range names {
		// The longest alias is the fully qualified RFC 3961 name.
		sort.Slice(aliases, func(i, j int) bool {
			if len(aliases[i]) != len(aliases[j]) {
				return len(aliases[i]) > len(aliases[j])
			}
			return aliases[i] < aliases[j]
		})
		out[id] = aliases[0]
	}
	return out
}()

// EncTypeName returns the name of a Kerberos encryption type ID, such as
// "aes256-cts-hmac-sha1-96" for 18.
func EncTypeName(id int32) (string, bool) {
	name, ok := encTypeNames[id]
	return name, ok
}

// EncTypeID resolves an encryption type name, case-insensitively.
func EncTypeID(name string) (int32, bool) {
	name = strings.TrimSpace(name)
	for n, id := range etypeID.ETypesByName {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return 0, false
}
