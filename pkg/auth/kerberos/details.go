package kerberos

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/marmos91/dittoauth/pkg/auth/gss"
)

// KerberosDetails summarizes one completed accept operation.
//
// Values are immutable once constructed; ResponseToken returns a copy.
type KerberosDetails struct {
	source              string
	target              string
	lifetime            int
	sessionKeyAlgorithm string
	responseToken       []byte
}

// NewKerberosDetails builds a result. An empty algorithm means the provider
// could not report one.
func NewKerberosDetails(source, target string, lifetime int, algorithm string, response []byte) *KerberosDetails {
	return &KerberosDetails{
		source:              source,
		target:              target,
		lifetime:            lifetime,
		sessionKeyAlgorithm: algorithm,
		responseToken:       bytes.Clone(response),
	}
}

// detailsFromContext reads the negotiated state of an established context.
func detailsFromContext(sc gss.SecurityContext, algorithm string, response []byte) *KerberosDetails {
	return NewKerberosDetails(sc.SourceName(), sc.TargetName(), sc.Lifetime(), algorithm, response)
}

// SourceName returns the context initiator (client principal).
func (d *KerberosDetails) SourceName() string { return d.source }

// TargetName returns the context acceptor (service principal).
func (d *KerberosDetails) TargetName() string { return d.target }

// RemainingLifetime returns the remaining context lifetime in seconds, or
// gss.IndefiniteLifetime.
func (d *KerberosDetails) RemainingLifetime() int { return d.lifetime }

// IndefiniteLifetime reports whether the context never expires.
func (d *KerberosDetails) IndefiniteLifetime() bool { return d.lifetime == gss.IndefiniteLifetime }

// SessionKeyAlgorithm returns the session key's encryption type name and
// whether the provider reported one.
func (d *KerberosDetails) SessionKeyAlgorithm() (string, bool) {
	return d.sessionKeyAlgorithm, d.sessionKeyAlgorithm != ""
}

// ResponseToken returns a copy of the token for the peer.
func (d *KerberosDetails) ResponseToken() []byte { return bytes.Clone(d.responseToken) }

// ResponseLength returns the length of the response token.
func (d *KerberosDetails) ResponseLength() int { return len(d.responseToken) }

// UserName returns the part of the source name before '@', or the whole
// name when it has no realm.
func (d *KerberosDetails) UserName() string {
	user, _, _ := strings.Cut(d.source, "@")
	return user
}

// Domain returns the realm of the source name, or "" when it has none.
func (d *KerberosDetails) Domain() string {
	_, realm, _ := strings.Cut(d.source, "@")
	return realm
}

func (d *KerberosDetails) String() string {
	alg := d.sessionKeyAlgorithm
	if alg == "" {
		alg = "?"
	}
	return fmt.Sprintf("[Source=%s,Target=%s,Remaining Lifetime=%ds,Session Key Algorithm=%s:Response=%d bytes]",
		d.source, d.target, d.lifetime, alg, d.ResponseLength())
}

// detailsView is the serialized form used by the CLI.
type detailsView struct {
	Source              string `json:"source" yaml:"source"`
	Target              string `json:"target" yaml:"target"`
	UserName            string `json:"user_name" yaml:"user_name"`
	Domain              string `json:"domain,omitempty" yaml:"domain,omitempty"`
	RemainingLifetime   int    `json:"remaining_lifetime_s" yaml:"remaining_lifetime_s"`
	SessionKeyAlgorithm string `json:"session_key_algorithm,omitempty" yaml:"session_key_algorithm,omitempty"`
	ResponseLength      int    `json:"response_length" yaml:"response_length"`
	ResponseToken       string `json:"response_token,omitempty" yaml:"response_token,omitempty"`
}

func (d *KerberosDetails) view() detailsView {
	return detailsView{
		Source:              d.source,
		Target:              d.target,
		UserName:            d.UserName(),
		Domain:              d.Domain(),
		RemainingLifetime:   d.lifetime,
		SessionKeyAlgorithm: d.sessionKeyAlgorithm,
		ResponseLength:      d.ResponseLength(),
		ResponseToken:       hex.EncodeToString(d.responseToken),
	}
}

// MarshalJSON implements json.Marshaler.
func (d *KerberosDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.view())
}

// MarshalYAML implements yaml.Marshaler.
func (d *KerberosDetails) MarshalYAML() (interface{}, error) {
	return d.view(), nil
}
