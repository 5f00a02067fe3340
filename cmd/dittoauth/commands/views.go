package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/dittoauth/internal/cli/output"
	"github.com/marmos91/dittoauth/internal/cli/timeutil"
	"github.com/marmos91/dittoauth/pkg/auth"
	"github.com/marmos91/dittoauth/pkg/auth/gss"
	"github.com/marmos91/dittoauth/pkg/auth/kerberos"
	"github.com/marmos91/dittoauth/pkg/auth/oid"
	"github.com/marmos91/dittoauth/pkg/auth/spnego"
)

// mechanismView names an OID when the registry knows it.
type mechanismView struct {
	OID  string `json:"oid" yaml:"oid"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

func newMechanismViews(mechs []oid.MechanismOID) []mechanismView {
	views := make([]mechanismView, len(mechs))
	for i, m := range mechs {
		views[i] = mechanismView{OID: m.String()}
		if name, ok := oid.Default().Identify(m); ok {
			views[i].Name = name.String()
		}
	}
	return views
}

func (m mechanismView) String() string {
	if m.Name == "" {
		return m.OID
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.OID)
}

// tokenView is the decode command's rendering of a NegTokenInit.
type tokenView struct {
	Shape          string          `json:"shape" yaml:"shape"`
	Mechanisms     []mechanismView `json:"mechanisms" yaml:"mechanisms"`
	ContextFlags   *int            `json:"context_flags,omitempty" yaml:"context_flags,omitempty"`
	MechTokenBytes int             `json:"mech_token_length" yaml:"mech_token_length"`
	MechToken      string          `json:"mech_token,omitempty" yaml:"mech_token,omitempty"`
	Principal      string          `json:"principal_hint,omitempty" yaml:"principal_hint,omitempty"`
}

func newTokenView(t *spnego.NegTokenInit, enc output.Encoding) tokenView {
	v := tokenView{
		Shape:          "spnego",
		Mechanisms:     newMechanismViews(t.MechTypes),
		MechTokenBytes: len(t.MechToken),
		Principal:      t.Principal,
	}
	if t.Legacy {
		v.Shape = "kerberos"
	}
	if t.HasContextFlags() {
		flags := t.ContextFlags
		v.ContextFlags = &flags
	}
	if t.MechToken != nil {
		v.MechToken = enc.Encode(t.MechToken)
	}
	return v
}

func (v tokenView) Headers() []string { return []string{"FIELD", "VALUE"} }

func (v tokenView) Rows() [][]string {
	rows := [][]string{{"Shape", v.Shape}}
	for i, m := range v.Mechanisms {
		rows = append(rows, []string{fmt.Sprintf("Mechanism[%d]", i), m.String()})
	}
	flags := "-"
	if v.ContextFlags != nil {
		flags = fmt.Sprintf("0x%02x", *v.ContextFlags)
	}
	rows = append(rows,
		[]string{"Context Flags", flags},
		[]string{"Mech Token", fmt.Sprintf("%d bytes", v.MechTokenBytes)},
	)
	if v.Principal != "" {
		rows = append(rows, []string{"Principal Hint", v.Principal})
	}
	return rows
}

// offerView is the offer command's rendering of the server NegTokenInit.
type offerView struct {
	Mechanisms []mechanismView `json:"mechanisms" yaml:"mechanisms"`
	Principal  string          `json:"principal_hint,omitempty" yaml:"principal_hint,omitempty"`
	Token      string          `json:"token" yaml:"token"`
}

// resultView is the accept command's rendering of an AuthResult.
type resultView struct {
	Provider      string            `json:"provider" yaml:"provider"`
	Mechanism     string            `json:"mechanism" yaml:"mechanism"`
	Principal     string            `json:"principal" yaml:"principal"`
	Username      string            `json:"username" yaml:"username"`
	Domain        string            `json:"domain,omitempty" yaml:"domain,omitempty"`
	UID           uint32            `json:"uid" yaml:"uid"`
	GID           uint32            `json:"gid" yaml:"gid"`
	Groups        []uint32          `json:"groups,omitempty" yaml:"groups,omitempty"`
	SessionID     string            `json:"session_id" yaml:"session_id"`
	Attributes    map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	ResponseToken string            `json:"response_token,omitempty" yaml:"response_token,omitempty"`
}

func newResultView(res *auth.AuthResult, enc output.Encoding) resultView {
	v := resultView{
		Provider:   res.Provider,
		Mechanism:  res.Mechanism,
		Principal:  res.Identity.Principal,
		Username:   res.Identity.Username,
		Domain:     res.Identity.Domain,
		UID:        res.Identity.UID,
		GID:        res.Identity.GID,
		Groups:     res.Identity.Groups,
		SessionID:  res.Identity.SessionID,
		Attributes: res.Identity.Attributes,
	}
	if len(res.ResponseToken) > 0 {
		v.ResponseToken = enc.Encode(res.ResponseToken)
	}
	return v
}

func (v resultView) Headers() []string { return []string{"FIELD", "VALUE"} }

func (v resultView) Rows() [][]string {
	groups := make([]string, len(v.Groups))
	for i, g := range v.Groups {
		groups[i] = fmt.Sprint(g)
	}
	rows := [][]string{
		{"Provider", v.Provider},
		{"Mechanism", v.Mechanism},
		{"Principal", v.Principal},
		{"UID", fmt.Sprint(v.UID)},
		{"GID", fmt.Sprint(v.GID)},
		{"Groups", strings.Join(groups, ",")},
		{"Session", v.SessionID},
	}

	keys := make([]string, 0, len(v.Attributes))
	for k := range v.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := v.Attributes[k]
		if k == kerberos.AttrLifetime {
			val = formatLifetime(val)
		}
		rows = append(rows, []string{k, val})
	}

	rows = append(rows, []string{"Response", v.ResponseToken})
	return rows
}

func formatLifetime(seconds string) string {
	if seconds == fmt.Sprint(gss.IndefiniteLifetime) {
		return "indefinite"
	}
	return timeutil.FormatSeconds(seconds)
}
