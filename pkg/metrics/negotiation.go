package metrics

import "time"

// Accept outcomes reported by RecordAccept.
const (
	OutcomeSuccess           = "success"
	OutcomeNegotiationFailed = "negotiation_failed"
	OutcomeSetupFailed       = "setup_failed"
)

// Resources reported by RecordDisposalFailure.
const (
	ResourceCredential = "credential"
	ResourceContext    = "context"
)

// NegotiationMetrics provides observability for SPNEGO negotiation and
// Kerberos session setup.
//
// This interface is optional - pass nil to disable metrics collection with
// zero overhead.
//
// Example usage:
//
//	m := prometheus.NewNegotiationMetrics()
//	setup := kerberos.NewSessionSetup(acceptor, principal, kerberos.WithMetrics(m))
type NegotiationMetrics interface {
	// RecordAccept records one session-setup call with its outcome
	// (OutcomeSuccess, OutcomeNegotiationFailed, OutcomeSetupFailed).
	RecordAccept(outcome string, duration time.Duration)

	// RecordDisposalFailure counts a failed release of a credential or
	// context (ResourceCredential, ResourceContext).
	RecordDisposalFailure(resource string)

	// RecordDecode counts an inbound NegTokenInit by shape ("spnego",
	// "legacy") or by error class ("malformed", "unsupported").
	RecordDecode(result string)

	// RecordKeytabReload counts a keytab reload attempt.
	RecordKeytabReload(success bool)

	// SetKeytabEntries updates the number of keys in the active keytab.
	SetKeytabEntries(n int)
}
