package gss

import (
	"errors"
	"strings"
)

var (
	// ErrNegotiationFailed indicates the provider rejected the inbound
	// token (expired ticket, wrong realm, bad checksum, ...). A peer may
	// retry with a fresh token but never with the same bytes.
	ErrNegotiationFailed = errors.New("gss: negotiation failed")

	// ErrResourceDisposal indicates releasing a credential or context failed.
	ErrResourceDisposal = errors.New("gss: resource disposal failed")

	// ErrBadMech indicates a mechanism the provider does not support.
	ErrBadMech = errors.New("gss: unsupported mechanism")

	// ErrNoCredential indicates no key is available for the principal.
	ErrNoCredential = errors.New("gss: no credential for principal")

	// ErrContextDisposed indicates use of a context after Dispose.
	ErrContextDisposed = errors.New("gss: context already disposed")
)

// DisposalError reports failed resource release. Primary is the failure
// reported first; Secondary holds the failures that happened alongside it,
// in release order.
//
// errors.Is(err, ErrResourceDisposal) holds for every DisposalError, and
// errors.Is/As also look through Primary and each Secondary.
type DisposalError struct {
	Primary   error
	Secondary []error
}

// NewDisposalError composes the given failures, skipping nils. The last
// non-nil failure becomes Primary and the earlier ones Secondary. It
// returns nil when every failure is nil.
func NewDisposalError(failures ...error) error {
	var errs []error
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &DisposalError{
		Primary:   errs[len(errs)-1],
		Secondary: errs[:len(errs)-1],
	}
}

func (e *DisposalError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrResourceDisposal.Error())
	if e.Primary != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Primary.Error())
	}
	for _, s := range e.Secondary {
		sb.WriteString(" (also: ")
		sb.WriteString(s.Error())
		sb.WriteString(")")
	}
	return sb.String()
}

// Is reports whether target is ErrResourceDisposal.
func (e *DisposalError) Is(target error) bool {
	return target == ErrResourceDisposal
}

// Unwrap returns Primary followed by Secondary.
func (e *DisposalError) Unwrap() []error {
	out := make([]error, 0, 1+len(e.Secondary))
	if e.Primary != nil {
		out = append(out, e.Primary)
	}
	return append(out, e.Secondary...)
}
