package model

import "fmt"

type OutcomeKind int

const (
	// OutcomeFailed means no account was created.
	OutcomeFailed OutcomeKind = iota
	// OutcomeAccountCreated means the account exists and the email is verified.
	OutcomeAccountCreated
	// OutcomeAccountCreatedVerificationFailed means the account exists but the code was not accepted.
	OutcomeAccountCreatedVerificationFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccountCreated:
		return "AccountCreated"
	case OutcomeAccountCreatedVerificationFailed:
		return "AccountCreatedVerificationFailed"
	case OutcomeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AccountRef identifies the account created by the account service.
type AccountRef struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"email"`
}

// SubmissionOutcome is the result of the register-then-verify sequence.
// Account creation and verification are two independent calls, so a failure of
// the second one does not undo the first.
type SubmissionOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Account *AccountRef `json:"account,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Err     error       `json:"-"`
}

func AccountCreated(ref AccountRef) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeAccountCreated, Account: &ref}
}

func AccountCreatedVerificationFailed(ref AccountRef, err error) SubmissionOutcome {
	return SubmissionOutcome{
		Kind:    OutcomeAccountCreatedVerificationFailed,
		Account: &ref,
		Reason:  Message(err),
		Err:     err,
	}
}

func Failed(err error) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeFailed, Reason: Message(err), Err: err}
}

// AccountExists reports whether an account was created, verified or not.
func (o SubmissionOutcome) AccountExists() bool {
	return o.Kind == OutcomeAccountCreated || o.Kind == OutcomeAccountCreatedVerificationFailed
}

func (o SubmissionOutcome) String() string {
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%v(%v)", o.Kind, o.Reason)
}
