package model

import (
	"errors"
	"fmt"
)

var (
	ErrDraftMissing = fmt.Errorf("registration draft not found")
	ErrDraftCorrupt = fmt.Errorf("registration draft is corrupt")

	ErrNetworkUnavailable = fmt.Errorf("network unavailable")
	ErrServer             = fmt.Errorf("server error")

	ErrRateLimited            = fmt.Errorf("too many code requests")
	ErrInvalidEmail           = fmt.Errorf("invalid email address")
	ErrAlreadyVerified        = fmt.Errorf("email address already verified")
	ErrEmailAlreadyRegistered = fmt.Errorf("email address already registered")
	ErrCodeInvalid            = fmt.Errorf("invalid verification code")
	ErrCodeExpired            = fmt.Errorf("verification code has expired")

	ErrDuplicateEmail     = fmt.Errorf("an account with this email already exists")
	ErrValidationRejected = fmt.Errorf("registration rejected")
	ErrIncompleteDraft    = fmt.Errorf("registration draft is incomplete")
	ErrAttachmentTooLarge = fmt.Errorf("profile picture is too large")
	ErrAttachmentNotImage = fmt.Errorf("profile picture must be an image")
	ErrBusy               = fmt.Errorf("a request is already in progress")
	ErrInvalidTransition  = fmt.Errorf("action not allowed in the current step")
	ErrResendTooEarly     = fmt.Errorf("please wait before requesting a new code")
)

// ValidationError is a local, recoverable failure of a single form field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %v", e.Field, e.Reason)
}

// RemoteError is a classified failure reported by an external service.
// Kind is one of the sentinel errors above and Message is the server-supplied detail.
type RemoteError struct {
	Kind    error
	Message string
	Field   string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%v (%v): %v", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return e.Kind
}

func NewRemoteError(kind error, message string) *RemoteError {
	return &RemoteError{Kind: kind, Message: message}
}

// FieldOf returns the form field an error points at, if any.
func FieldOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	var re *RemoteError
	if errors.As(err, &re) {
		if re.Field != "" {
			return re.Field
		}
		if errors.Is(re.Kind, ErrEmailAlreadyRegistered) ||
			errors.Is(re.Kind, ErrDuplicateEmail) ||
			errors.Is(re.Kind, ErrInvalidEmail) {
			return FieldEmail
		}
	}
	if errors.Is(err, ErrEmailAlreadyRegistered) || errors.Is(err, ErrDuplicateEmail) {
		return FieldEmail
	}
	return ""
}

// Message returns the single human-readable message shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var re *RemoteError
	if errors.As(err, &re) {
		// server messages are surfaced verbatim; transport errors are not
		if re.Message != "" && !errors.Is(re.Kind, ErrNetworkUnavailable) {
			return re.Message
		}
		return re.Kind.Error()
	}
	for _, known := range []error{
		ErrDraftMissing, ErrDraftCorrupt, ErrIncompleteDraft,
		ErrNetworkUnavailable, ErrBusy, ErrInvalidTransition, ErrResendTooEarly,
		ErrEmailAlreadyRegistered, ErrDuplicateEmail,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return err.Error()
}
