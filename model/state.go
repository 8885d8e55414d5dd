package model

import "fmt"

type State int

const (
	StateEntering State = iota
	StateStaged
	StateAwaitingCode
	StateSubmitting
	StateVerifying
	StateDone
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "Entering"
	case StateStaged:
		return "Staged"
	case StateAwaitingCode:
		return "AwaitingCode"
	case StateSubmitting:
		return "Submitting"
	case StateVerifying:
		return "Verifying"
	case StateDone:
		return "Done"
	case StateAbandoned:
		return "Abandoned"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the attempt is over.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAbandoned
}

// CanAbandon reports whether the user may go back to step 1 from s.
func (s State) CanAbandon() bool {
	return s == StateEntering || s == StateStaged || s == StateAwaitingCode
}

// Snapshot is what the pages render of a registration attempt.
type Snapshot struct {
	State         State              `json:"state"`
	Busy          bool               `json:"busy"`
	Email         string             `json:"email,omitempty"`
	CanResend     bool               `json:"canResend"`
	ResendIn      int                `json:"resendIn"`
	InvalidFields map[string]string  `json:"invalidFields,omitempty"`
	Message       string             `json:"message,omitempty"`
	Outcome       *SubmissionOutcome `json:"outcome,omitempty"`
}
