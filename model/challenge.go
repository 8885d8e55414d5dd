package model

import (
	"time"
)

const (
	CodeLength     = 6
	ResendCooldown = 60 * time.Second
)

// OtpChallenge is the client view of the latest code sent to an email.
// Requesting a new code replaces the challenge; only the latest code is assumed valid.
type OtpChallenge struct {
	Email    string
	IssuedAt time.Time
	Cooldown time.Duration
}

func NewOtpChallenge(email string, now time.Time, cooldown time.Duration) OtpChallenge {
	if cooldown <= 0 {
		cooldown = ResendCooldown
	}
	return OtpChallenge{Email: email, IssuedAt: now, Cooldown: cooldown}
}

// ResendAt is the earliest time a new code may be requested.
func (c OtpChallenge) ResendAt() time.Time {
	return c.IssuedAt.Add(c.Cooldown)
}

// ParseCode checks that s is exactly CodeLength ASCII digits.
func ParseCode(s string) (string, error) {
	if len(s) != CodeLength {
		return "", &ValidationError{Field: FieldCode, Reason: "must be exactly 6 digits"}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", &ValidationError{Field: FieldCode, Reason: "must contain digits only"}
		}
	}
	return s, nil
}

// CodeEntry models the six single-digit inputs of the code screen.
// Focus movement is presentation only; String always concatenates by position.
type CodeEntry struct {
	slots [CodeLength]byte
}

// Set stores a digit at pos and returns the position that should receive focus next.
// Anything but a single digit leaves the slot untouched and keeps the focus.
func (e *CodeEntry) Set(pos int, ch string) (focus int) {
	if pos < 0 || pos >= CodeLength {
		return clampFocus(pos)
	}
	if len(ch) != 1 || ch[0] < '0' || ch[0] > '9' {
		return pos
	}
	e.slots[pos] = ch[0]
	if pos < CodeLength-1 {
		return pos + 1
	}
	return pos
}

// Backspace clears the slot at pos. Backspacing into an already empty slot
// moves focus back and clears the previous slot.
func (e *CodeEntry) Backspace(pos int) (focus int) {
	if pos < 0 || pos >= CodeLength {
		return clampFocus(pos)
	}
	if e.slots[pos] != 0 {
		e.slots[pos] = 0
		return pos
	}
	if pos == 0 {
		return 0
	}
	e.slots[pos-1] = 0
	return pos - 1
}

// Complete reports whether all slots hold a digit.
func (e *CodeEntry) Complete() bool {
	for _, c := range e.slots {
		if c == 0 {
			return false
		}
	}
	return true
}

// String returns the digits in slot order. Empty slots are skipped.
func (e *CodeEntry) String() string {
	b := make([]byte, 0, CodeLength)
	for _, c := range e.slots {
		if c != 0 {
			b = append(b, c)
		}
	}
	return string(b)
}

// Code returns the entered code once every slot is filled.
func (e *CodeEntry) Code() (string, error) {
	if !e.Complete() {
		return "", &ValidationError{Field: FieldCode, Reason: "must be exactly 6 digits"}
	}
	return ParseCode(e.String())
}

// CodeFromDigits builds a code from per-slot values, slot i holding digit i.
func CodeFromDigits(digits []string) (string, error) {
	if len(digits) != CodeLength {
		return "", &ValidationError{Field: FieldCode, Reason: "must be exactly 6 digits"}
	}
	var e CodeEntry
	for i, d := range digits {
		e.Set(i, d)
	}
	return e.Code()
}

func clampFocus(pos int) int {
	if pos < 0 {
		return 0
	}
	return CodeLength - 1
}
