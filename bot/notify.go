package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	tb "gopkg.in/tucnak/telebot.v2"
)

// OnOutcome reports accounts that were created without a verified email so
// that they can be followed up. Other outcomes are only logged.
func (b *Bot) OnOutcome(email string, outcome model.SubmissionOutcome) {
	text, ok := FormatOutcome(email, outcome)
	if !ok {
		return
	}
	go func() {
		if _, err := b.Bot.Send(b.Chat, text, tb.Silent, tb.NoPreview); err != nil {
			log.Warn("notify outcome of %v: %v", MaskEmail(email), err)
		}
	}()
}

// FormatOutcome renders the notice for an outcome and reports whether it should be sent.
func FormatOutcome(email string, outcome model.SubmissionOutcome) (string, bool) {
	switch outcome.Kind {
	case model.OutcomeAccountCreatedVerificationFailed:
		id := "unknown"
		if outcome.Account != nil && outcome.Account.ID != "" {
			id = outcome.Account.ID
		}
		return fmt.Sprintf("Unverified account %v (%v): %v", id, MaskEmail(email), outcome.Reason), true
	case model.OutcomeFailed:
		// only failures on the service side need attention
		if errors.Is(outcome.Err, model.ErrServer) {
			return fmt.Sprintf("Registration of %v failed: %v", MaskEmail(email), outcome.Reason), true
		}
	}
	return "", false
}

// MaskEmail keeps the first letter of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
