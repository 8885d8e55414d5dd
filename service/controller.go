package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
)

// DraftStager is the part of the draft store the controller needs.
type DraftStager interface {
	Stage(draft model.RegistrationDraft, attachment []byte) (model.StagedID, error)
	Load(id model.StagedID) (model.RegistrationDraft, []byte, error)
	Clear(id model.StagedID) error
}

// OutcomeObserver is told about every finished registration attempt.
type OutcomeObserver interface {
	OnOutcome(email string, outcome model.SubmissionOutcome)
}

type ControllerOptions struct {
	// Cooldown before a new code may be requested, model.ResendCooldown if zero.
	Cooldown time.Duration
	// Ticks drives the resend countdown; nil means manual (tests).
	Ticks    TickSource
	Observer OutcomeObserver
}

// Controller is the registration state machine of one browser session:
//
//	Entering -> Staged -> AwaitingCode -> Submitting -> Verifying -> Done
//
// with Abandoned reachable from Entering, Staged and AwaitingCode.
// Only one external call runs at a time; a second trigger while one is
// outstanding fails with model.ErrBusy. The mutex is not held during calls.
type Controller struct {
	mu sync.Mutex

	store     DraftStager
	otp       OtpGateway
	submitter Submitter
	observer  OutcomeObserver
	timer     *ResendTimer
	cooldown  time.Duration
	now       func() time.Time

	state        model.State
	stagedID     model.StagedID
	email        string
	blockedEmail string
	challenge    *model.OtpChallenge
	invalid      map[string]string
	message      string
	outcome      *model.SubmissionOutcome
	busy         bool
	// generation changes whenever the attempt is abandoned so late results can be dropped
	generation uint64
}

func NewController(store DraftStager, otp OtpGateway, submitter Submitter, opts ControllerOptions) *Controller {
	if opts.Cooldown <= 0 {
		opts.Cooldown = model.ResendCooldown
	}
	return &Controller{
		store:     store,
		otp:       otp,
		submitter: submitter,
		observer:  opts.Observer,
		timer:     NewResendTimer(opts.Cooldown, opts.Ticks),
		cooldown:  opts.Cooldown,
		now:       time.Now,
		state:     model.StateEntering,
	}
}

var errDiscarded = fmt.Errorf("%w: registration was abandoned", model.ErrInvalidTransition)

func (c *Controller) State() model.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StagedID returns the id of the currently staged draft, if any.
func (c *Controller) StagedID() model.StagedID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stagedID
}

func (c *Controller) CanResend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == model.StateAwaitingCode && !c.busy && c.timer.CanResend()
}

// Timer exposes the resend countdown.
func (c *Controller) Timer() *ResendTimer {
	return c.timer
}

// Stage validates the entry form and stages the draft. It may be called any
// number of times from Entering or Staged; a finished or abandoned attempt is
// replaced by a new one.
func (c *Controller) Stage(draft model.RegistrationDraft, attachment []byte) (model.StagedID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return "", model.ErrBusy
	}
	switch c.state {
	case model.StateEntering, model.StateStaged:
	case model.StateDone, model.StateAbandoned:
		c.restartLocked()
	default:
		return "", model.ErrInvalidTransition
	}
	draft.Normalize()
	draft.HasAttachment = false
	err := draft.Validate()
	if err == nil {
		err = model.ValidateAttachment(attachment)
	}
	if err == nil && c.blockedEmail != "" && draft.Email == c.blockedEmail {
		err = &model.ValidationError{Field: model.FieldEmail, Reason: model.ErrEmailAlreadyRegistered.Error()}
	}
	if err != nil {
		c.failLocked(err)
		return "", err
	}
	id, err := c.store.Stage(draft, attachment)
	if err != nil {
		// the previous draft, if any, stays staged
		c.message = "cannot save the registration form, please try again"
		log.Warn("stage draft for %v: %v", draft.Email, err)
		return "", err
	}
	if c.stagedID != "" {
		c.clearLocked()
	}
	c.stagedID = id
	c.email = draft.Email
	c.state = model.StateStaged
	c.invalid = nil
	c.message = ""
	log.Info("registration draft %v staged for %v", id, draft.Email)
	return id, nil
}

// RequestCode asks for the first code of the staged draft and moves to AwaitingCode.
func (c *Controller) RequestCode(ctx context.Context) error {
	c.mu.Lock()
	if c.state != model.StateStaged {
		c.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if c.busy {
		c.mu.Unlock()
		return model.ErrBusy
	}
	if c.email == c.blockedEmail {
		err := &model.ValidationError{Field: model.FieldEmail, Reason: model.ErrEmailAlreadyRegistered.Error()}
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	email, gen := c.email, c.generation
	c.busy = true
	c.mu.Unlock()

	err := c.otp.RequestCode(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if gen != c.generation {
		return errDiscarded
	}
	if err != nil {
		if errors.Is(err, model.ErrEmailAlreadyRegistered) {
			c.blockedEmail = email
		}
		c.failLocked(err)
		return err
	}
	c.startChallengeLocked(email)
	c.state = model.StateAwaitingCode
	return nil
}

// Resend re-issues the code once the cooldown has elapsed and restarts the cooldown.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if c.state != model.StateAwaitingCode {
		c.mu.Unlock()
		return model.ErrInvalidTransition
	}
	if c.busy {
		c.mu.Unlock()
		return model.ErrBusy
	}
	if !c.timer.CanResend() {
		c.mu.Unlock()
		return model.ErrResendTooEarly
	}
	email, gen := c.email, c.generation
	c.busy = true
	c.mu.Unlock()

	err := c.otp.RequestCode(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if gen != c.generation {
		return errDiscarded
	}
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.startChallengeLocked(email)
	return nil
}

// Verify creates the account from the staged draft and then verifies the code.
// The account call always comes first: its failure ends the attempt with
// OutcomeFailed and sends the user back to Entering, while a failed verification
// after a created account ends with OutcomeAccountCreatedVerificationFailed.
func (c *Controller) Verify(ctx context.Context, code string) (model.SubmissionOutcome, error) {
	c.mu.Lock()
	if c.state != model.StateAwaitingCode {
		c.mu.Unlock()
		return model.SubmissionOutcome{}, model.ErrInvalidTransition
	}
	if c.busy {
		c.mu.Unlock()
		return model.SubmissionOutcome{}, model.ErrBusy
	}
	code, err := model.ParseCode(code)
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return model.SubmissionOutcome{}, err
	}
	c.busy = true
	c.state = model.StateSubmitting
	c.timer.Cancel()
	c.invalid = nil
	c.message = ""
	id, email, gen := c.stagedID, c.email, c.generation
	c.mu.Unlock()

	draft, attachment, err := c.store.Load(id)
	if err != nil {
		log.Warn("load draft %v of %v: %v", id, email, err)
		return c.submitFailed(gen, email, err)
	}
	ref, err := c.submitter.Submit(ctx, draft, attachment)
	if err != nil {
		return c.submitFailed(gen, email, err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return model.SubmissionOutcome{}, errDiscarded
	}
	c.state = model.StateVerifying
	c.mu.Unlock()

	var outcome model.SubmissionOutcome
	if err := c.otp.VerifyCode(ctx, draft.Email, code); err != nil {
		log.Warn("account %v created but verification failed: %v", draft.Email, err)
		outcome = model.AccountCreatedVerificationFailed(ref, err)
	} else {
		outcome = model.AccountCreated(ref)
	}

	c.mu.Lock()
	c.busy = false
	if gen != c.generation {
		c.mu.Unlock()
		return outcome, errDiscarded
	}
	c.finishLocked(model.StateDone, outcome)
	c.message = outcome.Reason
	c.mu.Unlock()
	c.notify(email, outcome)
	return outcome, nil
}

// submitFailed ends the attempt after the draft could not be loaded or the account not created.
func (c *Controller) submitFailed(gen uint64, email string, err error) (model.SubmissionOutcome, error) {
	outcome := model.Failed(err)
	c.mu.Lock()
	c.busy = false
	if gen != c.generation {
		c.mu.Unlock()
		return outcome, errDiscarded
	}
	if errors.Is(err, model.ErrDuplicateEmail) {
		c.blockedEmail = email
	}
	c.finishLocked(model.StateEntering, outcome)
	c.failLocked(err)
	c.mu.Unlock()
	c.notify(email, outcome)
	return outcome, err
}

// Abandon sends the user back to step 1 and removes the staged draft.
// A call still in flight completes, but its result is dropped.
func (c *Controller) Abandon() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == model.StateAbandoned {
		return nil
	}
	if !c.state.CanAbandon() {
		return model.ErrInvalidTransition
	}
	c.generation++
	c.busy = false
	c.finishLocked(model.StateAbandoned, model.SubmissionOutcome{})
	c.outcome = nil
	log.Info("registration of %v abandoned", c.email)
	return nil
}

// Close tears the controller down, abandoning any unfinished attempt.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.busy = false
	c.timer.Cancel()
	if !c.state.Terminal() {
		c.finishLocked(model.StateAbandoned, model.SubmissionOutcome{})
		c.outcome = nil
	}
}

func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := model.Snapshot{
		State:   c.state,
		Busy:    c.busy,
		Email:   c.email,
		Message: c.message,
		Outcome: c.outcome,
	}
	if c.state == model.StateAwaitingCode {
		s.CanResend = !c.busy && c.timer.CanResend()
		s.ResendIn = int(c.timer.Remaining() / time.Second)
	}
	if len(c.invalid) > 0 {
		s.InvalidFields = make(map[string]string, len(c.invalid))
		for k, v := range c.invalid {
			s.InvalidFields[k] = v
		}
	}
	return s
}

// Challenge returns the latest code request, if any.
func (c *Controller) Challenge() (model.OtpChallenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.challenge == nil {
		return model.OtpChallenge{}, false
	}
	return *c.challenge, true
}

func (c *Controller) startChallengeLocked(email string) {
	ch := model.NewOtpChallenge(email, c.now(), c.cooldown)
	c.challenge = &ch
	c.timer.Start()
	c.invalid = nil
	c.message = ""
}

// finishLocked leaves the attempt: the timer stops and both draft entries go away.
func (c *Controller) finishLocked(state model.State, outcome model.SubmissionOutcome) {
	c.timer.Cancel()
	c.clearLocked()
	c.challenge = nil
	c.state = state
	c.outcome = &outcome
}

func (c *Controller) clearLocked() {
	if c.stagedID == "" {
		return
	}
	if err := c.store.Clear(c.stagedID); err != nil {
		log.Warn("clear draft %v: %v", c.stagedID, err)
	}
	c.stagedID = ""
}

func (c *Controller) restartLocked() {
	c.state = model.StateEntering
	c.outcome = nil
	c.message = ""
	c.invalid = nil
	c.email = ""
}

func (c *Controller) failLocked(err error) {
	c.message = model.Message(err)
	if field := model.FieldOf(err); field != "" {
		if c.invalid == nil {
			c.invalid = make(map[string]string)
		}
		c.invalid[field] = c.message
	}
}

func (c *Controller) notify(email string, outcome model.SubmissionOutcome) {
	if c.observer != nil {
		c.observer.OnOutcome(email, outcome)
	}
}
