package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeOtp struct {
	log        *callLog
	requestErr error
	verifyErr  error
	// when set, RequestCode signals entered and waits for gate
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeOtp) RequestCode(ctx context.Context, email string) error {
	f.log.add("requestCode")
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	return f.requestErr
}

func (f *fakeOtp) VerifyCode(ctx context.Context, email string, code string) error {
	f.log.add("verifyCode:" + code)
	return f.verifyErr
}

type fakeSubmitter struct {
	log         *callLog
	err         error
	drafts      []model.RegistrationDraft
	attachments [][]byte
	entered     chan struct{}
	gate        chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, draft model.RegistrationDraft, attachment []byte) (model.AccountRef, error) {
	f.log.add("submit")
	f.drafts = append(f.drafts, draft)
	f.attachments = append(f.attachments, attachment)
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	if f.err != nil {
		return model.AccountRef{}, f.err
	}
	return model.AccountRef{ID: "acc_1", Email: draft.Email}, nil
}

type fakeObserver struct {
	mu       sync.Mutex
	outcomes []model.SubmissionOutcome
}

func (f *fakeObserver) OnOutcome(email string, outcome model.SubmissionOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

type controllerFixture struct {
	ctl      *Controller
	store    *DraftStore
	otp      *fakeOtp
	sub      *fakeSubmitter
	observer *fakeObserver
	log      *callLog
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	log := &callLog{}
	f := &controllerFixture{
		store:    newTestStore(t),
		otp:      &fakeOtp{log: log},
		sub:      &fakeSubmitter{log: log},
		observer: &fakeObserver{},
		log:      log,
	}
	f.ctl = NewController(f.store, f.otp, f.sub, ControllerOptions{Observer: f.observer})
	return f
}

func (f *controllerFixture) staged(t *testing.T, attachment []byte) model.StagedID {
	t.Helper()
	id, err := f.ctl.Stage(testDraft(), attachment)
	require.NoError(t, err)
	return id
}

func (f *controllerFixture) awaitingCode(t *testing.T, attachment []byte) model.StagedID {
	t.Helper()
	id := f.staged(t, attachment)
	require.NoError(t, f.ctl.RequestCode(context.Background()))
	require.Equal(t, model.StateAwaitingCode, f.ctl.State())
	return id
}

func (f *controllerFixture) assertCleared(t *testing.T, id model.StagedID) {
	t.Helper()
	hasDraft, hasAttachment, err := f.store.Exists(id)
	require.NoError(t, err)
	assert.False(t, hasDraft, "draft left behind")
	assert.False(t, hasAttachment, "attachment left behind")
}

func TestControllerHappyPath(t *testing.T) {
	f := newControllerFixture(t)
	picture := jpegFixture(t, 2<<20)

	id := f.staged(t, picture)
	assert.Equal(t, model.StateStaged, f.ctl.State())
	assert.Equal(t, id, f.ctl.StagedID())

	require.NoError(t, f.ctl.RequestCode(context.Background()))
	assert.Equal(t, model.StateAwaitingCode, f.ctl.State())
	challenge, ok := f.ctl.Challenge()
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", challenge.Email)

	outcome, err := f.ctl.Verify(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccountCreated, outcome.Kind)
	assert.Equal(t, "acc_1", outcome.Account.ID)
	assert.Equal(t, model.StateDone, f.ctl.State())

	assert.Equal(t, []string{"requestCode", "submit", "verifyCode:123456"}, f.log.list())
	require.Len(t, f.sub.drafts, 1)
	want := testDraft()
	want.HasAttachment = true
	assert.True(t, want.Equal(f.sub.drafts[0]))
	assert.Equal(t, picture, f.sub.attachments[0])

	f.assertCleared(t, id)
	assert.Equal(t, model.StagedID(""), f.ctl.StagedID())
	require.Len(t, f.observer.outcomes, 1)
	assert.Equal(t, model.OutcomeAccountCreated, f.observer.outcomes[0].Kind)
}

func TestControllerDuplicateEmail(t *testing.T) {
	f := newControllerFixture(t)
	f.sub.err = model.NewRemoteError(model.ErrDuplicateEmail, "User already exists")
	id := f.awaitingCode(t, nil)

	outcome, err := f.ctl.Verify(context.Background(), "123456")
	assert.True(t, errors.Is(err, model.ErrDuplicateEmail))
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.False(t, outcome.AccountExists())
	assert.Equal(t, model.StateEntering, f.ctl.State())
	// the code is never checked when the account was not created
	assert.Equal(t, []string{"requestCode", "submit"}, f.log.list())
	f.assertCleared(t, id)

	snap := f.ctl.Snapshot()
	assert.Equal(t, "User already exists", snap.Message)
	assert.Contains(t, snap.InvalidFields, model.FieldEmail)

	// the same email is refused until it is changed
	_, err = f.ctl.Stage(testDraft(), nil)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.FieldEmail, ve.Field)

	other := testDraft()
	other.Email = "jane.doe@example.com"
	_, err = f.ctl.Stage(other, nil)
	require.NoError(t, err)
}

func TestControllerVerificationFailedAfterCreate(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.verifyErr = model.NewRemoteError(model.ErrCodeInvalid, "Invalid code")
	id := f.awaitingCode(t, nil)

	outcome, err := f.ctl.Verify(context.Background(), "654321")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccountCreatedVerificationFailed, outcome.Kind)
	assert.True(t, outcome.AccountExists())
	assert.True(t, errors.Is(outcome.Err, model.ErrCodeInvalid))
	assert.Equal(t, model.StateDone, f.ctl.State())
	assert.Equal(t, []string{"requestCode", "submit", "verifyCode:654321"}, f.log.list())
	f.assertCleared(t, id)

	require.Len(t, f.observer.outcomes, 1)
	assert.Equal(t, model.OutcomeAccountCreatedVerificationFailed, f.observer.outcomes[0].Kind)
	snap := f.ctl.Snapshot()
	require.NotNil(t, snap.Outcome)
	assert.Equal(t, model.OutcomeAccountCreatedVerificationFailed, snap.Outcome.Kind)
}

func TestControllerDraftLost(t *testing.T) {
	f := newControllerFixture(t)
	id := f.awaitingCode(t, nil)
	require.NoError(t, f.store.Clear(id))

	outcome, err := f.ctl.Verify(context.Background(), "123456")
	assert.True(t, errors.Is(err, model.ErrDraftMissing))
	assert.Equal(t, model.OutcomeFailed, outcome.Kind)
	assert.Equal(t, model.StateEntering, f.ctl.State())
	assert.Empty(t, f.sub.drafts)
}

func TestControllerStageValidation(t *testing.T) {
	f := newControllerFixture(t)
	d := testDraft()
	d.Email = "not-an-email"
	_, err := f.ctl.Stage(d, nil)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.FieldEmail, ve.Field)
	assert.Equal(t, model.StateEntering, f.ctl.State())
	assert.Contains(t, f.ctl.Snapshot().InvalidFields, model.FieldEmail)

	_, err = f.ctl.Stage(testDraft(), []byte("not a picture"))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.FieldProfilePicture, ve.Field)
	assert.Equal(t, model.StagedID(""), f.ctl.StagedID())
}

func TestControllerRestageReplacesDraft(t *testing.T) {
	f := newControllerFixture(t)
	first := f.staged(t, jpegFixture(t, 1024))
	second := f.staged(t, nil)
	assert.NotEqual(t, first, second)
	f.assertCleared(t, first)
	hasDraft, _, err := f.store.Exists(second)
	require.NoError(t, err)
	assert.True(t, hasDraft)
}

func TestControllerInvalidTransitions(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	assert.True(t, errors.Is(f.ctl.RequestCode(ctx), model.ErrInvalidTransition))
	assert.True(t, errors.Is(f.ctl.Resend(ctx), model.ErrInvalidTransition))
	_, err := f.ctl.Verify(ctx, "123456")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	f.staged(t, nil)
	_, err = f.ctl.Verify(ctx, "123456")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	require.NoError(t, f.ctl.RequestCode(ctx))
	_, err = f.ctl.Stage(testDraft(), nil)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
	assert.Empty(t, f.sub.drafts)
}

func TestControllerMalformedCode(t *testing.T) {
	f := newControllerFixture(t)
	f.awaitingCode(t, nil)

	_, err := f.ctl.Verify(context.Background(), "12a45")
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.FieldCode, ve.Field)
	assert.Equal(t, model.StateAwaitingCode, f.ctl.State())
	assert.Empty(t, f.sub.drafts)
}

func TestControllerRequestCodeFailure(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.requestErr = model.NewRemoteError(model.ErrRateLimited, "Too many requests")
	id := f.staged(t, nil)

	err := f.ctl.RequestCode(context.Background())
	assert.True(t, errors.Is(err, model.ErrRateLimited))
	assert.Equal(t, model.StateStaged, f.ctl.State())
	assert.Equal(t, "Too many requests", f.ctl.Snapshot().Message)
	hasDraft, _, err := f.store.Exists(id)
	require.NoError(t, err)
	assert.True(t, hasDraft)

	// retry once the service recovers
	f.otp.requestErr = nil
	require.NoError(t, f.ctl.RequestCode(context.Background()))
	assert.Equal(t, model.StateAwaitingCode, f.ctl.State())
	assert.Empty(t, f.ctl.Snapshot().Message)
}

func TestControllerEmailAlreadyRegistered(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.requestErr = model.NewRemoteError(model.ErrEmailAlreadyRegistered, "Email already registered")
	f.staged(t, nil)

	err := f.ctl.RequestCode(context.Background())
	assert.True(t, errors.Is(err, model.ErrEmailAlreadyRegistered))
	assert.Equal(t, model.StateStaged, f.ctl.State())

	// no further code requests for that email
	f.otp.requestErr = nil
	err = f.ctl.RequestCode(context.Background())
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"requestCode"}, f.log.list())
}

func TestControllerResendCooldown(t *testing.T) {
	f := newControllerFixture(t)
	f.awaitingCode(t, nil)
	ctx := context.Background()

	assert.False(t, f.ctl.CanResend())
	assert.Equal(t, model.ErrResendTooEarly, f.ctl.Resend(ctx))
	assert.Equal(t, 60, f.ctl.Snapshot().ResendIn)

	f.ctl.Timer().Advance(59 * time.Second)
	assert.Equal(t, model.ErrResendTooEarly, f.ctl.Resend(ctx))

	f.ctl.Timer().Advance(time.Second)
	assert.True(t, f.ctl.CanResend())
	assert.True(t, f.ctl.Snapshot().CanResend)
	require.NoError(t, f.ctl.Resend(ctx))
	assert.Equal(t, []string{"requestCode", "requestCode"}, f.log.list())

	// the cooldown starts over
	assert.False(t, f.ctl.CanResend())
	assert.Equal(t, model.ErrResendTooEarly, f.ctl.Resend(ctx))
	assert.Equal(t, model.StateAwaitingCode, f.ctl.State())
}

func TestControllerBusy(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.entered = make(chan struct{})
	f.otp.gate = make(chan struct{})
	f.staged(t, nil)

	done := make(chan error, 1)
	go func() { done <- f.ctl.RequestCode(context.Background()) }()
	<-f.otp.entered

	assert.True(t, f.ctl.Snapshot().Busy)
	assert.Equal(t, model.ErrBusy, f.ctl.RequestCode(context.Background()))
	_, err := f.ctl.Stage(testDraft(), nil)
	assert.Equal(t, model.ErrBusy, err)

	close(f.otp.gate)
	require.NoError(t, <-done)
	assert.Equal(t, model.StateAwaitingCode, f.ctl.State())
	assert.Equal(t, []string{"requestCode"}, f.log.list())
}

func TestControllerAbandonDiscardsLateResult(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.entered = make(chan struct{})
	f.otp.gate = make(chan struct{})
	id := f.staged(t, jpegFixture(t, 1024))

	done := make(chan error, 1)
	go func() { done <- f.ctl.RequestCode(context.Background()) }()
	<-f.otp.entered

	require.NoError(t, f.ctl.Abandon())
	assert.Equal(t, model.StateAbandoned, f.ctl.State())
	f.assertCleared(t, id)

	close(f.otp.gate)
	err := <-done
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
	assert.Equal(t, model.StateAbandoned, f.ctl.State())
	_, ok := f.ctl.Challenge()
	assert.False(t, ok)

	// abandoning twice is a no-op
	require.NoError(t, f.ctl.Abandon())
}

func TestControllerNoAbandonWhileSubmitting(t *testing.T) {
	f := newControllerFixture(t)
	f.sub.entered = make(chan struct{})
	f.sub.gate = make(chan struct{})
	f.awaitingCode(t, nil)

	done := make(chan error, 1)
	go func() {
		_, err := f.ctl.Verify(context.Background(), "123456")
		done <- err
	}()
	<-f.sub.entered

	assert.Equal(t, model.StateSubmitting, f.ctl.State())
	assert.Equal(t, model.ErrInvalidTransition, f.ctl.Abandon())
	_, err := f.ctl.Verify(context.Background(), "123456")
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	close(f.sub.gate)
	require.NoError(t, <-done)
	assert.Equal(t, model.StateDone, f.ctl.State())
	assert.Len(t, f.sub.drafts, 1)
}

func TestControllerRestartAfterDone(t *testing.T) {
	f := newControllerFixture(t)
	f.awaitingCode(t, nil)
	_, err := f.ctl.Verify(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, model.ErrInvalidTransition, f.ctl.Abandon())

	other := testDraft()
	other.Email = "john@example.com"
	_, err = f.ctl.Stage(other, nil)
	require.NoError(t, err)
	snap := f.ctl.Snapshot()
	assert.Equal(t, model.StateStaged, snap.State)
	assert.Nil(t, snap.Outcome)
	assert.Equal(t, "john@example.com", snap.Email)
}

func TestControllerClose(t *testing.T) {
	f := newControllerFixture(t)
	id := f.awaitingCode(t, jpegFixture(t, 1024))
	f.ctl.Close()
	assert.Equal(t, model.StateAbandoned, f.ctl.State())
	f.assertCleared(t, id)
}

// flakyStager fails Stage once stageErr is set.
type flakyStager struct {
	*DraftStore
	stageErr error
}

func (s *flakyStager) Stage(draft model.RegistrationDraft, attachment []byte) (model.StagedID, error) {
	if s.stageErr != nil {
		return "", s.stageErr
	}
	return s.DraftStore.Stage(draft, attachment)
}

func TestControllerFailedRestageKeepsDraft(t *testing.T) {
	f := newControllerFixture(t)
	stager := &flakyStager{DraftStore: f.store}
	f.ctl = NewController(stager, f.otp, f.sub, ControllerOptions{Observer: f.observer})

	first := f.staged(t, nil)
	stager.stageErr = errors.New("disk full")
	other := testDraft()
	other.Email = "john@example.com"
	_, err := f.ctl.Stage(other, nil)
	require.Error(t, err)

	snap := f.ctl.Snapshot()
	assert.Equal(t, model.StateStaged, snap.State)
	assert.Equal(t, "jane@example.com", snap.Email)
	assert.NotEmpty(t, snap.Message)
	assert.Equal(t, first, f.ctl.StagedID())
	hasDraft, _, err := f.store.Exists(first)
	require.NoError(t, err)
	assert.True(t, hasDraft)

	// the attempt carries on with the draft that is still staged
	require.NoError(t, f.ctl.RequestCode(context.Background()))
	outcome, err := f.ctl.Verify(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccountCreated, outcome.Kind)
	require.Len(t, f.sub.drafts, 1)
	assert.Equal(t, "jane@example.com", f.sub.drafts[0].Email)
}

func TestControllerVerifyNetworkFailureAfterCreate(t *testing.T) {
	f := newControllerFixture(t)
	f.otp.verifyErr = model.NewRemoteError(model.ErrNetworkUnavailable, "dial tcp: connection refused")
	id := f.awaitingCode(t, nil)

	outcome, err := f.ctl.Verify(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAccountCreatedVerificationFailed, outcome.Kind)
	assert.True(t, errors.Is(outcome.Err, model.ErrNetworkUnavailable))
	assert.Equal(t, model.ErrNetworkUnavailable.Error(), outcome.Reason)
	assert.True(t, outcome.AccountExists())
	assert.Equal(t, model.StateDone, f.ctl.State())
	assert.Equal(t, []string{"requestCode", "submit", "verifyCode:123456"}, f.log.list())
	f.assertCleared(t, id)
	require.Len(t, f.observer.outcomes, 1)
	assert.Equal(t, model.OutcomeAccountCreatedVerificationFailed, f.observer.outcomes[0].Kind)
}
