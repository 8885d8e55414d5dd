package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/common"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/service"
	"github.com/gin-gonic/gin"
)

const (
	SessionCookie = "wayfare_registration"
	cookiePath    = "/api/registration"
	callTimeout   = 30 * time.Second
)

// Registration serves the two registration pages.
type Registration struct {
	Sessions     *service.SessionRegistry
	SecureCookie bool
}

// controllerOf returns the controller of the caller's session, creating the session when create is set.
func (r *Registration) controllerOf(c *gin.Context, create bool) (*service.Controller, bool) {
	if id, err := c.Cookie(SessionCookie); err == nil && id != "" {
		if ctl, ok := r.Sessions.Get(id); ok {
			return ctl, true
		}
	}
	if !create {
		common.ResponseFail(c, http.StatusNotFound, "registration session not found", nil)
		return nil, false
	}
	id, ctl, err := r.Sessions.Create()
	if err != nil {
		common.ResponseError(c, http.StatusInternalServerError, fmt.Errorf("%v: try again please", err))
		return nil, false
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, id, 0, cookiePath, "", r.SecureCookie, true)
	return ctl, true
}

// PostDraft is step 1: validate and stage the form, then request the code.
func (r *Registration) PostDraft(c *gin.Context) {
	var draft model.RegistrationDraft
	if err := c.ShouldBind(&draft); err != nil {
		common.ResponseBadRequestError(c)
		return
	}
	attachment, err := readAttachment(c)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	ctl, ok := r.controllerOf(c, true)
	if !ok {
		return
	}
	if _, err := ctl.Stage(draft, attachment); err != nil {
		respondError(c, err, ctl)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := ctl.RequestCode(ctx); err != nil {
		respondError(c, err, ctl)
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

// PostCode retries the first code request of a staged draft.
func (r *Registration) PostCode(c *gin.Context) {
	ctl, ok := r.controllerOf(c, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := ctl.RequestCode(ctx); err != nil {
		respondError(c, err, ctl)
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

// PostResend sends a new code once the cooldown is over.
func (r *Registration) PostResend(c *gin.Context) {
	ctl, ok := r.controllerOf(c, false)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := ctl.Resend(ctx); err != nil {
		respondError(c, err, ctl)
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

type verifyRequest struct {
	Code   string   `json:"code" form:"code"`
	Digits []string `json:"digits" form:"digits"`
}

// PostVerify is step 2: create the account, then verify the code.
func (r *Registration) PostVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBind(&req); err != nil {
		common.ResponseBadRequestError(c)
		return
	}
	ctl, ok := r.controllerOf(c, false)
	if !ok {
		return
	}
	code := strings.TrimSpace(req.Code)
	if len(req.Digits) > 0 {
		var err error
		if code, err = model.CodeFromDigits(req.Digits); err != nil {
			respondError(c, err, ctl)
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if _, err := ctl.Verify(ctx, code); err != nil {
		respondError(c, err, ctl)
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

// PostAbandon goes back to step 1 and drops the staged draft.
func (r *Registration) PostAbandon(c *gin.Context) {
	ctl, ok := r.controllerOf(c, false)
	if !ok {
		return
	}
	if err := ctl.Abandon(); err != nil {
		respondError(c, err, ctl)
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

func (r *Registration) GetState(c *gin.Context) {
	ctl, ok := r.controllerOf(c, false)
	if !ok {
		return
	}
	common.ResponseSuccess(c, ctl.Snapshot())
}

// readAttachment reads the optional profile picture of a multipart form.
func readAttachment(c *gin.Context) ([]byte, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, nil
	}
	fh, err := c.FormFile(model.FieldProfilePicture)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.ValidationError{Field: model.FieldProfilePicture, Reason: "cannot read the uploaded file"}
	}
	if fh.Size > model.MaxAttachmentSize {
		return nil, &model.ValidationError{Field: model.FieldProfilePicture, Reason: model.ErrAttachmentTooLarge.Error()}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, &model.ValidationError{Field: model.FieldProfilePicture, Reason: "cannot read the uploaded file"}
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, model.MaxAttachmentSize+1))
	if err != nil {
		return nil, &model.ValidationError{Field: model.FieldProfilePicture, Reason: "cannot read the uploaded file"}
	}
	return b, nil
}

func respondError(c *gin.Context, err error, ctl *service.Controller) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Warn("registration: %v", err)
	}
	var data interface{}
	if ctl != nil {
		data = ctl.Snapshot()
	} else if field := model.FieldOf(err); field != "" {
		data = gin.H{"invalidFields": gin.H{field: model.Message(err)}}
	}
	common.ResponseFail(c, status, model.Message(err), data)
}

// StatusOf maps a registration error to its HTTP status.
func StatusOf(err error) int {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrResendTooEarly), errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrBusy),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrEmailAlreadyRegistered),
		errors.Is(err, model.ErrDuplicateEmail),
		errors.Is(err, model.ErrAlreadyVerified),
		errors.Is(err, model.ErrDraftMissing),
		errors.Is(err, model.ErrDraftCorrupt),
		errors.Is(err, model.ErrIncompleteDraft):
		return http.StatusConflict
	case errors.Is(err, model.ErrCodeInvalid),
		errors.Is(err, model.ErrCodeExpired),
		errors.Is(err, model.ErrInvalidEmail),
		errors.Is(err, model.ErrValidationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNetworkUnavailable), errors.Is(err, model.ErrServer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
