package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
)

// OtpGateway sends and checks the one-time codes of the external verification service.
type OtpGateway interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email string, code string) error
}

type SendCodeRequest struct {
	Email string `json:"email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// OtpClient talks to POST /otp/send and POST /otp/verify.
type OtpClient struct {
	baseURL string
	client  *http.Client
}

func NewOtpClient(baseURL string, client *http.Client) *OtpClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &OtpClient{baseURL: baseURL, client: client}
}

// RequestCode asks the service to send a new code. A new code supersedes any previous one.
func (c *OtpClient) RequestCode(ctx context.Context, email string) error {
	endpoint, err := joinURL(c.baseURL, "/otp/send")
	if err != nil {
		return model.NewRemoteError(model.ErrNetworkUnavailable, err.Error())
	}
	r, err := postJSON(ctx, c.client, endpoint, SendCodeRequest{Email: email})
	if err != nil {
		return asRemote(err)
	}
	if r.ok() {
		log.Info("verification code requested for %v", email)
		return nil
	}
	err = classifySend(r)
	log.Info("request code for %v: %v", email, err)
	return err
}

// VerifyCode checks code against the latest code sent to email.
func (c *OtpClient) VerifyCode(ctx context.Context, email string, code string) error {
	code, err := model.ParseCode(code)
	if err != nil {
		return err
	}
	endpoint, err := joinURL(c.baseURL, "/otp/verify")
	if err != nil {
		return model.NewRemoteError(model.ErrNetworkUnavailable, err.Error())
	}
	r, err := postJSON(ctx, c.client, endpoint, VerifyCodeRequest{Email: email, Code: code})
	if err != nil {
		return asRemote(err)
	}
	if r.ok() {
		log.Info("email %v verified", email)
		return nil
	}
	err = classifyVerify(r)
	log.Info("verify code for %v: %v", email, err)
	return err
}

var sendCodes = map[string]error{
	"RATE_LIMITED":             model.ErrRateLimited,
	"TOO_MANY_REQUESTS":        model.ErrRateLimited,
	"INVALID_EMAIL":            model.ErrInvalidEmail,
	"ALREADY_VERIFIED":         model.ErrAlreadyVerified,
	"EMAIL_ALREADY_REGISTERED": model.ErrEmailAlreadyRegistered,
	"EMAIL_EXISTS":             model.ErrEmailAlreadyRegistered,
}

var verifyCodes = map[string]error{
	"CODE_INVALID": model.ErrCodeInvalid,
	"INVALID_CODE": model.ErrCodeInvalid,
	"CODE_EXPIRED": model.ErrCodeExpired,
	"EXPIRED":      model.ErrCodeExpired,
}

func classifySend(r rawResponse) error {
	msg := messageOr(r, "")
	if kind, ok := sendCodes[strings.ToUpper(r.Body.Code)]; ok {
		return model.NewRemoteError(kind, msg)
	}
	switch {
	case r.Status == http.StatusTooManyRequests:
		return model.NewRemoteError(model.ErrRateLimited, msg)
	case r.Status == http.StatusConflict:
		if containsAny(msg, "verified") {
			return model.NewRemoteError(model.ErrAlreadyVerified, msg)
		}
		return model.NewRemoteError(model.ErrEmailAlreadyRegistered, msg)
	case r.Status >= 500:
		return model.NewRemoteError(model.ErrServer, msg)
	}
	switch {
	case containsAny(msg, "already registered", "already exists", "already in use", "already taken"):
		return model.NewRemoteError(model.ErrEmailAlreadyRegistered, msg)
	case containsAny(msg, "already verified"):
		return model.NewRemoteError(model.ErrAlreadyVerified, msg)
	case containsAny(msg, "too many", "rate limit", "try again later", "wait"):
		return model.NewRemoteError(model.ErrRateLimited, msg)
	case containsAny(msg, "invalid email", "email is invalid", "not a valid email"):
		return model.NewRemoteError(model.ErrInvalidEmail, msg)
	}
	if r.Status == http.StatusBadRequest || r.Status == http.StatusUnprocessableEntity {
		return model.NewRemoteError(model.ErrInvalidEmail, msg)
	}
	return model.NewRemoteError(model.ErrServer, messageOr(r, "failed to send verification code"))
}

func classifyVerify(r rawResponse) error {
	msg := messageOr(r, "")
	if kind, ok := verifyCodes[strings.ToUpper(r.Body.Code)]; ok {
		return model.NewRemoteError(kind, msg)
	}
	switch {
	case r.Status == http.StatusGone:
		return model.NewRemoteError(model.ErrCodeExpired, msg)
	case r.Status >= 500:
		return model.NewRemoteError(model.ErrServer, msg)
	}
	switch {
	case containsAny(msg, "expired"):
		return model.NewRemoteError(model.ErrCodeExpired, msg)
	case containsAny(msg, "invalid", "incorrect", "wrong", "mismatch", "not match"):
		return model.NewRemoteError(model.ErrCodeInvalid, msg)
	}
	switch r.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return model.NewRemoteError(model.ErrCodeInvalid, msg)
	}
	return model.NewRemoteError(model.ErrServer, messageOr(r, "failed to verify code"))
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// asRemote makes sure no unclassified transport error leaves the client.
func asRemote(err error) error {
	if isRemote(err) {
		return err
	}
	return model.NewRemoteError(model.ErrNetworkUnavailable, err.Error())
}
