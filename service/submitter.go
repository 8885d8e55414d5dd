package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/model"
	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/pkg/log"
	"github.com/gabriel-vasile/mimetype"
	jsoniter "github.com/json-iterator/go"
)

// Submitter creates the account from a staged draft.
type Submitter interface {
	Submit(ctx context.Context, draft model.RegistrationDraft, attachment []byte) (model.AccountRef, error)
}

// AccountRecord is the account payload sent to POST /accounts/register. The
// json and form names are the same so both request shapes carry identical fields.
type AccountRecord struct {
	FullName              string   `json:"fullName" form:"fullName"`
	Email                 string   `json:"email" form:"email"`
	Password              string   `json:"password" form:"password"`
	Phone                 string   `json:"phone" form:"phone"`
	Country               string   `json:"country" form:"country"`
	DateOfBirth           string   `json:"dateOfBirth,omitempty" form:"dateOfBirth"`
	Gender                string   `json:"gender,omitempty" form:"gender"`
	PreferredLanguage     string   `json:"preferredLanguage,omitempty" form:"preferredLanguage"`
	EmergencyContactName  string   `json:"emergencyContactName,omitempty" form:"emergencyContactName"`
	EmergencyContactPhone string   `json:"emergencyContactPhone,omitempty" form:"emergencyContactPhone"`
	TravelPreferences     []string `json:"travelPreferences,omitempty" form:"travelPreferences"`
}

func NewAccountRecord(d model.RegistrationDraft) AccountRecord {
	return AccountRecord{
		FullName:              d.FullName,
		Email:                 d.Email,
		Password:              d.Password,
		Phone:                 d.Phone,
		Country:               d.Country,
		DateOfBirth:           d.DateOfBirth,
		Gender:                d.Gender,
		PreferredLanguage:     d.PreferredLanguage,
		EmergencyContactName:  d.EmergencyContactName,
		EmergencyContactPhone: d.EmergencyContactPhone,
		TravelPreferences:     d.TravelPreferences,
	}
}

// fields lists the record as ordered form fields, skipping empty optional values.
func (r AccountRecord) fields() [][2]string {
	var out [][2]string
	add := func(k, v string, required bool) {
		if v != "" || required {
			out = append(out, [2]string{k, v})
		}
	}
	add(model.FieldFullName, r.FullName, true)
	add(model.FieldEmail, r.Email, true)
	add(model.FieldPassword, r.Password, true)
	add(model.FieldPhone, r.Phone, true)
	add(model.FieldCountry, r.Country, true)
	add(model.FieldDateOfBirth, r.DateOfBirth, false)
	add(model.FieldGender, r.Gender, false)
	add(model.FieldPreferredLanguage, r.PreferredLanguage, false)
	add(model.FieldEmergencyContactName, r.EmergencyContactName, false)
	add(model.FieldEmergencyContactPhone, r.EmergencyContactPhone, false)
	for _, t := range r.TravelPreferences {
		add(model.FieldTravelPreferences, t, false)
	}
	return out
}

// AccountClient talks to POST /accounts/register. It never retries.
type AccountClient struct {
	baseURL string
	client  *http.Client
}

func NewAccountClient(baseURL string, client *http.Client) *AccountClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &AccountClient{baseURL: baseURL, client: client}
}

// Submit sends the draft as multipart when an attachment is present and as JSON otherwise.
func (c *AccountClient) Submit(ctx context.Context, draft model.RegistrationDraft, attachment []byte) (model.AccountRef, error) {
	if missing := draft.MissingRequired(); len(missing) > 0 {
		return model.AccountRef{}, fmt.Errorf("%w: missing %v", model.ErrIncompleteDraft, strings.Join(missing, ", "))
	}
	endpoint, err := joinURL(c.baseURL, "/accounts/register")
	if err != nil {
		return model.AccountRef{}, model.NewRemoteError(model.ErrNetworkUnavailable, err.Error())
	}
	record := NewAccountRecord(draft)
	var r rawResponse
	if len(attachment) > 0 {
		body, contentType, err := encodeMultipart(record, attachment)
		if err != nil {
			return model.AccountRef{}, fmt.Errorf("Submit: %w", err)
		}
		r, err = post(ctx, c.client, endpoint, contentType, body)
		if err != nil {
			return model.AccountRef{}, asRemote(err)
		}
	} else {
		r, err = postJSON(ctx, c.client, endpoint, record)
		if err != nil {
			return model.AccountRef{}, asRemote(err)
		}
	}
	if !r.ok() {
		err := classifyRegister(r)
		log.Info("register %v: %v", draft.Email, err)
		return model.AccountRef{}, err
	}
	ref := model.AccountRef{ID: accountID(r.Body.Data), Email: draft.Email}
	log.Info("account created for %v (id: %v, attachment: %v)", draft.Email, ref.ID, len(attachment) > 0)
	return ref, nil
}

func encodeMultipart(record AccountRecord, attachment []byte) (*bytes.Buffer, string, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)
	for _, f := range record.fields() {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	mt := mimetype.Detect(attachment)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, model.FieldProfilePicture, "profile-picture"+mt.Extension()))
	h.Set("Content-Type", mt.String())
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(attachment); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func classifyRegister(r rawResponse) error {
	msg := messageOr(r, "")
	switch {
	case r.Status == http.StatusConflict,
		containsAny(msg, "already registered", "already exists", "duplicate", "already in use", "already taken"):
		return model.NewRemoteError(model.ErrDuplicateEmail, msg)
	case r.Status == http.StatusBadRequest || r.Status == http.StatusUnprocessableEntity || r.Body.Field != "":
		return &model.RemoteError{Kind: model.ErrValidationRejected, Message: msg, Field: r.Body.Field}
	case r.Status >= 500:
		return model.NewRemoteError(model.ErrServer, msg)
	}
	return model.NewRemoteError(model.ErrServer, messageOr(r, "failed to create account"))
}

// accountID picks the account id out of the optional data object.
func accountID(data jsoniter.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := jsoniter.Unmarshal(data, &m); err != nil {
		return ""
	}
	for _, k := range []string{"id", "userId", "user_id", "accountId", "account_id"} {
		switch v := m[k].(type) {
		case string:
			return v
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
