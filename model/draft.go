package model

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/e14914c0-6759-480d-be89-66b7b7676451/Wayfare/common"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"golang.org/x/net/idna"
)

const (
	FieldFullName              = "fullName"
	FieldEmail                 = "email"
	FieldPassword              = "password"
	FieldPhone                 = "phone"
	FieldCountry               = "country"
	FieldDateOfBirth           = "dateOfBirth"
	FieldGender                = "gender"
	FieldPreferredLanguage     = "preferredLanguage"
	FieldEmergencyContactName  = "emergencyContactName"
	FieldEmergencyContactPhone = "emergencyContactPhone"
	FieldTravelPreferences     = "travelPreferences"
	FieldProfilePicture        = "profilePicture"
	FieldCode                  = "code"
)

const (
	DefaultPreferredLanguage = "English"
	DateLayout               = "2006-01-02"
	MaxAttachmentSize        = 5 << 20
)

var RequiredFields = []string{FieldFullName, FieldEmail, FieldPassword, FieldPhone, FieldCountry}

// RegistrationDraft is the staged, not yet committed registration payload.
// It only holds plain values so that it can cross the step 1 / step 2 boundary as text.
type RegistrationDraft struct {
	FullName              string   `json:"fullName" form:"fullName" validate:"required,max=100"`
	Email                 string   `json:"email" form:"email" validate:"required,email,max=254"`
	Password              string   `json:"password" form:"password" validate:"required,min=6,max=128"`
	Phone                 string   `json:"phone" form:"phone" validate:"required,phone"`
	Country               string   `json:"country" form:"country" validate:"required,iso3166_1_alpha2"`
	DateOfBirth           string   `json:"dateOfBirth,omitempty" form:"dateOfBirth" validate:"omitempty,datetime=2006-01-02,past_date"`
	Gender                string   `json:"gender,omitempty" form:"gender" validate:"omitempty,oneof=male female other unspecified"`
	PreferredLanguage     string   `json:"preferredLanguage,omitempty" form:"preferredLanguage" validate:"omitempty,max=40"`
	EmergencyContactName  string   `json:"emergencyContactName,omitempty" form:"emergencyContactName" validate:"omitempty,max=100"`
	EmergencyContactPhone string   `json:"emergencyContactPhone,omitempty" form:"emergencyContactPhone" validate:"omitempty,phone"`
	TravelPreferences     []string `json:"travelPreferences,omitempty" form:"travelPreferences" validate:"max=20,dive,required,max=40"`

	// HasAttachment is derived by the draft store from the presence of the attachment entry.
	HasAttachment bool `json:"-" form:"-"`
}

var phoneRegexp = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			return phoneRegexp.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("past_date", func(fl validator.FieldLevel) bool {
			t, err := time.Parse(DateLayout, fl.Field().String())
			if err != nil {
				return false
			}
			return t.Before(time.Now())
		})
	})
	return validate
}

// Normalize trims user input, normalizes the email domain, applies defaults
// and deduplicates the travel preference tags.
func (d *RegistrationDraft) Normalize() {
	d.FullName = strings.TrimSpace(d.FullName)
	d.Email = NormalizeEmail(d.Email)
	d.Phone = normalizePhone(d.Phone)
	d.Country = strings.ToUpper(strings.TrimSpace(d.Country))
	d.DateOfBirth = strings.TrimSpace(d.DateOfBirth)
	d.Gender = strings.ToLower(strings.TrimSpace(d.Gender))
	d.PreferredLanguage = strings.TrimSpace(d.PreferredLanguage)
	if d.PreferredLanguage == "" {
		d.PreferredLanguage = DefaultPreferredLanguage
	}
	d.EmergencyContactName = strings.TrimSpace(d.EmergencyContactName)
	d.EmergencyContactPhone = normalizePhone(d.EmergencyContactPhone)
	tags := make([]string, 0, len(d.TravelPreferences))
	for _, t := range d.TravelPreferences {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}
	tags = common.Deduplicate(tags)
	// the set is unordered, keep a canonical order
	sort.Strings(tags)
	if len(tags) == 0 {
		tags = nil
	}
	d.TravelPreferences = tags
}

// Validate checks every field and returns the first failure as a *ValidationError.
func (d *RegistrationDraft) Validate() error {
	err := getValidator().Struct(d)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ValidationError{Field: "", Reason: err.Error()}
	}
	fe := errs[0]
	field := fe.Field()
	if i := strings.IndexByte(field, '['); i >= 0 {
		field = field[:i]
	}
	return &ValidationError{Field: field, Reason: reasonOf(fe)}
}

// MissingRequired lists the required fields which are empty.
func (d *RegistrationDraft) MissingRequired() []string {
	var missing []string
	for field, v := range map[string]string{
		FieldFullName: d.FullName,
		FieldEmail:    d.Email,
		FieldPassword: d.Password,
		FieldPhone:    d.Phone,
		FieldCountry:  d.Country,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// Equal reports whether two drafts carry the same values. HasAttachment is compared as well.
func (d RegistrationDraft) Equal(o RegistrationDraft) bool {
	if len(d.TravelPreferences) != len(o.TravelPreferences) {
		return false
	}
	a := common.SliceToSet(d.TravelPreferences)
	for _, t := range o.TravelPreferences {
		if _, ok := a[t]; !ok {
			return false
		}
	}
	d.TravelPreferences, o.TravelPreferences = nil, nil
	return reflect.DeepEqual(d, o)
}

// ValidateAttachment checks the profile picture size and type.
func ValidateAttachment(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if len(b) > MaxAttachmentSize {
		return &ValidationError{Field: FieldProfilePicture, Reason: ErrAttachmentTooLarge.Error()}
	}
	if !strings.HasPrefix(mimetype.Detect(b).String(), "image/") {
		return &ValidationError{Field: FieldProfilePicture, Reason: ErrAttachmentNotImage.Error()}
	}
	return nil
}

// NormalizeEmail lower-cases the address and converts the domain to its ASCII form.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		domain = ascii
	}
	return strings.ToLower(local) + "@" + strings.ToLower(domain)
}

func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

func reasonOf(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "phone":
		return "must be 7 to 15 digits"
	case "iso3166_1_alpha2":
		return "must be a two-letter country code"
	case "datetime":
		return "must be a date formatted as YYYY-MM-DD"
	case "past_date":
		return "must be in the past"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
