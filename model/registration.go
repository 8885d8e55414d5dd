package model

import (
	"strings"
	"time"
)

const BucketRegistration = "registration"

const (
	draftKeyPrefix      = "draft/"
	attachmentKeySuffix = "/attachment"
)

// StagedID identifies one staged registration attempt.
type StagedID string

func DraftKey(id StagedID) []byte {
	return []byte(draftKeyPrefix + string(id))
}

func AttachmentKey(id StagedID) []byte {
	return []byte(draftKeyPrefix + string(id) + attachmentKeySuffix)
}

// ParseStoreKey maps a bucket key back to its staged id.
func ParseStoreKey(key []byte) (id StagedID, attachment bool, ok bool) {
	k := string(key)
	if !strings.HasPrefix(k, draftKeyPrefix) {
		return "", false, false
	}
	k = strings.TrimPrefix(k, draftKeyPrefix)
	if strings.HasSuffix(k, attachmentKeySuffix) {
		return StagedID(strings.TrimSuffix(k, attachmentKeySuffix)), true, true
	}
	return StagedID(k), false, true
}

// StagedDraft is the stored form of a draft. The password is kept sealed.
type StagedDraft struct {
	FullName              string    `json:"fullName"`
	Email                 string    `json:"email"`
	SealedPassword        string    `json:"sealedPassword"`
	Phone                 string    `json:"phone"`
	Country               string    `json:"country"`
	DateOfBirth           string    `json:"dateOfBirth,omitempty"`
	Gender                string    `json:"gender,omitempty"`
	PreferredLanguage     string    `json:"preferredLanguage,omitempty"`
	EmergencyContactName  string    `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone string    `json:"emergencyContactPhone,omitempty"`
	TravelPreferences     []string  `json:"travelPreferences,omitempty"`
	StagedAt              time.Time `json:"stagedAt"`
}

func NewStagedDraft(d RegistrationDraft, sealedPassword string, now time.Time) StagedDraft {
	return StagedDraft{
		FullName:              d.FullName,
		Email:                 d.Email,
		SealedPassword:        sealedPassword,
		Phone:                 d.Phone,
		Country:               d.Country,
		DateOfBirth:           d.DateOfBirth,
		Gender:                d.Gender,
		PreferredLanguage:     d.PreferredLanguage,
		EmergencyContactName:  d.EmergencyContactName,
		EmergencyContactPhone: d.EmergencyContactPhone,
		TravelPreferences:     d.TravelPreferences,
		StagedAt:              now,
	}
}

// Draft rebuilds the draft with the given plaintext password.
func (s StagedDraft) Draft(password string, hasAttachment bool) RegistrationDraft {
	return RegistrationDraft{
		FullName:              s.FullName,
		Email:                 s.Email,
		Password:              password,
		Phone:                 s.Phone,
		Country:               s.Country,
		DateOfBirth:           s.DateOfBirth,
		Gender:                s.Gender,
		PreferredLanguage:     s.PreferredLanguage,
		EmergencyContactName:  s.EmergencyContactName,
		EmergencyContactPhone: s.EmergencyContactPhone,
		TravelPreferences:     s.TravelPreferences,
		HasAttachment:         hasAttachment,
	}
}
