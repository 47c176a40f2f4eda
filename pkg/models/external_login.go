package models

import (
	"time"
	"unicode/utf8"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Provider identifies an external identity provider. It is stored on the
// ExternalLogin row by name.
type Provider string

const (
	ProviderUnity    Provider = "Unity"
	ProviderGoogle   Provider = "Google"
	ProviderApple    Provider = "Apple"
	ProviderFacebook Provider = "Facebook"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// Valid reports whether p is a recognized provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderUnity, ProviderGoogle, ProviderApple, ProviderFacebook:
		return true
	default:
		return false
	}
}

// ExternalLogin links a provider subject to a local user.
type ExternalLogin struct {
	ID     int64 `json:"id" db:"id"`
	UserID int64 `json:"user_id" db:"user_id"`

	Provider       Provider `json:"provider" db:"provider"`
	ProviderUserID string   `json:"provider_user_id" db:"provider_user_id"`

	// Email is the address the provider reported on the most recent login.
	// It is a snapshot only; the owning User's email is never changed by it.
	Email *string `json:"email,omitempty" db:"email"`

	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Validate checks the provider and length limits.
func (l *ExternalLogin) Validate() error {
	if !l.Provider.Valid() {
		return sserr.Newf(sserr.CodeValidationFormat, "unknown provider %q", l.Provider)
	}
	if err := checkLength("provider user id", l.ProviderUserID, MaxProviderUserIDLength); err != nil {
		return err
	}
	if l.Email != nil && utf8.RuneCountInString(*l.Email) > MaxEmailLength {
		return sserr.Newf(sserr.CodeValidationRange, "email must be at most %d characters", MaxEmailLength)
	}
	return nil
}

// EmailSnapshot returns the snapshot email or "".
func (l *ExternalLogin) EmailSnapshot() string {
	if l.Email == nil {
		return ""
	}
	return *l.Email
}

// Touch records a successful login at now and overwrites the email snapshot
// when email is non-empty and differs from it. It reports whether the
// snapshot changed.
func (l *ExternalLogin) Touch(now time.Time, email string) bool {
	used := now.UTC()
	l.LastUsedAt = &used
	if email == "" || email == l.EmailSnapshot() {
		return false
	}
	l.Email = &email
	return true
}
