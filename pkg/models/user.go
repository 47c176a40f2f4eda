// Package models defines the persistent records of the identity service.
//
// A [User] is a local account. It is created either by local signup or by the
// first successful login with an external identity provider. An
// [ExternalLogin] links one provider subject to exactly one User; a User may
// own any number of ExternalLogins, and deleting the User deletes them.
//
//	User 1 ──── * ExternalLogin   (unique on Provider + ProviderUserID)
//
// Username and email are immutable after creation and compared by exact
// string match.
package models

import (
	"strings"
	"time"
	"unicode/utf8"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Field limits shared by validation and the SQL schemas.
const (
	MaxUsernameLength       = 32
	MaxEmailLength          = 256
	MaxProviderUserIDLength = 128
)

// ExternalPasswordHash is stored as the password hash of accounts created
// through an external provider. It can never be produced by the password
// hasher and never verifies.
const ExternalPasswordHash = "EXTERNAL_LOGIN"

// PlaceholderEmailDomain is the reserved domain used when a provider does
// not supply an email for a new account.
const PlaceholderEmailDomain = "no-email.local"

// User is a local account.
type User struct {
	// ID is assigned by the store on insertion.
	ID int64 `json:"id" db:"id"`

	Username string `json:"username" db:"username"`
	Email    string `json:"email" db:"email"`

	// PasswordHash is a bcrypt hash, or ExternalPasswordHash. Never
	// serialized.
	PasswordHash string `json:"-" db:"password_hash"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsExternal reports whether the account was provisioned by an external
// provider and has no local password.
func (u *User) IsExternal() bool {
	return u.PasswordHash == ExternalPasswordHash
}

// Validate checks required fields and length limits before insertion.
func (u *User) Validate() error {
	if err := checkLength("username", u.Username, MaxUsernameLength); err != nil {
		return err
	}
	if err := checkLength("email", u.Email, MaxEmailLength); err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return sserr.Required("password hash")
	}
	return nil
}

// PlaceholderEmail returns the synthesized address for an account without a
// provider-supplied email.
func PlaceholderEmail(username string) string {
	return username + "@" + PlaceholderEmailDomain
}

// IsPlaceholderEmail reports whether email is in the reserved domain.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(email, "@"+PlaceholderEmailDomain)
}

func checkLength(field, value string, limit int) error {
	if strings.TrimSpace(value) == "" {
		return sserr.Required(field)
	}
	if utf8.RuneCountInString(value) > limit {
		return sserr.Newf(sserr.CodeValidationRange, "%s must be at most %d characters", field, limit).
			WithDetail("field", field)
	}
	return nil
}
