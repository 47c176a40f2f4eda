// Package store defines the persistence contract for local users and their
// linked external logins.
//
// Implementations must enforce uniqueness of username, email and the
// (provider, provider user id) pair atomically and report a violation with
// the matching conflict code: [sserr.CodeConflictUsernameTaken],
// [sserr.CodeConflictEmailTaken] or [sserr.CodeConflictExternalLogin].
// Lookups that find nothing return nil values and a nil error.
package store

import (
	"context"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// Store persists users and external logins. Implementations are safe for
// concurrent use.
type Store interface {
	// FindUserByUsernameOrEmail returns the user whose username or email
	// equals s exactly.
	FindUserByUsernameOrEmail(ctx context.Context, s string) (*models.User, error)

	// FindUserByID returns the user with the given id.
	FindUserByID(ctx context.Context, id int64) (*models.User, error)

	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)

	// InsertUser stores u and returns it with ID and CreatedAt assigned.
	InsertUser(ctx context.Context, u models.User) (models.User, error)

	// FindExternalLogin returns the link for (provider, subject) together
	// with the user it belongs to.
	FindExternalLogin(ctx context.Context, provider models.Provider, subject string) (*models.ExternalLogin, *models.User, error)

	// InsertExternalLogin links an existing user to an external identity.
	InsertExternalLogin(ctx context.Context, l models.ExternalLogin) (models.ExternalLogin, error)

	// UpdateExternalLogin writes LastUsedAt and Email of an existing link.
	UpdateExternalLogin(ctx context.Context, l models.ExternalLogin) error

	// InsertUserWithExternalLogin stores a new user and its first link in
	// one atomic step. On any conflict neither row is written.
	InsertUserWithExternalLogin(ctx context.Context, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error)

	// Health reports whether the backing storage is reachable.
	Health(ctx context.Context) error

	Close() error
}

// Unique columns reported by [UniqueViolation].
const (
	ColumnUsername       = "username"
	ColumnEmail          = "email"
	ColumnProviderUserID = "provider_user_id"
)

// UniqueViolation maps the column whose uniqueness check failed to the
// matching conflict error, keeping cause for the logs.
func UniqueViolation(column string, cause error) *sserr.Error {
	var e *sserr.Error
	switch column {
	case ColumnUsername:
		e = sserr.ConflictUsernameTaken()
	case ColumnEmail:
		e = sserr.ConflictEmailTaken()
	case ColumnProviderUserID:
		e = sserr.ConflictExternalLogin()
	default:
		e = sserr.Conflict("unique constraint violated")
	}
	e.Cause = cause
	return e
}
