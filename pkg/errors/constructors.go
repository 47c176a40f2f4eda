package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err as the Cause of a new Error. If err is nil, Wrap returns nil.
//
// Example:
//
//	if err := rows.Err(); err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "failed to read user")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps err with a formatted message. If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// Validation creates a new validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// Required creates a validation error for a missing field.
func Required(field string) *Error {
	return Newf(CodeValidationRequired, "%s is required", field).WithDetail("field", field)
}

// NotFound creates a new not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unauthorized creates a new authentication error.
func Unauthorized(message string) *Error {
	return New(CodeAuthentication, message)
}

// InvalidCredentials is the single error returned for every failed local
// login, whether the identifier was unknown or the password was wrong.
func InvalidCredentials() *Error {
	return New(CodeAuthentication, "invalid credentials")
}

// InvalidToken is the single error returned when an external token fails
// verification for any reason.
func InvalidToken() *Error {
	return New(CodeAuthenticationInvalid, "invalid token")
}

// MissingSubject reports a verified token without a usable subject claim.
func MissingSubject() *Error {
	return New(CodeAuthenticationMissingSubject, "token has no subject")
}

// ConflictUsernameTaken reports that a username is already registered.
func ConflictUsernameTaken() *Error {
	return New(CodeConflictUsernameTaken, "This username already exists.")
}

// ConflictEmailTaken reports that an email address is already registered.
func ConflictEmailTaken() *Error {
	return New(CodeConflictEmailTaken, "There is already an account with this email address.")
}

// ConflictExternalLogin reports that a provider subject is already linked.
func ConflictExternalLogin() *Error {
	return New(CodeConflictExternalLogin, "external login is already linked")
}

// KeyFetch wraps a failure to obtain a provider's signing keys. It is an
// infrastructure fault and maps to 503, never to 401.
func KeyFetch(err error, url string) *Error {
	if err == nil {
		err = errors.New("no keys available")
	}
	return Wrap(err, CodeUnavailableKeySet, "failed to fetch signing keys").WithDetail("jwks_url", url)
}

// Conflict creates a new conflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Internal creates a new internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Unavailable creates a new service unavailable error.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a new timeout error.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError converts err to an *Error. An *Error anywhere in the chain is
// returned as-is; anything else is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
