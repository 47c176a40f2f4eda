// Package errors provides the structured error taxonomy used by the identity
// service. Every failure that crosses a package boundary is an *Error carrying
// a stable machine-readable code, a client-safe message and an optional cause.
//
// # Error Categories
//
//   - Validation errors: malformed requests, missing fields (BadRequest)
//   - Authentication errors: bad credentials, rejected tokens, missing subject
//   - NotFound errors: resource does not exist
//   - Conflict errors: username taken, email taken, duplicate external login
//   - Internal errors: storage and configuration failures
//   - Unavailable errors: the external provider's key set cannot be fetched
//   - Timeout errors: storage or upstream deadline exceeded
//
// Conflict codes are reason-specific so that signup callers can tell a taken
// username from a taken email. Authentication codes are deliberately coarse:
// login and external-token failures never reveal which check failed.
//
// # Usage
//
//	err := errors.ConflictUsernameTaken()
//	if errors.IsConflict(err) {
//	    status := errors.FromError(err).HTTPStatus() // 409
//	}
package errors
