package errors

// Code represents a machine-readable error code. Codes follow the pattern
// CATEGORY_XXX; the category prefix determines the HTTP status.
//
// Codes are stable once assigned: clients switch on them, notably on the
// CONF_xxx reasons returned from signup.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing, such as
	// the idToken field of an external login request.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value exceeds its length limit.
	CodeValidationRange Code = "VAL_004"

	// CodeAuthentication indicates a generic authentication failure. Local
	// login uses it for both unknown identifiers and wrong passwords.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationExpired indicates a session token has expired.
	CodeAuthenticationExpired Code = "AUTH_002"

	// CodeAuthenticationInvalid indicates a token failed verification.
	CodeAuthenticationInvalid Code = "AUTH_003"

	// CodeAuthenticationMissingSubject indicates an external token verified
	// correctly but carried none of the accepted subject claims.
	CodeAuthenticationMissingSubject Code = "AUTH_004"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundUser indicates the requested user was not found.
	CodeNotFoundUser Code = "NF_002"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictUsernameTaken indicates the username is already in use.
	CodeConflictUsernameTaken Code = "CONF_004"

	// CodeConflictEmailTaken indicates the email address is already in use.
	CodeConflictEmailTaken Code = "CONF_005"

	// CodeConflictExternalLogin indicates the (provider, subject) pair is
	// already linked to a user.
	CodeConflictExternalLogin Code = "CONF_006"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a storage operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableKeySet indicates the provider's JWKS could not be
	// fetched and no cached key set exists.
	CodeUnavailableKeySet Code = "UNAVAIL_004"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutDatabase indicates a storage operation timed out.
	CodeTimeoutDatabase Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "AUTH").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
