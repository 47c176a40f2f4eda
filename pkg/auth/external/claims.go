package external

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names that some providers use in place of the registered ones.
const (
	ClaimNameID            = "nameid"
	ClaimNameIdentifierURI = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/nameidentifier"
	ClaimEmailAddressURI   = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/emailaddress"
	claimRegisteredSubject = "sub"
	claimRegisteredEmail   = "email"
)

// SubjectClaims is the ordered list of claims searched for the subject.
var SubjectClaims = []string{claimRegisteredSubject, ClaimNameID, ClaimNameIdentifierURI}

// EmailClaims is the ordered list of claims searched for the email.
var EmailClaims = []string{claimRegisteredEmail, ClaimEmailAddressURI}

// firstClaim returns the first non-blank string claim among names.
func firstClaim(claims jwt.MapClaims, names []string) string {
	for _, name := range names {
		if s, ok := claims[name].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
