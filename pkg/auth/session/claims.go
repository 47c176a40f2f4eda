package session

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Claims is the payload of a session token. The subject is the decimal
// user id; UniqueName and Name both carry the username.
type Claims struct {
	UniqueName string `json:"unique_name"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, sserr.New(sserr.CodeAuthenticationInvalid, "session: subject is not a user id")
	}
	return id, nil
}

// Username returns the unique_name claim.
func (c *Claims) Username() string {
	return c.UniqueName
}
