// Package session issues and verifies the HS256 session tokens handed to
// clients after a successful local or external login.
//
// A session token is self-contained: it carries the user id as its subject,
// the username in the unique_name and name claims, and the email. There is
// no refresh mechanism; clients log in again once the token expires.
//
//	issuer, _ := session.NewIssuer(cfg)
//	tok, _ := issuer.Issue(user)
//
//	verifier, _ := session.NewVerifier(cfg)
//	claims, err := verifier.Verify(ctx, tok.Value)
//
// The rest of the application authenticates requests with [HTTPMiddleware]
// or the gRPC interceptors, which store the verified [Claims] in the
// request context.
package session

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// Token is a signed session token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Option customizes an Issuer or Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer mints session tokens. It is safe for concurrent use.
type Issuer struct {
	cfg Config
	now func() time.Time
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Issuer{cfg: cfg, now: o.now}, nil
}

// Issue signs a token for user. The expiry is the issue time plus the
// configured lifetime, in UTC.
func (i *Issuer) Issue(user models.User) (Token, error) {
	if user.ID <= 0 {
		return Token{}, sserr.Internal("session: cannot issue a token for an unsaved user")
	}

	now := i.now().UTC()
	expiresAt := now.Add(i.cfg.Lifetime())

	claims := Claims{
		UniqueName: user.Username,
		Name:       user.Username,
		Email:      user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.SigningKey.Value()))
	if err != nil {
		return Token{}, sserr.Wrap(err, sserr.CodeInternal, "session: failed to sign token")
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}
