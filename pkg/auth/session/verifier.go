package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// TokenVerifier verifies a session token and returns its claims. It is the
// dependency of the HTTP middleware and gRPC interceptors.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Verifier checks session tokens against the configured issuer, audience,
// key and expiry.
//
// Only HS256 is accepted, which rules out algorithm confusion where an
// asymmetric public key is replayed as an HMAC secret.
type Verifier struct {
	cfg    Config
	now    func() time.Time
	parser *jwt.Parser
}

var _ TokenVerifier = (*Verifier)(nil)

// NewVerifier validates cfg and returns a Verifier.
func NewVerifier(cfg Config, opts ...Option) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Verifier{
		cfg: cfg,
		now: o.now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(cfg.ClockSkew),
			jwt.WithTimeFunc(o.now),
		),
	}, nil
}

// Verify parses and validates token. Expired tokens fail with
// [sserr.CodeAuthenticationExpired]; every other failure uses
// [sserr.CodeAuthenticationInvalid].
func (v *Verifier) Verify(_ context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "session: token is empty")
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(v.cfg.SigningKey.Value()), nil
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if !parsed.Valid {
		return nil, sserr.New(sserr.CodeAuthenticationInvalid, "session: token is invalid")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

// classifyError maps jwt/v5 validation errors to error codes.
func classifyError(err error) *sserr.Error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "session: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token signature is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token issuer is invalid")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token audience is invalid")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token is not yet valid")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "session: token validation failed")
	}
}
