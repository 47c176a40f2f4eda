// Package external validates bearer tokens issued by an external identity
// provider and extracts the identity they assert.
//
// Tokens are verified against the provider's published JWKS, obtained from
// a shared [jwks.Cache]. Signature, issuer and expiry are always checked;
// audience only when configured. Every verification failure produces the
// same error, so callers cannot learn which check rejected a token. The
// one distinguishable outcome is a correctly signed token that carries no
// subject, reported with [sserr.CodeAuthenticationMissingSubject].
package external

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/jwks"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

const tracerName = "github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"

// MaxTokenLength is the longest token accepted, in bytes.
const MaxTokenLength = 8 << 10

// KeySource supplies verification keys. [*jwks.Cache] implements it.
type KeySource interface {
	SigningKeys(ctx context.Context, url string) (*jwks.KeySet, error)
}

// Identity is the result of a successful validation.
type Identity struct {
	Provider models.Provider
	Subject  string

	// Email is empty when the token carries none.
	Email string
}

// TokenValidator is implemented by [*Validator].
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// Option customizes a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for exp and nbf checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Validator) { v.tracer = tp.Tracer(tracerName) }
}

// Validator verifies external tokens. It is safe for concurrent use.
type Validator struct {
	cfg    Config
	keys   KeySource
	parser *jwt.Parser
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

var _ TokenValidator = (*Validator)(nil)

// NewValidator validates cfg and returns a Validator reading keys from keys.
func NewValidator(cfg Config, keys KeySource, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "external: key source is required")
	}

	v := &Validator{
		cfg:    cfg,
		keys:   keys,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.AllowedAlgs),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithTimeFunc(v.now),
	}
	if cfg.ValidateAudience {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(parserOpts...)
	return v, nil
}

// Provider returns the configured provider.
func (v *Validator) Provider() models.Provider {
	return v.cfg.Provider
}

// Validate verifies token and extracts its identity.
//
// Failures:
//   - any verification failure: [sserr.CodeAuthenticationInvalid]
//   - no subject claim: [sserr.CodeAuthenticationMissingSubject]
//   - keys unavailable: [sserr.CodeUnavailableKeySet], unchanged from the
//     key source, since it is not a credential problem
func (v *Validator) Validate(ctx context.Context, token string) (_ *Identity, err error) {
	ctx, span := v.tracer.Start(ctx, "external.Validate",
		trace.WithAttributes(attribute.String("identity.provider", v.cfg.Provider.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(sserr.GetCode(err)))
		}
		span.End()
	}()

	if token == "" || len(token) > MaxTokenLength {
		return nil, sserr.InvalidToken()
	}

	set, err := v.keys.SigningKeys(ctx, v.cfg.JWKSURL)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, keyFunc(set))
	if err != nil || !parsed.Valid {
		// The reason stays in the logs; callers only learn that the token
		// was rejected.
		v.logger.DebugContext(ctx, "external: token rejected",
			"provider", v.cfg.Provider,
			"reason", err,
		)
		return nil, sserr.InvalidToken()
	}

	subject := firstClaim(claims, SubjectClaims)
	if subject == "" {
		return nil, sserr.MissingSubject()
	}
	if utf8.RuneCountInString(subject) > models.MaxProviderUserIDLength {
		v.logger.DebugContext(ctx, "external: subject exceeds length limit", "provider", v.cfg.Provider)
		return nil, sserr.InvalidToken()
	}

	email := firstClaim(claims, EmailClaims)
	if utf8.RuneCountInString(email) > models.MaxEmailLength {
		email = ""
	}

	return &Identity{Provider: v.cfg.Provider, Subject: subject, Email: email}, nil
}

// keyFunc selects the verification key by kid when the token names one;
// otherwise every key in the set is tried.
func keyFunc(set *jwks.KeySet) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()

		if kid, _ := t.Header["kid"].(string); kid != "" {
			k, ok := set.Lookup(kid)
			if !ok {
				return nil, fmt.Errorf("external: unknown key id %q", kid)
			}
			if k.Algorithm != "" && k.Algorithm != alg {
				return nil, fmt.Errorf("external: key %q is for %s, token uses %s", kid, k.Algorithm, alg)
			}
			return k.Key, nil
		}

		var vks jwt.VerificationKeySet
		for _, k := range set.Keys() {
			if k.Algorithm == "" || k.Algorithm == alg {
				vks.Keys = append(vks.Keys, k.Key)
			}
		}
		if len(vks.Keys) == 0 {
			return nil, fmt.Errorf("external: no key for algorithm %s", alg)
		}
		return vks, nil
	}
}
