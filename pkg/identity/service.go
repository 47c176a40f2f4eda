// Package identity implements the two ways a user signs in (local
// credentials and an external provider token) and the linking of
// external identities to local users.
//
// Both paths end in a session token from the configured issuer. Failed
// local logins are indistinguishable to the caller: unknown identifiers
// and wrong passwords yield the same error after the same amount of
// hashing work.
package identity

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/password"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/session"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

// PasswordHasher is implemented by [*password.Hasher].
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	EqualizeTiming(password string)
}

// TokenIssuer is implemented by [*session.Issuer].
type TokenIssuer interface {
	Issue(user models.User) (session.Token, error)
}

var (
	_ PasswordHasher = (*password.Hasher)(nil)
	_ TokenIssuer    = (*session.Issuer)(nil)
)

// SignupRequest carries the fields of a local registration.
type SignupRequest struct {
	Username string
	Email    string
	Password string
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	Token     string
	ExpiresAt int64
	Username  string
	Email     string
}

// Service is the entry point for sign-up and sign-in.
type Service struct {
	store     store.Store
	hasher    PasswordHasher
	issuer    TokenIssuer
	validator external.TokenValidator
	linker    *Linker
	opts      options
}

// NewService wires the service. validator may be nil, in which case
// ExternalLogin reports the provider as unavailable.
func NewService(st store.Store, hasher PasswordHasher, issuer TokenIssuer, validator external.TokenValidator, opts ...Option) (*Service, error) {
	if st == nil || hasher == nil || issuer == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "identity: store, hasher and issuer are required")
	}
	return &Service{
		store:     st,
		hasher:    hasher,
		issuer:    issuer,
		validator: validator,
		linker:    NewLinker(st, opts...),
		opts:      buildOptions(opts),
	}, nil
}

// Signup registers a local user.
//
// Errors: validation ([sserr.CodeValidationRequired],
// [sserr.CodeValidationRange], [sserr.CodeValidationFormat]),
// [sserr.CodeConflictUsernameTaken], [sserr.CodeConflictEmailTaken].
func (s *Service) Signup(ctx context.Context, req SignupRequest) (_ models.User, err error) {
	ctx, span := s.startSpan(ctx, "identity.Signup")
	defer func() {
		s.finish(ctx, span, metrics.MethodSignup, err)
	}()

	if err := validateSignup(req); err != nil {
		return models.User{}, err
	}

	taken, err := s.store.UsernameExists(ctx, req.Username)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, sserr.ConflictUsernameTaken()
	}
	taken, err = s.store.EmailExists(ctx, req.Email)
	if err != nil {
		return models.User{}, err
	}
	if taken {
		return models.User{}, sserr.ConflictEmailTaken()
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return models.User{}, err
	}
	user, err := s.store.InsertUser(ctx, models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    s.opts.now().UTC(),
	})
	if err != nil {
		return models.User{}, err
	}
	s.opts.logger.InfoContext(ctx, "identity: user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func validateSignup(req SignupRequest) error {
	if strings.TrimSpace(req.Username) == "" {
		return sserr.Required("username")
	}
	if strings.TrimSpace(req.Email) == "" {
		return sserr.Required("email")
	}
	if req.Password == "" {
		return sserr.Required("password")
	}
	if utf8.RuneCountInString(req.Username) > models.MaxUsernameLength {
		return sserr.Newf(sserr.CodeValidationRange, "username must be at most %d characters", models.MaxUsernameLength).
			WithDetail("field", "username")
	}
	if utf8.RuneCountInString(req.Email) > models.MaxEmailLength {
		return sserr.Newf(sserr.CodeValidationRange, "email must be at most %d characters", models.MaxEmailLength).
			WithDetail("field", "email")
	}
	if len(req.Password) > password.MaxLength {
		return sserr.Newf(sserr.CodeValidationRange, "password must be at most %d bytes", password.MaxLength).
			WithDetail("field", "password")
	}
	if models.IsPlaceholderEmail(req.Email) {
		return sserr.New(sserr.CodeValidationFormat, "email domain is reserved").WithDetail("field", "email")
	}
	return nil
}

// Login authenticates by username or email, matched exactly, and a
// password. Every failure is [sserr.InvalidCredentials].
func (s *Service) Login(ctx context.Context, identifier, pw string) (_ AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "identity.Login")
	defer func() {
		s.finish(ctx, span, metrics.MethodPassword, err)
	}()

	user, err := s.store.FindUserByUsernameOrEmail(ctx, identifier)
	if err != nil {
		return AuthResult{}, err
	}
	if user == nil {
		s.hasher.EqualizeTiming(pw)
		return AuthResult{}, sserr.InvalidCredentials()
	}
	if !s.hasher.Verify(pw, user.PasswordHash) {
		return AuthResult{}, sserr.InvalidCredentials()
	}
	span.SetAttributes(attribute.Int64("identity.user_id", user.ID))
	return s.authResult(*user)
}

// ExternalLogin validates a provider token, links or provisions the local
// user and issues a session token.
//
// Errors: [sserr.CodeValidationRequired] for an empty token, the
// validator's authentication errors, and [sserr.CodeUnavailableKeySet]
// when the provider keys cannot be fetched.
func (s *Service) ExternalLogin(ctx context.Context, rawToken string) (_ AuthResult, err error) {
	ctx, span := s.startSpan(ctx, "identity.ExternalLogin")
	defer func() {
		s.finish(ctx, span, metrics.MethodExternal, err)
	}()

	if strings.TrimSpace(rawToken) == "" {
		return AuthResult{}, sserr.Required("idToken")
	}
	if s.validator == nil {
		return AuthResult{}, sserr.Unavailable("identity: external login is not configured")
	}

	id, err := s.validator.Validate(ctx, rawToken)
	if err != nil {
		return AuthResult{}, err
	}
	user, err := s.linker.Link(ctx, *id)
	if err != nil {
		return AuthResult{}, err
	}
	span.SetAttributes(attribute.Int64("identity.user_id", user.ID))
	return s.authResult(user)
}

// UsernameExists reports whether username is registered.
func (s *Service) UsernameExists(ctx context.Context, username string) (bool, error) {
	return s.store.UsernameExists(ctx, username)
}

// EmailExists reports whether email is registered.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.store.EmailExists(ctx, email)
}

// User returns the user with the given id, or [sserr.CodeNotFoundUser].
func (s *Service) User(ctx context.Context, id int64) (models.User, error) {
	u, err := s.store.FindUserByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if u == nil {
		return models.User{}, sserr.New(sserr.CodeNotFoundUser, "user not found")
	}
	return *u, nil
}

// Health reports the health of the backing store.
func (s *Service) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

func (s *Service) authResult(u models.User) (AuthResult, error) {
	tok, err := s.issuer.Issue(u)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt.Unix(),
		Username:  u.Username,
		Email:     u.Email,
	}, nil
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.opts.tracer.Start(ctx, name)
}

// finish ends the span and records the outcome. Credentials and tokens are
// never logged.
func (s *Service) finish(ctx context.Context, span trace.Span, method string, err error) {
	outcome := outcomeOf(err)
	s.opts.metrics.AuthAttempt(method, outcome)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(sserr.GetCode(err)))
		if outcome == metrics.OutcomeError {
			s.opts.logger.ErrorContext(ctx, "identity: request failed", "method", method, "error", err)
		} else {
			s.opts.logger.DebugContext(ctx, "identity: request rejected", "method", method, "code", sserr.GetCode(err))
		}
	}
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case sserr.IsConflict(err):
		return metrics.OutcomeConflict
	case sserr.IsAuthentication(err), sserr.IsValidation(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
