package identity

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/metrics"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

// RandomUsernamePrefix starts the username of an identity without email.
const RandomUsernamePrefix = "up_"

// maxUsernameProbes caps the base, base1, base2, ... search.
const maxUsernameProbes = 1000

// Linker resolves a validated external identity to a local user, creating
// the user on first sight. Accounts are never merged: an external identity
// whose email already belongs to a local user gets a separate account.
type Linker struct {
	store store.Store
	opts  options
}

// NewLinker returns a Linker backed by st.
func NewLinker(st store.Store, opts ...Option) *Linker {
	return &Linker{store: st, opts: buildOptions(opts)}
}

// Link returns the local user for id.
//
// A known identity has its LastUsedAt refreshed and, when id carries a new
// non-empty email, its email snapshot overwritten; the user row is left
// alone. An unknown identity is provisioned with a fresh username, the
// claim email (or a placeholder) and the external-login password sentinel.
//
// Losing a provisioning race to the same identity resolves to the winner's
// user. Losing a username or email race re-probes, at most
// [DefaultMaxProvisionAttempts] times.
func (l *Linker) Link(ctx context.Context, id external.Identity) (_ models.User, err error) {
	ctx, span := l.opts.tracer.Start(ctx, "identity.Link",
		trace.WithAttributes(attribute.String("identity.provider", id.Provider.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(sserr.GetCode(err)))
		}
		span.End()
	}()

	for attempt := 1; ; attempt++ {
		login, user, err := l.store.FindExternalLogin(ctx, id.Provider, id.Subject)
		if err != nil {
			return models.User{}, err
		}
		if login != nil {
			span.SetAttributes(attribute.Bool("identity.provisioned", false))
			return l.refresh(ctx, login, user, id)
		}

		u, err := l.provision(ctx, id)
		if err == nil {
			span.SetAttributes(attribute.Bool("identity.provisioned", true))
			l.opts.metrics.Provision(id.Provider.String(), metrics.OutcomeSuccess)
			l.opts.logger.InfoContext(ctx, "identity: provisioned external user",
				"provider", id.Provider,
				"user_id", u.ID,
				"username", u.Username,
			)
			return u, nil
		}

		switch {
		case sserr.HasCode(err, sserr.CodeConflictExternalLogin):
			// Another request linked this identity first; read its result.
			l.opts.metrics.Provision(id.Provider.String(), metrics.OutcomeConflict)
		case sserr.HasCode(err, sserr.CodeConflictUsernameTaken), sserr.HasCode(err, sserr.CodeConflictEmailTaken):
			l.opts.metrics.Provision(id.Provider.String(), metrics.OutcomeConflict)
		default:
			l.opts.metrics.Provision(id.Provider.String(), metrics.OutcomeError)
			return models.User{}, err
		}

		if attempt >= l.opts.maxAttempts {
			l.opts.logger.WarnContext(ctx, "identity: provisioning gave up after repeated conflicts",
				"provider", id.Provider,
				"attempts", attempt,
			)
			return models.User{}, err
		}
		l.opts.logger.DebugContext(ctx, "identity: provisioning conflict, retrying",
			"provider", id.Provider,
			"attempt", attempt,
			"code", sserr.GetCode(err),
		)
	}
}

func (l *Linker) refresh(ctx context.Context, login *models.ExternalLogin, user *models.User, id external.Identity) (models.User, error) {
	if user == nil {
		return models.User{}, sserr.Internalf("identity: external login %d has no user", login.ID)
	}
	login.Touch(l.opts.now(), id.Email)
	if err := l.store.UpdateExternalLogin(ctx, *login); err != nil {
		return models.User{}, err
	}
	return *user, nil
}

func (l *Linker) provision(ctx context.Context, id external.Identity) (models.User, error) {
	username, err := l.availableUsername(ctx, l.baseUsername(id.Email))
	if err != nil {
		return models.User{}, err
	}

	email := models.PlaceholderEmail(username)
	var snapshot *string
	if id.Email != "" {
		claimed := id.Email
		snapshot = &claimed

		taken, err := l.store.EmailExists(ctx, id.Email)
		if err != nil {
			return models.User{}, err
		}
		if !taken {
			email = id.Email
		}
	}

	now := l.opts.now().UTC()
	user, _, err := l.store.InsertUserWithExternalLogin(ctx,
		models.User{
			Username:     username,
			Email:        email,
			PasswordHash: models.ExternalPasswordHash,
			CreatedAt:    now,
		},
		models.ExternalLogin{
			Provider:       id.Provider,
			ProviderUserID: id.Subject,
			Email:          snapshot,
			CreatedAt:      now,
			LastUsedAt:     &now,
		},
	)
	return user, err
}

// baseUsername is the local part of email, or a random name when there is
// no usable local part.
func (l *Linker) baseUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.TrimSpace(local)
	if local == "" {
		return RandomUsernamePrefix + l.opts.randomID()
	}
	return truncateRunes(local, models.MaxUsernameLength)
}

// availableUsername probes base, base1, base2, ... and returns the first
// name not in use. The base is shortened so the suffixed name still fits.
func (l *Linker) availableUsername(ctx context.Context, base string) (string, error) {
	for i := 0; i < maxUsernameProbes; i++ {
		candidate := base
		if i > 0 {
			suffix := strconv.Itoa(i)
			candidate = truncateRunes(base, models.MaxUsernameLength-len(suffix)) + suffix
		}
		taken, err := l.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", sserr.ConflictUsernameTaken().WithDetail("base", base)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
