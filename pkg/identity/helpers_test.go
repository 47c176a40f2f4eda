package identity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/password"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/session"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store/memory"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func testClock() func() time.Time { return func() time.Time { return testNow } }

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Issuer = "https://identity.test"
	cfg.Audience = "game-clients"
	cfg.SigningKey = session.Secret("0123456789abcdef0123456789abcdef")
	return cfg
}

// stubValidator returns a fixed identity or error for every token.
type stubValidator struct {
	id    *external.Identity
	err   error
	calls atomic.Int32
}

func (v *stubValidator) Validate(_ context.Context, _ string) (*external.Identity, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	id := *v.id
	return &id, nil
}

type fixture struct {
	store     *memory.Store
	hasher    *password.Hasher
	validator *stubValidator
	verifier  *session.Verifier
	service   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	hasher, err := password.NewHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := session.NewIssuer(testSessionConfig(), session.WithClock(testClock()))
	require.NoError(t, err)
	verifier, err := session.NewVerifier(testSessionConfig(), session.WithClock(testClock()))
	require.NoError(t, err)

	st := memory.New()
	v := &stubValidator{id: &external.Identity{Provider: models.ProviderUnity, Subject: "player-1", Email: "alice@example.com"}}
	svc, err := NewService(st, hasher, issuer, v, append([]Option{WithClock(testClock())}, opts...)...)
	require.NoError(t, err)
	return &fixture{store: st, hasher: hasher, validator: v, verifier: verifier, service: svc}
}

func (f *fixture) seedUser(t *testing.T, username, email, pw string) models.User {
	t.Helper()
	hash, err := f.hasher.Hash(pw)
	require.NoError(t, err)
	u, err := f.store.InsertUser(context.Background(), models.User{Username: username, Email: email, PasswordHash: hash})
	require.NoError(t, err)
	return u
}

// countingStore wraps a store and can force provisioning conflicts.
type countingStore struct {
	store.Store
	provisionCalls atomic.Int32
	forceConflict  func() error
}

func (s *countingStore) InsertUserWithExternalLogin(ctx context.Context, u models.User, l models.ExternalLogin) (models.User, models.ExternalLogin, error) {
	s.provisionCalls.Add(1)
	if s.forceConflict != nil {
		if err := s.forceConflict(); err != nil {
			return models.User{}, models.ExternalLogin{}, err
		}
	}
	return s.Store.InsertUserWithExternalLogin(ctx, u, l)
}
