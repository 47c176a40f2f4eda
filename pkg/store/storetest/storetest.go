// Package storetest holds a behavioural test suite shared by every
// [store.Store] implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
	"github.com/StricklySoft/stricklysoft-identity/pkg/store"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run exercises the store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAndFindUser", testInsertAndFindUser},
		{"FindIsExactMatch", testFindIsExactMatch},
		{"Exists", testExists},
		{"UsernameConflict", testUsernameConflict},
		{"EmailConflict", testEmailConflict},
		{"ExternalLoginRoundTrip", testExternalLoginRoundTrip},
		{"ExternalLoginConflict", testExternalLoginConflict},
		{"UpdateExternalLogin", testUpdateExternalLogin},
		{"ProvisionIsAtomic", testProvisionIsAtomic},
		{"ConcurrentInsertSameUsername", testConcurrentInsertSameUsername},
		{"Health", testHealth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newUser(name string) models.User {
	return models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "$2a$11$abcdefghijklmnopqrstuuJ0m3Qd7W7N1k5x2Yq9vZ8c6b4a2e0Ga",
	}
}

func ptr[T any](v T) *T { return &v }

func testInsertAndFindUser(t *testing.T, s store.Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	u, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)
	assert.Positive(t, u.ID)
	assert.WithinDuration(t, time.Now(), u.CreatedAt, time.Minute)
	assert.True(t, u.CreatedAt.After(before))

	byName, err := s.FindUserByUsernameOrEmail(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, "alice@example.com", byName.Email)
	assert.Equal(t, u.PasswordHash, byName.PasswordHash)

	byEmail, err := s.FindUserByUsernameOrEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	byID, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "alice", byID.Username)

	missing, err := s.FindUserByID(ctx, u.ID+1000)
	require.NoError(t, err)
	assert.Nil(t, missing)

	second, err := s.InsertUser(ctx, newUser("bob"))
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, second.ID)
}

func testFindIsExactMatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)

	for _, probe := range []string{"Alice", "alice ", "ALICE@example.com", "ali", ""} {
		u, err := s.FindUserByUsernameOrEmail(ctx, probe)
		require.NoError(t, err)
		assert.Nil(t, u, "probe %q", probe)
	}
}

func testExists(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)

	ok, err := s.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UsernameExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "usernames and emails are separate namespaces")

	ok, err = s.EmailExists(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.EmailExists(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUsernameConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)

	dup := newUser("alice")
	dup.Email = "other@example.com"
	_, err = s.InsertUser(ctx, dup)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictUsernameTaken), "got %v", err)
}

func testEmailConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)

	dup := newUser("alice2")
	dup.Email = "alice@example.com"
	_, err = s.InsertUser(ctx, dup)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictEmailTaken), "got %v", err)
}

func testExternalLoginRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)

	l, err := s.InsertExternalLogin(ctx, models.ExternalLogin{
		UserID:         u.ID,
		Provider:       models.ProviderUnity,
		ProviderUserID: "player-1",
		Email:          ptr("alice@example.com"),
	})
	require.NoError(t, err)
	assert.Positive(t, l.ID)
	assert.Nil(t, l.LastUsedAt)

	got, owner, err := s.FindExternalLogin(ctx, models.ProviderUnity, "player-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, owner)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, "alice@example.com", got.EmailSnapshot())
	assert.Equal(t, "alice", owner.Username)

	got, owner, err = s.FindExternalLogin(ctx, models.ProviderGoogle, "player-1")
	require.NoError(t, err)
	assert.Nil(t, got, "provider is part of the key")
	assert.Nil(t, owner)

	_, err = s.InsertExternalLogin(ctx, models.ExternalLogin{
		UserID:         u.ID + 1000,
		Provider:       models.ProviderUnity,
		ProviderUserID: "player-orphan",
	})
	assert.Error(t, err, "link to unknown user")
}

func testExternalLoginConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)
	b, err := s.InsertUser(ctx, newUser("bob"))
	require.NoError(t, err)

	_, err = s.InsertExternalLogin(ctx, models.ExternalLogin{UserID: a.ID, Provider: models.ProviderUnity, ProviderUserID: "p"})
	require.NoError(t, err)
	_, err = s.InsertExternalLogin(ctx, models.ExternalLogin{UserID: b.ID, Provider: models.ProviderUnity, ProviderUserID: "p"})
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictExternalLogin), "got %v", err)
}

func testUpdateExternalLogin(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.InsertUser(ctx, newUser("alice"))
	require.NoError(t, err)
	l, err := s.InsertExternalLogin(ctx, models.ExternalLogin{UserID: u.ID, Provider: models.ProviderUnity, ProviderUserID: "p"})
	require.NoError(t, err)

	used := time.Now().UTC().Truncate(time.Microsecond)
	l.Touch(used, "new@example.com")
	require.NoError(t, s.UpdateExternalLogin(ctx, l))

	got, _, err := s.FindExternalLogin(ctx, models.ProviderUnity, "p")
	require.NoError(t, err)
	require.NotNil(t, got.LastUsedAt)
	assert.True(t, used.Equal(*got.LastUsedAt), "want %v, got %v", used, *got.LastUsedAt)
	assert.Equal(t, "new@example.com", got.EmailSnapshot())

	owner, err := s.FindUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", owner.Email, "user row untouched")
}

func testProvisionIsAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.InsertUser(ctx, newUser("taken"))
	require.NoError(t, err)

	u := newUser("fresh")
	u.Email = "taken@example.com"
	u.PasswordHash = models.ExternalPasswordHash
	_, _, err = s.InsertUserWithExternalLogin(ctx, u, models.ExternalLogin{Provider: models.ProviderUnity, ProviderUserID: "p"})
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictEmailTaken), "got %v", err)

	ok, err := s.UsernameExists(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, ok, "user must not be written when provisioning fails")
	l, _, err := s.FindExternalLogin(ctx, models.ProviderUnity, "p")
	require.NoError(t, err)
	assert.Nil(t, l)

	u.Email = "fresh@example.com"
	now := time.Now().UTC().Truncate(time.Microsecond)
	created, link, err := s.InsertUserWithExternalLogin(ctx, u, models.ExternalLogin{
		Provider:       models.ProviderUnity,
		ProviderUserID: "p",
		CreatedAt:      now,
		LastUsedAt:     &now,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, link.UserID)
	assert.True(t, created.IsExternal())

	again := newUser("fresh2")
	again.PasswordHash = models.ExternalPasswordHash
	_, _, err = s.InsertUserWithExternalLogin(ctx, again, models.ExternalLogin{Provider: models.ProviderUnity, ProviderUserID: "p"})
	assert.True(t, sserr.HasCode(err, sserr.CodeConflictExternalLogin), "got %v", err)
	ok, err = s.UsernameExists(ctx, "fresh2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentInsertSameUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := newUser("racer")
			u.Email = fmt.Sprintf("racer%d@example.com", i)
			_, errs[i] = s.InsertUser(ctx, u)
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, sserr.HasCode(err, sserr.CodeConflictUsernameTaken), "got %v", err)
	}
	assert.Equal(t, 1, wins)
}

func testHealth(t *testing.T, s store.Store) {
	assert.NoError(t, s.Health(context.Background()))
}
