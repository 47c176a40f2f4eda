package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasherWithCost(bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func TestNewHasher_DefaultCost(t *testing.T) {
	assert.Equal(t, 11, NewHasher().Cost())
}

func TestNewHasherWithCost_Range(t *testing.T) {
	_, err := NewHasherWithCost(bcrypt.MinCost - 1)
	assert.True(t, sserr.IsValidation(err))

	_, err = NewHasherWithCost(bcrypt.MaxCost + 1)
	assert.True(t, sserr.IsValidation(err))
}

func TestHash_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	for _, pw := range []string{"hunter2", "correct horse battery staple", "пароль", strings.Repeat("x", MaxLength)} {
		hash, err := h.Hash(pw)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2"), "bcrypt output")
		assert.True(t, h.Verify(pw, hash), pw)
		assert.False(t, h.Verify(pw+"!", hash), pw)
	}
}

func TestHash_Salted(t *testing.T) {
	h := newTestHasher(t)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestHash_UsesConfiguredCost(t *testing.T) {
	h, err := NewHasherWithCost(5)
	require.NoError(t, err)
	hash, err := h.Hash("pw")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestHash_Rejects(t *testing.T) {
	h := newTestHasher(t)

	_, err := h.Hash("")
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))

	_, err = h.Hash(strings.Repeat("x", MaxLength+1))
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRange))
}

func TestVerify_NeverMatchesSentinelOrGarbage(t *testing.T) {
	h := newTestHasher(t)

	tests := []struct {
		name     string
		password string
		hash     string
	}{
		{name: "sentinel", password: "EXTERNAL_LOGIN", hash: models.ExternalPasswordHash},
		{name: "sentinel empty password", password: "", hash: models.ExternalPasswordHash},
		{name: "empty hash", password: "pw", hash: ""},
		{name: "plaintext hash", password: "pw", hash: "pw"},
		{name: "truncated bcrypt", password: "pw", hash: "$2a$11$short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify(tt.password, tt.hash))
			})
		})
	}
}

func TestEqualizeTiming_IsSafeConcurrently(t *testing.T) {
	h := newTestHasher(t)
	done := make(chan struct{})
	for range 8 {
		go func() {
			h.EqualizeTiming("anything")
			done <- struct{}{}
		}()
	}
	for range 8 {
		<-done
	}
	assert.NotEmpty(t, h.dummy)
}
