package session

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testSigningKey = "this-is-a-32-byte-test-signing-k"

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Issuer = "identity-test"
	cfg.Audience = "game-client"
	cfg.SigningKey = Secret(testSigningKey)
	return cfg
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testUser() models.User {
	return models.User{ID: 42, Username: "alice", Email: "alice@example.com", PasswordHash: "$2a$04$x"}
}

func issueAt(t *testing.T, cfg Config, at time.Time) Token {
	t.Helper()
	issuer, err := NewIssuer(cfg, WithClock(fixedClock(at)))
	require.NoError(t, err)
	tok, err := issuer.Issue(testUser())
	require.NoError(t, err)
	return tok
}

func verifierAt(t *testing.T, cfg Config, at time.Time) *Verifier {
	t.Helper()
	v, err := NewVerifier(cfg, WithClock(fixedClock(at)))
	require.NoError(t, err)
	return v
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, func() error { c := testConfig(); return c.Validate() }())

	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{name: "missing issuer", mut: func(c *Config) { c.Issuer = "" }},
		{name: "missing audience", mut: func(c *Config) { c.Audience = "" }},
		{name: "short key", mut: func(c *Config) { c.SigningKey = "short" }},
		{name: "zero lifetime", mut: func(c *Config) { c.ExpiresMinutes = 0 }},
		{name: "negative skew", mut: func(c *Config) { c.ClockSkew = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mut(&cfg)
			assert.True(t, sserr.IsValidation(cfg.Validate()))

			_, err := NewIssuer(cfg)
			assert.Error(t, err)
			_, err = NewVerifier(cfg)
			assert.Error(t, err)
		})
	}
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret(testSigningKey)
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED] [REDACTED] [REDACTED]", fmt.Sprintf("%v %s %#v", s, s, s))
	assert.NotContains(t, fmt.Sprintf("%+v", testConfig()), testSigningKey)
	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))
	assert.Equal(t, testSigningKey, s.Value())
}

// ---------------------------------------------------------------------------
// Issue
// ---------------------------------------------------------------------------

func TestIssue_Claims(t *testing.T) {
	cfg := testConfig()
	tok := issueAt(t, cfg, testNow)

	assert.Equal(t, testNow.Add(60*time.Minute), tok.ExpiresAt)

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tok.Value, claims, func(tk *jwt.Token) (any, error) {
		assert.Equal(t, "HS256", tk.Method.Alg())
		return []byte(testSigningKey), nil
	}, jwt.WithTimeFunc(fixedClock(testNow)))
	require.NoError(t, err)

	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "alice", claims.UniqueName)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "identity-test", claims.Issuer)
	assert.Equal(t, jwt.ClaimStrings{"game-client"}, claims.Audience)
	assert.Equal(t, testNow, claims.IssuedAt.Time.UTC())
	assert.Equal(t, testNow.Add(time.Hour), claims.ExpiresAt.Time.UTC())
	assert.NotEmpty(t, claims.ID)
}

func TestIssue_ExpiryUsesConfiguredMinutesInUTC(t *testing.T) {
	cfg := testConfig()
	cfg.ExpiresMinutes = 15
	local := time.Date(2026, 5, 4, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	tok := issueAt(t, cfg, local)
	assert.Equal(t, time.UTC, tok.ExpiresAt.Location())
	assert.Equal(t, local.Add(15*time.Minute).UTC(), tok.ExpiresAt)
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	issuer, err := NewIssuer(testConfig(), WithClock(fixedClock(testNow)))
	require.NoError(t, err)

	a, err := issuer.Issue(testUser())
	require.NoError(t, err)
	b, err := issuer.Issue(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)
}

func TestIssue_RejectsUnsavedUser(t *testing.T) {
	issuer, err := NewIssuer(testConfig())
	require.NoError(t, err)

	_, err = issuer.Issue(models.User{Username: "ghost", Email: "g@example.com"})
	assert.True(t, sserr.IsInternal(err))
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerify_RoundTrip(t *testing.T) {
	cfg := testConfig()
	tok := issueAt(t, cfg, testNow)

	claims, err := verifierAt(t, cfg, testNow.Add(59*time.Minute)).Verify(context.Background(), tok.Value)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "alice", claims.Username())
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestVerify_Rejects(t *testing.T) {
	cfg := testConfig()
	tok := issueAt(t, cfg, testNow)

	otherIssuer := testConfig()
	otherIssuer.Issuer = "someone-else"

	otherAudience := testConfig()
	otherAudience.Audience = "admin-console"

	otherKey := testConfig()
	otherKey.SigningKey = Secret(strings.Repeat("k", 32))

	tests := []struct {
		name  string
		cfg   Config
		at    time.Time
		token string
		code  sserr.Code
	}{
		{name: "expired", cfg: cfg, at: testNow.Add(61 * time.Minute), token: tok.Value, code: sserr.CodeAuthenticationExpired},
		{name: "wrong issuer", cfg: otherIssuer, at: testNow, token: tok.Value, code: sserr.CodeAuthenticationInvalid},
		{name: "wrong audience", cfg: otherAudience, at: testNow, token: tok.Value, code: sserr.CodeAuthenticationInvalid},
		{name: "wrong key", cfg: otherKey, at: testNow, token: tok.Value, code: sserr.CodeAuthenticationInvalid},
		{name: "tampered payload", cfg: cfg, at: testNow, token: tamper(tok.Value), code: sserr.CodeAuthenticationInvalid},
		{name: "garbage", cfg: cfg, at: testNow, token: "not.a.jwt", code: sserr.CodeAuthenticationInvalid},
		{name: "empty", cfg: cfg, at: testNow, token: "", code: sserr.CodeAuthenticationInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifierAt(t, tt.cfg, tt.at).Verify(context.Background(), tt.token)
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.MapClaims{
		"sub": "42", "iss": "identity-test", "aud": "game-client",
		"exp": testNow.Add(time.Hour).Unix(),
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSigningKey))
	require.NoError(t, err)

	v := verifierAt(t, testConfig(), testNow)
	for _, tok := range []string{none, hs512} {
		_, err := v.Verify(context.Background(), tok)
		assert.True(t, sserr.IsAuthentication(err))
	}
}

func TestVerify_RequiresExpiryAndNumericSubject(t *testing.T) {
	sign := func(c jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(testSigningKey))
		require.NoError(t, err)
		return s
	}
	v := verifierAt(t, testConfig(), testNow)

	_, err := v.Verify(context.Background(), sign(jwt.MapClaims{"sub": "42", "iss": "identity-test", "aud": "game-client"}))
	assert.True(t, sserr.IsAuthentication(err), "missing exp")

	_, err = v.Verify(context.Background(), sign(jwt.MapClaims{
		"sub": "alice", "iss": "identity-test", "aud": "game-client", "exp": testNow.Add(time.Hour).Unix(),
	}))
	assert.True(t, sserr.HasCode(err, sserr.CodeAuthenticationInvalid), "non-numeric subject")
}

func TestVerify_ClockSkew(t *testing.T) {
	cfg := testConfig()
	tok := issueAt(t, cfg, testNow)

	cfg.ClockSkew = 2 * time.Minute
	_, err := verifierAt(t, cfg, testNow.Add(61*time.Minute)).Verify(context.Background(), tok.Value)
	assert.NoError(t, err)
}

// tamper flips the payload so the signature no longer matches.
func tamper(token string) string {
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[0] == 'e' {
		payload[0] = 'f'
	} else {
		payload[0] = 'e'
	}
	parts[1] = string(payload)
	return strings.Join(parts, ".")
}
