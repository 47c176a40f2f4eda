package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/fixtures"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

func baseEnv() map[string]string {
	return map[string]string{
		"IDENTITY_JWT_ISSUER":   fixtures.Issuer,
		"IDENTITY_JWT_AUDIENCE": fixtures.Audience,
		"IDENTITY_JWT_KEY":      fixtures.SigningKey,
		"IDENTITY_UPA_JWKS_URL": "https://keys.test/jwks.json",
		"IDENTITY_UPA_ISSUER":   fixtures.UPAIssuer,
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("", baseEnv())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 60, cfg.JWT.ExpiresMinutes)
	assert.Equal(t, fixtures.SigningKey, cfg.JWT.SigningKey.Value())
	assert.Equal(t, models.ProviderUnity, cfg.UPA.Provider)
	assert.False(t, cfg.UPA.ValidateAudience)
	assert.Equal(t, 30*time.Second, cfg.UPA.ClockSkew)
	assert.Equal(t, []string{"RS256", "ES256"}, cfg.UPA.AllowedAlgs)
	assert.Equal(t, 12*time.Hour, cfg.JWKS.TTL)
	assert.Equal(t, 5*time.Second, cfg.JWKS.FetchTimeout)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 7*24*time.Hour, cfg.Redis.SnapshotTTL)

	testutil.AssertJSONNotContains(t, cfg, fixtures.SigningKey)
}

func TestLoadConfig_Overrides(t *testing.T) {
	env := baseEnv()
	env["IDENTITY_HTTP_ADDR"] = ":9000"
	env["IDENTITY_STORE_DRIVER"] = "postgres"
	env["IDENTITY_POSTGRES_HOST"] = "db.internal"
	env["IDENTITY_POSTGRES_PASSWORD"] = "hunter2"
	env["IDENTITY_UPA_VALIDATE_AUDIENCE"] = "true"
	env["IDENTITY_UPA_AUDIENCE"] = "upa:project"
	env["IDENTITY_UPA_JWKS_CACHE_TTL"] = "1h"
	env["IDENTITY_JWT_EXPIRES_MINUTES"] = "15"
	env["IDENTITY_REDIS_HOST"] = "cache.internal"
	env["IDENTITY_REDIS_PASSWORD"] = "s3cret"

	cfg, err := loadConfig("", env)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.True(t, cfg.UPA.ValidateAudience)
	assert.Equal(t, "upa:project", cfg.UPA.Audience)
	assert.Equal(t, time.Hour, cfg.JWKS.TTL)
	assert.Equal(t, 15, cfg.JWT.ExpiresMinutes)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 6379, cfg.Redis.Port)
	testutil.AssertJSONNotContains(t, cfg, "hunter2")
	testutil.AssertJSONNotContains(t, cfg, "s3cret")
}

func TestLoadConfig_File(t *testing.T) {
	path := testutil.TempFile(t, "identity.yaml", `
http_addr: ":7000"
store_driver: sqlite
sqlite_path: /var/lib/identity/identity.db
upa:
  issuer: https://from-file.test
`)
	cfg, err := loadConfig(path, baseEnv())
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, fixtures.UPAIssuer, cfg.UPA.Issuer, "environment wins over the file")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]string
		drop string
		want sserr.Code
	}{
		{name: "missing jwt key", drop: "IDENTITY_JWT_KEY", want: sserr.CodeValidationRequired},
		{name: "missing jwks url", drop: "IDENTITY_UPA_JWKS_URL", want: sserr.CodeValidationRequired},
		{name: "unknown driver", set: map[string]string{"IDENTITY_STORE_DRIVER": "mongo"}, want: sserr.CodeValidationFormat},
		{name: "bad log level", set: map[string]string{"IDENTITY_LOG_LEVEL": "loud"}, want: sserr.CodeValidationFormat},
		{name: "audience without value", set: map[string]string{"IDENTITY_UPA_VALIDATE_AUDIENCE": "true"}, want: sserr.CodeValidationRequired},
		{name: "empty sqlite path", set: map[string]string{"IDENTITY_STORE_DRIVER": "sqlite", "IDENTITY_SQLITE_PATH": " "}, want: sserr.CodeValidationRequired},
		{name: "redis uri scheme", set: map[string]string{"IDENTITY_REDIS_URI": "http://cache"}, want: sserr.CodeValidation},
		{name: "symmetric alg", set: map[string]string{"IDENTITY_UPA_ALLOWED_ALGS": "RS256,HS256"}, want: sserr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			delete(env, tt.drop)
			for k, v := range tt.set {
				env[k] = v
			}
			_, err := loadConfig("", env)
			testutil.AssertErrorCode(t, err, tt.want)
		})
	}
}
