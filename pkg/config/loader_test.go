package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

type testProviderConfig struct {
	JWKSURL          string        `env:"JWKS_URL" yaml:"jwks_url" json:"jwks_url" required:"true"`
	ValidateAudience bool          `env:"VALIDATE_AUDIENCE" envDefault:"false" yaml:"validate_audience" json:"validate_audience"`
	CacheTTL         time.Duration `env:"CACHE_TTL" envDefault:"12h" yaml:"cache_ttl" json:"cache_ttl"`
}

type testConfig struct {
	Addr     string             `env:"HTTP_ADDR" envDefault:":8080" yaml:"http_addr" json:"http_addr"`
	Minutes  int                `env:"EXPIRES_MINUTES" envDefault:"60" yaml:"expires_minutes" json:"expires_minutes"`
	Algs     []string           `env:"ALGS" envDefault:"RS256,ES256" yaml:"algs" json:"algs"`
	Provider testProviderConfig `envPrefix:"UPA_" yaml:"upa" json:"upa"`
}

type validatedConfig struct {
	Key string `env:"KEY" envDefault:"short"`
}

func (c *validatedConfig) Validate() error {
	if len(c.Key) < 8 {
		return sserr.Validation("config: key too short")
	}
	return nil
}

func TestLoad_DefaultsOnly(t *testing.T) {
	var cfg testConfig
	err := New().WithEnvironment(map[string]string{"UPA_JWKS_URL": "https://keys"}).Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 60, cfg.Minutes)
	assert.Equal(t, []string{"RS256", "ES256"}, cfg.Algs)
	assert.Equal(t, 12*time.Hour, cfg.Provider.CacheTTL)
	assert.False(t, cfg.Provider.ValidateAudience)
	assert.Equal(t, "https://keys", cfg.Provider.JWKSURL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := testutil.TempFile(t, "identity.yaml", `
http_addr: ":9090"
upa:
  jwks_url: https://file/jwks
  cache_ttl: 1h
`)

	var cfg testConfig
	require.NoError(t, New().WithFile(path).WithEnvironment(map[string]string{}).Load(&cfg))

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.Provider.CacheTTL)
	assert.Equal(t, "https://file/jwks", cfg.Provider.JWKSURL)
	assert.Equal(t, 60, cfg.Minutes, "default survives when the file omits the field")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := testutil.TempFile(t, "identity.json", `{"http_addr": ":9090", "upa": {"jwks_url": "https://file/jwks"}}`)

	var cfg testConfig
	err := New().
		WithEnvPrefix("identity").
		WithFile(path).
		WithEnvironment(map[string]string{
			"IDENTITY_HTTP_ADDR":             ":7070",
			"IDENTITY_UPA_VALIDATE_AUDIENCE": "true",
			"HTTP_ADDR":                      ":1111",
		}).
		Load(&cfg)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.True(t, cfg.Provider.ValidateAudience)
	assert.Equal(t, "https://file/jwks", cfg.Provider.JWKSURL)
}

func TestLoad_RequiredField(t *testing.T) {
	var cfg testConfig
	err := New().WithEnvironment(map[string]string{}).Load(&cfg)
	testutil.RequireErrorCode(t, err, sserr.CodeValidationRequired)
	assert.Contains(t, err.Error(), "Provider.JWKSURL")
}

func TestLoad_Validator(t *testing.T) {
	var cfg validatedConfig
	err := New().WithEnvironment(map[string]string{}).Load(&cfg)
	assert.True(t, sserr.IsValidation(err))

	cfg = validatedConfig{}
	require.NoError(t, New().WithEnvironment(map[string]string{"KEY": "long-enough"}).Load(&cfg))
	assert.Equal(t, "long-enough", cfg.Key)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target any
		loader *Loader
	}{
		{name: "nil pointer", target: (*testConfig)(nil), loader: New()},
		{name: "non-pointer", target: testConfig{}, loader: New()},
		{name: "traversal", target: &testConfig{}, loader: New().WithFile("../etc/identity.yaml")},
		{name: "bad extension", target: &testConfig{}, loader: New().WithFile(testutil.TempFile(t, "identity.toml", "x"))},
		{name: "bad yaml", target: &testConfig{}, loader: New().WithFile(testutil.TempFile(t, "bad.yaml", "http_addr: [")).WithEnvironment(map[string]string{})},
		{name: "bad duration", target: &testConfig{}, loader: New().WithEnvironment(map[string]string{"UPA_CACHE_TTL": "soon"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loader.Load(tt.target)
			testutil.AssertErrorCode(t, err, sserr.CodeInternalConfiguration)
		})
	}
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	var cfg testConfig
	err := New().
		WithFile(filepath.Join(t.TempDir(), "absent.yaml")).
		WithEnvironment(map[string]string{"UPA_JWKS_URL": "https://keys"}).
		Load(&cfg)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad[testConfig](New().WithEnvironment(map[string]string{}))
	})
}
