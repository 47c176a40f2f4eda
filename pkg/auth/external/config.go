package external

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

// Config describes one external identity provider.
type Config struct {
	// Provider is recorded on the ExternalLogin rows this validator
	// produces. Defaults to Unity.
	Provider models.Provider `json:"provider" yaml:"provider" env:"PROVIDER" envDefault:"Unity"`

	// JWKSURL is where the provider publishes its signing keys.
	JWKSURL string `json:"jwks_url" yaml:"jwks_url" env:"JWKS_URL" required:"true"`

	// Issuer must equal the token's "iss" claim.
	Issuer string `json:"issuer" yaml:"issuer" env:"ISSUER" required:"true"`

	// ValidateAudience enables the "aud" check. It defaults to false
	// because the provider does not issue a stable audience for every
	// client; deployments that know theirs should turn it on.
	ValidateAudience bool `json:"validate_audience" yaml:"validate_audience" env:"VALIDATE_AUDIENCE" envDefault:"false"`

	// Audience is required in "aud" when ValidateAudience is set.
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE"`

	// AllowedAlgs lists the accepted signing algorithms. Defaults to
	// RS256 and ES256. Symmetric algorithms are never accepted.
	AllowedAlgs []string `json:"allowed_algs" yaml:"allowed_algs" env:"ALLOWED_ALGS" envDefault:"RS256,ES256"`

	// ClockSkew is the leeway for exp, nbf and iat. Defaults to 30s.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"30s"`
}

// DefaultConfig returns a Unity configuration without endpoint or issuer.
func DefaultConfig() Config {
	return Config{
		Provider:    models.ProviderUnity,
		AllowedAlgs: []string{"RS256", "ES256"},
		ClockSkew:   30 * time.Second,
	}
}

var symmetricAlgs = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
	"none",
}

// Validate checks the provider configuration.
func (c *Config) Validate() error {
	if !c.Provider.Valid() {
		return sserr.Newf(sserr.CodeValidationFormat, "external: unknown provider %q", c.Provider)
	}
	if c.JWKSURL == "" {
		return sserr.New(sserr.CodeValidationRequired, "external: jwks url is required")
	}
	if c.Issuer == "" {
		return sserr.New(sserr.CodeValidationRequired, "external: issuer is required")
	}
	if c.ValidateAudience && c.Audience == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"external: audience is required when audience validation is enabled")
	}
	if len(c.AllowedAlgs) == 0 {
		return sserr.New(sserr.CodeValidationRequired, "external: at least one algorithm is required")
	}
	for _, alg := range c.AllowedAlgs {
		if slices.Contains(symmetricAlgs, alg) {
			return sserr.Newf(sserr.CodeValidation, "external: algorithm %q is not allowed", alg)
		}
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidationRange, "external: clock skew must not be negative")
	}
	return nil
}
