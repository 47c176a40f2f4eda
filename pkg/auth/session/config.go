package session

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// MinSigningKeyLength is the shortest HMAC key accepted, in bytes.
const MinSigningKeyLength = 32

// Config holds the settings shared by [Issuer] and [Verifier]. Both sides
// must be configured with the same values.
type Config struct {
	// Issuer is written to and required in the "iss" claim.
	Issuer string `json:"issuer" yaml:"issuer" env:"ISSUER" required:"true"`

	// Audience is written to and required in the "aud" claim.
	Audience string `json:"audience" yaml:"audience" env:"AUDIENCE" required:"true"`

	// SigningKey is the HS256 key. At least MinSigningKeyLength bytes.
	SigningKey Secret `json:"-" yaml:"key" env:"KEY" required:"true"`

	// ExpiresMinutes is the token lifetime. Defaults to 60.
	ExpiresMinutes int `json:"expires_minutes" yaml:"expires_minutes" env:"EXPIRES_MINUTES" envDefault:"60"`

	// ClockSkew is the leeway applied by the Verifier to time-based claims.
	ClockSkew time.Duration `json:"clock_skew" yaml:"clock_skew" env:"CLOCK_SKEW" envDefault:"0s"`
}

// DefaultConfig returns a Config with the default lifetime. Issuer, Audience
// and SigningKey must still be set.
func DefaultConfig() Config {
	return Config{ExpiresMinutes: 60}
}

// Lifetime returns the configured token lifetime.
func (c *Config) Lifetime() time.Duration {
	return time.Duration(c.ExpiresMinutes) * time.Minute
}

// Validate checks that the configuration can sign and verify tokens.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return sserr.New(sserr.CodeValidationRequired, "session: issuer is required")
	}
	if c.Audience == "" {
		return sserr.New(sserr.CodeValidationRequired, "session: audience is required")
	}
	if len(c.SigningKey.Value()) < MinSigningKeyLength {
		return sserr.Newf(sserr.CodeValidation,
			"session: signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if c.ExpiresMinutes <= 0 {
		return sserr.Newf(sserr.CodeValidationRange,
			"session: expires minutes must be positive, got %d", c.ExpiresMinutes)
	}
	if c.ClockSkew < 0 {
		return sserr.New(sserr.CodeValidationRange, "session: clock skew must not be negative")
	}
	return nil
}
