package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/external"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/jwks"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth/session"
	pgclient "github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	redisclient "github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	"github.com/StricklySoft/stricklysoft-identity/pkg/config"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// EnvPrefix prefixes every environment variable, e.g. IDENTITY_HTTP_ADDR.
const EnvPrefix = "IDENTITY"

// Config is the daemon configuration. Nested sections read their variables
// under their own prefix: IDENTITY_JWT_KEY, IDENTITY_UPA_JWKS_URL,
// IDENTITY_POSTGRES_HOST and so on. Redis is optional and stays off unless
// IDENTITY_REDIS_HOST or IDENTITY_REDIS_URI is set.
type Config struct {
	HTTPAddr        string        `json:"http_addr" yaml:"http_addr" env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `json:"log_level" yaml:"log_level" env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver string `json:"store_driver" yaml:"store_driver" env:"STORE_DRIVER" envDefault:"memory"`
	SQLitePath  string `json:"sqlite_path" yaml:"sqlite_path" env:"SQLITE_PATH" envDefault:"identity.db"`

	Postgres pgclient.Config    `json:"postgres" yaml:"postgres" envPrefix:"POSTGRES_"`
	Redis    redisclient.Config `json:"redis" yaml:"redis" envPrefix:"REDIS_"`
	JWT      session.Config     `json:"jwt" yaml:"jwt" envPrefix:"JWT_"`
	UPA      external.Config    `json:"upa" yaml:"upa" envPrefix:"UPA_"`
	JWKS     jwks.Config        `json:"jwks" yaml:"jwks" envPrefix:"UPA_"`
}

var _ config.Validator = (*Config)(nil)

// Validate checks cross-section rules the required tags cannot express.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return sserr.Required("http_addr")
	}
	if c.ShutdownTimeout <= 0 {
		return sserr.New(sserr.CodeValidationRange, "config: shutdown_timeout must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return sserr.Required("sqlite_path")
		}
	case DriverPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return err
		}
	default:
		return sserr.Newf(sserr.CodeValidationFormat, "config: unknown store driver %q", c.StoreDriver)
	}
	if err := c.Redis.Validate(); err != nil {
		return sserr.Wrap(err, sserr.CodeValidation, "config: invalid redis section")
	}
	if err := c.JWT.Validate(); err != nil {
		return err
	}
	return c.UPA.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, sserr.Wrapf(err, sserr.CodeValidationFormat, "config: invalid log level %q", s)
	}
	return level, nil
}

func loadConfig(file string, environ map[string]string) (Config, error) {
	var cfg Config
	loader := config.New().WithEnvPrefix(EnvPrefix).WithFile(file)
	if environ != nil {
		loader = loader.WithEnvironment(environ)
	}
	err := loader.Load(&cfg)
	return cfg, err
}
