package redis

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPort         = 6379
	DefaultPoolSize     = 10
	DefaultMaxRetries   = 3
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 2 * time.Second
	DefaultWriteTimeout = 2 * time.Second
	DefaultKeyPrefix    = "identity:"

	// DefaultSnapshotTTL bounds how long a shared JWKS snapshot outlives
	// the last successful fetch by any replica.
	DefaultSnapshotTTL = 7 * 24 * time.Hour

	// DefaultHealthTimeout applies to Health when the caller's context has
	// no deadline.
	DefaultHealthTimeout = 5 * time.Second
)

// Secret holds a password. It formats and marshals as "[REDACTED]".
type Secret string

const redacted = "[REDACTED]"

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Value returns the plaintext password.
func (s Secret) Value() string { return string(s) }

// Config holds the connection settings for the shared cache. Redis is
// optional: a Config with neither URI nor Host is disabled. When URI is
// set it takes precedence over Host, Port, DB and Password.
type Config struct {
	URI      string `json:"uri,omitempty" yaml:"uri" env:"URI"`
	Host     string `json:"host,omitempty" yaml:"host" env:"HOST"`
	Port     int    `json:"port" yaml:"port" env:"PORT" envDefault:"6379"`
	DB       int    `json:"db" yaml:"db" env:"DB"`
	Password Secret `json:"-" yaml:"password" env:"PASSWORD"`

	PoolSize     int           `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE" envDefault:"10"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT" envDefault:"2s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"2s"`

	// TLSEnabled turns on TLS for structured configuration. A rediss://
	// URI enables it on its own.
	TLSEnabled bool `json:"tls_enabled" yaml:"tls_enabled" env:"TLS_ENABLED"`

	// KeyPrefix namespaces every key written by this service.
	KeyPrefix   string        `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX" envDefault:"identity:"`
	SnapshotTTL time.Duration `json:"snapshot_ttl" yaml:"snapshot_ttl" env:"SNAPSHOT_TTL" envDefault:"168h"`
}

// DefaultConfig returns a disabled configuration with default pool
// settings. Set Host or URI to enable it.
func DefaultConfig() *Config {
	return &Config{
		Port:         DefaultPort,
		PoolSize:     DefaultPoolSize,
		MaxRetries:   DefaultMaxRetries,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		KeyPrefix:    DefaultKeyPrefix,
		SnapshotTTL:  DefaultSnapshotTTL,
	}
}

// Enabled reports whether a server is configured.
func (c *Config) Enabled() bool {
	return c.URI != "" || c.Host != ""
}

// Validate fills zero-valued settings with defaults and checks the rest.
// A disabled Config is always valid.
func (c *Config) Validate() error {
	c.applyDefaults()
	if !c.Enabled() {
		return nil
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("redis: pool_size must be >= 1, got %d", c.PoolSize)
	}
	if c.DialTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("redis: timeouts must not be negative")
	}
	if c.SnapshotTTL < 0 {
		return fmt.Errorf("redis: snapshot_ttl must not be negative, got %v", c.SnapshotTTL)
	}

	if c.URI != "" {
		u, err := url.Parse(c.URI)
		if err != nil {
			return fmt.Errorf("redis: invalid uri: %w", err)
		}
		if u.Scheme != "redis" && u.Scheme != "rediss" {
			return fmt.Errorf("redis: uri scheme must be redis or rediss, got %q", u.Scheme)
		}
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("redis: port must be between 1 and 65535, got %d", c.Port)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis: db must not be negative, got %d", c.DB)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.SnapshotTTL == 0 {
		c.SnapshotTTL = DefaultSnapshotTTL
	}
}
