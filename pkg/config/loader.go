// Package config loads service configuration from struct tag defaults, an
// optional YAML or JSON file, and environment variables. Values resolve in
// priority order:
//
//	envDefault struct tags  (lowest priority)
//	YAML/JSON config file   (medium priority)
//	Environment variables   (highest priority)
//
// Environment parsing is delegated to github.com/caarlos0/env/v11, so the
// usual env tags apply: `env:"NAME"`, `envDefault:"value"`,
// `envPrefix:"NESTED_"` for nested structs, and comma-separated slices.
// Fields tagged `required:"true"` must be non-zero once all layers have been
// applied, and structs implementing [Validator] are validated last.
//
// # Usage
//
//	type ServerConfig struct {
//	    Addr    string        `env:"HTTP_ADDR" envDefault:":8080" yaml:"http_addr"`
//	    Timeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s" yaml:"shutdown_timeout"`
//	}
//
//	cfg := config.MustLoad[ServerConfig](
//	    config.New().WithEnvPrefix("IDENTITY").WithFile("identity.yaml"),
//	)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// noDefaultsTag names a struct tag that no config type uses. Passing it as
// the default-value tag makes the environment pass skip envDefault, so that
// defaults never overwrite values read from the file.
const noDefaultsTag = "envNoDefault"

// Loader resolves configuration layers into a struct. Use [New] and the
// With* methods to configure it before calling [Loader.Load].
//
// Loader is not safe for concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	environ   map[string]string
}

// New creates a [Loader] that reads the process environment, with no
// prefix and no file.
func New() *Loader {
	return &Loader{}
}

// WithEnvPrefix prepends PREFIX_ to every environment variable name. The
// prefix is uppercased. An empty prefix disables prefixing.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets the path of a YAML (.yaml, .yml) or JSON (.json) file. A
// missing file is not an error. Paths containing ".." are rejected.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithEnvironment replaces the process environment with the given map.
// Tests use it to avoid mutating os.Environ.
func (l *Loader) WithEnvironment(environ map[string]string) *Loader {
	l.environ = environ
	return l
}

// Load populates cfg, which must be a non-nil pointer to a struct. Loading
// failures carry [sserr.CodeInternalConfiguration]; validation failures
// carry [sserr.CodeValidationRequired] or [sserr.CodeValidation].
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}

	// Defaults only: an empty environment means every field falls back to
	// its envDefault tag.
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration, "config: failed to apply defaults")
	}

	if l.filePath != "" {
		if err := l.loadFile(cfg); err != nil {
			return err
		}
	}

	opts := env.Options{DefaultValueTagName: noDefaultsTag}
	if l.envPrefix != "" {
		opts.Prefix = l.envPrefix + "_"
	}
	if l.environ != nil {
		opts.Environment = l.environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalConfiguration, "config: failed to read environment")
	}

	return validate(cfg, rv.Elem())
}

// MustLoad creates a zero T, loads it and panics on failure. Intended for
// func main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain directory traversal (..) sequences")
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: failed to read file %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse YAML file %q", l.filePath)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to parse JSON file %q", l.filePath)
		}
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q (use .yaml, .yml, or .json)", ext)
	}
	return nil
}
