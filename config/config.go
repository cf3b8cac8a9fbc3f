// Package config loads container options from a YAML scope graph and
// environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xraph/strata"
)

// Environment variables that override file settings.
const (
	EnvStrict   = "STRATA_STRICT"
	EnvImplicit = "STRATA_IMPLICIT"
	EnvLogLevel = "STRATA_LOG_LEVEL"
)

// Config is the declarative container configuration.
type Config struct {
	Strict   bool        `yaml:"strict"`
	Implicit bool        `yaml:"implicit"`
	LogLevel string      `yaml:"log_level"`
	Scopes   []ScopeSpec `yaml:"scopes"`
}

// ScopeSpec declares one scope. Extends names an earlier scope whose
// settings are used as the base.
type ScopeSpec struct {
	Name     string   `yaml:"name"`
	Extends  string   `yaml:"extends,omitempty"`
	Depends  []string `yaml:"depends,omitempty"`
	Priority int      `yaml:"priority,omitempty"`
	Embedded bool     `yaml:"embedded,omitempty"`
	Abstract bool     `yaml:"abstract,omitempty"`
}

// Parse decodes a YAML document.
//
// Example:
//
//	strict: true
//	scopes:
//	  - name: base
//	    abstract: true
//	    depends: [main]
//	  - name: request
//	    extends: base
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parsing container config")
	}

	return &cfg, nil
}

// LoadFile reads and parses a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	return Parse(data)
}

// Load reads path, when non-empty, then applies environment overrides
// from the process and envFiles.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(envFiles...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. Values in
// envFiles are used when the process environment does not set them;
// missing files are ignored.
func (c *Config) ApplyEnv(envFiles ...string) error {
	fileVars := map[string]string{}

	for _, f := range envFiles {
		vars, err := godotenv.Read(f)
		if err != nil {
			if os.IsNotExist(errors.Cause(err)) {
				continue
			}

			return errors.Wrapf(err, "reading %s", f)
		}

		for k, v := range vars {
			fileVars[k] = v
		}
	}

	lookup := func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}

		return fileVars[key]
	}

	var err error

	if c.Strict, err = envBool(lookup(EnvStrict), c.Strict); err != nil {
		return errors.Wrap(err, EnvStrict)
	}

	if c.Implicit, err = envBool(lookup(EnvImplicit), c.Implicit); err != nil {
		return errors.Wrap(err, EnvImplicit)
	}

	if v := lookup(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	return nil
}

func envBool(v string, fallback bool) (bool, error) {
	if v == "" {
		return fallback, nil
	}

	return strconv.ParseBool(v)
}

// ScopeConfigs converts the declared scopes, resolving extends.
func (c *Config) ScopeConfigs() ([]strata.ScopeConfig, error) {
	byName := make(map[string]strata.ScopeConfig, len(c.Scopes))
	out := make([]strata.ScopeConfig, 0, len(c.Scopes))

	for _, spec := range c.Scopes {
		if spec.Name == "" {
			return nil, errors.New("scope without a name")
		}

		override := strata.ScopeConfig{
			Name:     spec.Name,
			Priority: spec.Priority,
			Depends:  spec.Depends,
			Embedded: spec.Embedded,
			Abstract: spec.Abstract,
		}

		cfg := override
		if spec.Extends != "" {
			base, ok := byName[spec.Extends]
			if !ok {
				return nil, errors.Errorf("scope %q extends unknown scope %q", spec.Name, spec.Extends)
			}

			cfg = base.Merge(override)
		}

		byName[spec.Name] = cfg
		out = append(out, cfg)
	}

	return out, nil
}

// Logger builds a production zap logger at LogLevel, or a no-op logger
// when LogLevel is empty.
func (c *Config) Logger() (*zap.Logger, error) {
	if c.LogLevel == "" {
		return zap.NewNop(), nil
	}

	level, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}

	zc := zap.NewProductionConfig()
	zc.Level = level

	return zc.Build()
}

// Options converts the configuration into container options.
func (c *Config) Options() ([]strata.Option, error) {
	scopes, err := c.ScopeConfigs()
	if err != nil {
		return nil, err
	}

	logger, err := c.Logger()
	if err != nil {
		return nil, err
	}

	return []strata.Option{
		strata.WithStrict(c.Strict),
		strata.WithImplicit(c.Implicit),
		strata.WithLogger(logger),
		strata.WithScopes(scopes...),
	}, nil
}

// NewContainer builds a container from the configuration.
func (c *Config) NewContainer(extra ...strata.Option) (*strata.Container, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}

	return strata.New(append(opts, extra...)...)
}
