package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xraph/strata"
)

const sample = `
strict: true
log_level: info
scopes:
  - name: base
    abstract: true
    priority: 5
    depends: [main]
  - name: request
    extends: base
  - name: plugins
    embedded: true
    depends: []
`

// unsetEnv clears key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()

	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func clearEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{EnvStrict, EnvImplicit, EnvLogLevel} {
		unsetEnv(t, key)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.True(t, cfg.Strict)
	assert.False(t, cfg.Implicit)
	assert.Equal(t, "info", cfg.LogLevel)
	require.Len(t, cfg.Scopes, 3)
	assert.Equal(t, "base", cfg.Scopes[1].Extends)

	_, err = Parse([]byte("scopes: [oops"))
	assert.Error(t, err)
}

func TestScopeConfigs_Extends(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	scopes, err := cfg.ScopeConfigs()
	require.NoError(t, err)
	require.Len(t, scopes, 3)

	request := scopes[1]
	assert.Equal(t, "request", request.Name)
	assert.Equal(t, 5, request.Priority)
	assert.Equal(t, []string{"main"}, request.Depends)
	assert.False(t, request.Abstract)

	plugins := scopes[2]
	assert.True(t, plugins.Embedded)
	assert.Equal(t, []string{}, plugins.Depends)
}

func TestScopeConfigs_Invalid(t *testing.T) {
	cfg := &Config{Scopes: []ScopeSpec{{Name: "request", Extends: "missing"}}}
	_, err := cfg.ScopeConfigs()
	assert.ErrorContains(t, err, `extends unknown scope "missing"`)

	cfg = &Config{Scopes: []ScopeSpec{{}}}
	_, err = cfg.ScopeConfigs()
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, "strata.yaml", sample)
	envFile := writeFile(t, ".env", "STRATA_IMPLICIT=true\nSTRATA_LOG_LEVEL=DEBUG\nSTRATA_STRICT=true\n")

	t.Setenv(EnvStrict, "false")

	cfg, err := Load(path, envFile, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	// The process environment wins over env files.
	assert.False(t, cfg.Strict)
	assert.True(t, cfg.Implicit)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv(EnvImplicit, "sometimes")

	_, err = Load("")
	assert.ErrorContains(t, err, EnvImplicit)
}

func TestLogger(t *testing.T) {
	logger, err := (&Config{}).Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	logger, err = (&Config{LogLevel: "warn"}).Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))

	_, err = (&Config{LogLevel: "loud"}).Logger()
	assert.Error(t, err)
}

func TestNewContainer(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	cfg.LogLevel = ""

	c, err := cfg.NewContainer(strata.WithImplicit(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Shutdown() })

	names := make([]string, 0, 4)
	for _, s := range c.Scopes() {
		names = append(names, s.Name())
	}

	assert.Equal(t, []string{strata.MainScope, "base", "request", "plugins"}, names)

	require.NoError(t, c.Prepare())
	// Strict containers refuse a second preparation.
	assert.ErrorIs(t, c.Prepare(), strata.ErrConfiguration)

	act, err := c.Use(t.Context(), "request")
	require.NoError(t, err)
	require.NoError(t, act.Close())

	_, err = c.Use(t.Context(), "base")
	assert.ErrorIs(t, err, strata.ErrConfiguration)
}
