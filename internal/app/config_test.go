package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "unit-test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "odyssey-iam", cfg.TokenIssuer)
	assert.False(t, cfg.AuditAsync)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsTTLOutsideWindow(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "unit-test-secret")

	t.Setenv("TOKEN_TTL", "0s")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("TOKEN_TTL", "25h")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("TOKEN_TTL", "24h")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
}

func TestProductionRequiresLongSecret(t *testing.T) {
	cfg := Config{AppEnv: "production", TokenSecret: "short", TokenTTL: time.Minute, RateLimitPerMinute: 1, LoginRateLimitPerMinute: 1}
	require.Error(t, cfg.Validate())

	cfg.TokenSecret = "0123456789abcdef0123456789abcdef"
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsProduction())
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, &Config{LogFormat: "json"}).Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	newLogger(&buf, &Config{LogFormat: "pretty"}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestInTestModeRefresh(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())
}

func TestTestModeAcceptsBooleanSpellings(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "T": true, "1": true, "false": false, "yes": false, "": false} {
		t.Setenv(testModeEnv, value)
		RefreshTestMode()
		assert.Equal(t, want, InTestMode(), "value %q", value)
	}
}

func TestSkipStartupLogsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, SkipStartup(logger, "worker"))
	assert.Contains(t, buf.String(), "component=worker")

	buf.Reset()
	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, SkipStartup(logger, "worker"))
	assert.Empty(t, buf.String())
}
