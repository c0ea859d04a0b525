package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sportscouncil/tournament-gateway/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  port: "9000"
  mode: %MODE%
store:
  driver: memory
jwt:
  issuer: test-issuer
  ttl: 45m
auth:
  lookup_timeout: 1s
password:
  cost: 4
login_limit:
  attempts: 3
  window: 1m
`

func writeEnv(t *testing.T, name, mode string) {
	t.Helper()
	dir := t.TempDir()
	body := strings.ReplaceAll(baseYAML, "%MODE%", mode)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o600))
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("JWT_SECRET", "")
}

func TestLoad_ReleaseRequiresSecret(t *testing.T) {
	writeEnv(t, "prod", config.ModeRelease)

	_, err := config.Load("prod")

	assert.ErrorIs(t, err, config.ErrMissingSigningKey)
}

func TestLoad_ReleaseRejectsShortSecret(t *testing.T) {
	writeEnv(t, "prod", config.ModeRelease)
	t.Setenv("JWT_SECRET", "too-short")

	_, err := config.Load("prod")

	assert.ErrorIs(t, err, config.ErrWeakSigningKey)
}

func TestLoad_ReleaseWithSecret(t *testing.T) {
	// Arrange
	writeEnv(t, "prod", config.ModeRelease)
	secret := strings.Repeat("k", 48)
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("PORT", "9100")

	// Act
	cfg, err := config.Load("prod")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, secret, cfg.JWT.Secret)
	assert.False(t, cfg.JWT.Generated)
	assert.Equal(t, 45*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, time.Second, cfg.Auth.LookupTimeout)
	assert.Equal(t, time.Minute, cfg.LoginLimit.Window)
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, "test-issuer", cfg.JWT.Issuer)
	assert.False(t, cfg.Development())
}

func TestLoad_DebugGeneratesSecret(t *testing.T) {
	writeEnv(t, "local", config.ModeDebug)

	first, err := config.Load("local")
	require.NoError(t, err)
	second, err := config.Load("local")
	require.NoError(t, err)

	assert.True(t, first.JWT.Generated)
	assert.GreaterOrEqual(t, len(first.JWT.Secret), 32)
	assert.NotEqual(t, first.JWT.Secret, second.JWT.Secret, "each process gets its own key")
}

func TestLoad_EnvOverrides(t *testing.T) {
	writeEnv(t, "local", config.ModeDebug)
	t.Setenv("PASSWORD_COST", "11")
	t.Setenv("TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("STORE_DRIVER", config.DriverMongo)

	cfg, err := config.Load("local")

	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Password.Cost)
	assert.Equal(t, int64(-100123), cfg.Telegram.ChatID)
	assert.Equal(t, config.DriverMongo, cfg.Store.Driver)
}

func TestLoad_BadInteger(t *testing.T) {
	writeEnv(t, "local", config.ModeDebug)
	t.Setenv("PASSWORD_COST", "twelve")

	_, err := config.Load("local")

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.Server.Mode = config.ModeRelease
		cfg.Store.Driver = config.DriverMemory
		cfg.JWT.Secret = strings.Repeat("s", 32)
		cfg.JWT.RawTTL = "30m"
		cfg.Password.Cost = 10
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "redis" }},
		{"unknown mode", func(c *config.Config) { c.Server.Mode = "staging" }},
		{"zero ttl", func(c *config.Config) { c.JWT.RawTTL = "0s" }},
		{"missing ttl", func(c *config.Config) { c.JWT.RawTTL = "" }},
		{"cost too low", func(c *config.Config) { c.Password.Cost = 1 }},
		{"cost too high", func(c *config.Config) { c.Password.Cost = 40 }},
		{"bad lookup timeout", func(c *config.Config) { c.Auth.RawLookupTimeout = "soon" }},
		{"limit without window", func(c *config.Config) { c.LoginLimit.Attempts = 5 }},
		{"redis without attempts", func(c *config.Config) { c.Redis.Addr = "redis:6379" }},
		{"redis with zero attempts", func(c *config.Config) {
			c.Redis.Addr = "redis:6379"
			c.LoginLimit.Attempts = 0
			c.LoginLimit.RawWindow = "15m"
		}},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_RedisRequiresAttempts(t *testing.T) {
	// Arrange
	cfg := &config.Config{}
	cfg.Server.Mode = config.ModeDebug
	cfg.Store.Driver = config.DriverMemory
	cfg.JWT.RawTTL = "30m"
	cfg.Password.Cost = 10
	cfg.Redis.Addr = "localhost:6379"

	// Act
	err := cfg.Validate()

	// Assert
	assert.ErrorIs(t, err, config.ErrLoginLimitUnset)

	cfg.LoginLimit.Attempts = 5
	cfg.LoginLimit.RawWindow = "15m"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.LoginLimit.Window)
}

func TestLoadStore_ReleaseWithoutSecret(t *testing.T) {
	writeEnv(t, "prod", config.ModeRelease)

	cfg, err := config.LoadStore("prod")

	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Empty(t, cfg.JWT.Secret)

	_, err = config.Load("prod")
	assert.ErrorIs(t, err, config.ErrMissingSigningKey)
}

func TestLoadStore_StillChecksStoreSections(t *testing.T) {
	writeEnv(t, "prod", config.ModeRelease)
	t.Setenv("STORE_DRIVER", "cassandra")

	_, err := config.LoadStore("prod")

	assert.Error(t, err)
}
