package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"KILIMO_CONFIG", "APP_ENV", "KILIMO_API_BASE_URL", "KILIMO_API_TIMEOUT",
	"KILIMO_AUTH_TRANSPORT", "KILIMO_CSRF_ENABLED", "KILIMO_SESSION_COOKIE",
	"KILIMO_CSRF_COOKIE", "KILIMO_CSRF_HEADER", "KILIMO_STORAGE",
	"KILIMO_STORAGE_PATH", "KILIMO_CREDENTIAL_KEY", "KILIMO_REDIS_ADDR",
	"KILIMO_REDIS_PASSWORD", "KILIMO_REDIS_DB", "KILIMO_PORTAL_ADDRESS",
	"KILIMO_REFRESH_SCHEDULE", "KILIMO_BREAKER_THRESHOLD", "KILIMO_BREAKER_COOLDOWN",
}

// clearEnv blanks every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_RequiresBaseURL(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrBaseURLRequired)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("KILIMO_API_BASE_URL", "https://api.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, TransportBearer, cfg.Auth.Transport)
	assert.False(t, cfg.Auth.CSRFEnabled)
	assert.Equal(t, "X-CSRFToken", cfg.Auth.CSRFHeaderName)
	assert.Equal(t, "csrftoken", cfg.Auth.CSRFCookieName)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "./data/kilimo.db", cfg.Storage.Path)
	assert.Equal(t, "token", cfg.Storage.CredentialKey)
	assert.Equal(t, "127.0.0.1:8090", cfg.Portal.ListenAddress)
	assert.Equal(t, "@every 5m", cfg.Session.RefreshSchedule)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_CookieTransportEnablesCSRF(t *testing.T) {
	clearEnv(t)
	t.Setenv("KILIMO_API_BASE_URL", "https://api.example.com")
	t.Setenv("KILIMO_AUTH_TRANSPORT", "COOKIE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportCookie, cfg.Auth.Transport)
	assert.True(t, cfg.Auth.CSRFEnabled)

	t.Setenv("KILIMO_CSRF_ENABLED", "false")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.Auth.CSRFEnabled, "explicit setting wins")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("KILIMO_API_BASE_URL", "http://localhost:8000")
	t.Setenv("APP_ENV", "development")
	t.Setenv("KILIMO_API_TIMEOUT", "5s")
	t.Setenv("KILIMO_STORAGE", "redis")
	t.Setenv("KILIMO_REDIS_ADDR", "redis:6380")
	t.Setenv("KILIMO_REDIS_DB", "3")
	t.Setenv("KILIMO_BREAKER_THRESHOLD", "2")
	t.Setenv("KILIMO_BREAKER_COOLDOWN", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, StorageRedis, cfg.Storage.Driver)
	assert.Equal(t, "redis:6380", cfg.Storage.RedisAddr)
	assert.Equal(t, 3, cfg.Storage.RedisDB)
	assert.Equal(t, 2, cfg.Breaker.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Breaker.Cooldown)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "kilimo.yaml")
	content := `
environment: development
api:
  base_url: https://nyangi-market.onrender.com
  timeout: 12s
auth:
  transport: cookie
storage:
  driver: memory
portal:
  listen_address: 127.0.0.1:9999
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("KILIMO_CONFIG", path)
	t.Setenv("KILIMO_PORTAL_ADDRESS", "127.0.0.1:7000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://nyangi-market.onrender.com", cfg.API.BaseURL)
	assert.Equal(t, 12*time.Second, cfg.API.Timeout)
	assert.Equal(t, TransportCookie, cfg.Auth.Transport)
	assert.True(t, cfg.Auth.CSRFEnabled)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "127.0.0.1:7000", cfg.Portal.ListenAddress)
	assert.Equal(t, "sessionid", cfg.Auth.SessionCookieName, "unset file keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("KILIMO_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "relative url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: true},
		{name: "ftp url", mutate: func(c *Config) { c.API.BaseURL = "ftp://example.com" }, wantErr: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Auth.Transport = "basic" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, wantErr: true},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) {
			c.Storage.Driver = StorageRedis
			c.Storage.RedisAddr = ""
		}, wantErr: true},
		{name: "empty key", mutate: func(c *Config) { c.Storage.CredentialKey = "" }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.API.Timeout = 0 }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.Breaker.Threshold = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.API.BaseURL = "https://api.example.com"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
