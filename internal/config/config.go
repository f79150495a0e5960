package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential transports supported by the remote API.
const (
	TransportBearer = "bearer"
	TransportCookie = "cookie"
)

// Credential storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// ErrBaseURLRequired is returned when no API base URL was configured.
// The target server has no default.
var ErrBaseURLRequired = errors.New("KILIMO_API_BASE_URL is required")

// Config holds the application configuration
type Config struct {
	Environment string        `yaml:"environment"`
	API         APIConfig     `yaml:"api"`
	Auth        AuthConfig    `yaml:"auth"`
	Storage     StorageConfig `yaml:"storage"`
	Portal      PortalConfig  `yaml:"portal"`
	Session     SessionConfig `yaml:"session"`
	Breaker     BreakerConfig `yaml:"breaker"`
}

// APIConfig describes the remote marketplace API
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig holds how the credential travels to the API
type AuthConfig struct {
	Transport         string `yaml:"transport"`
	CSRFEnabled       bool   `yaml:"csrf_enabled"`
	CSRFCookieName    string `yaml:"csrf_cookie"`
	CSRFHeaderName    string `yaml:"csrf_header"`
	SessionCookieName string `yaml:"session_cookie"`
}

// StorageConfig holds durable credential storage settings
type StorageConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	CredentialKey string `yaml:"credential_key"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// PortalConfig holds the local web portal settings
type PortalConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// BreakerConfig tunes the API circuit breaker
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// Default returns the configuration used when nothing is set. BaseURL is
// left empty on purpose.
func Default() *Config {
	return &Config{
		Environment: "production",
		API: APIConfig{
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Transport:         TransportBearer,
			CSRFCookieName:    "csrftoken",
			CSRFHeaderName:    "X-CSRFToken",
			SessionCookieName: "sessionid",
		},
		Storage: StorageConfig{
			Driver:        StorageSQLite,
			Path:          "./data/kilimo.db",
			CredentialKey: "token",
			RedisAddr:     "localhost:6379",
		},
		Portal: PortalConfig{
			ListenAddress: "127.0.0.1:8090",
		},
		Session: SessionConfig{
			RefreshSchedule: "@every 5m",
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  60 * time.Second,
		},
	}
}

// Load loads configuration from an optional YAML file (KILIMO_CONFIG) and
// then from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("KILIMO_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// CSRF defaults to on for cookie sessions unless set explicitly
	csrfExplicit := os.Getenv("KILIMO_CSRF_ENABLED") != ""

	cfg.Environment = getEnv("APP_ENV", cfg.Environment)
	cfg.API.BaseURL = strings.TrimRight(getEnv("KILIMO_API_BASE_URL", cfg.API.BaseURL), "/")
	cfg.API.Timeout = getEnvDuration("KILIMO_API_TIMEOUT", cfg.API.Timeout)

	cfg.Auth.Transport = strings.ToLower(getEnv("KILIMO_AUTH_TRANSPORT", cfg.Auth.Transport))
	cfg.Auth.SessionCookieName = getEnv("KILIMO_SESSION_COOKIE", cfg.Auth.SessionCookieName)
	cfg.Auth.CSRFCookieName = getEnv("KILIMO_CSRF_COOKIE", cfg.Auth.CSRFCookieName)
	cfg.Auth.CSRFHeaderName = getEnv("KILIMO_CSRF_HEADER", cfg.Auth.CSRFHeaderName)
	if csrfExplicit {
		cfg.Auth.CSRFEnabled = getEnv("KILIMO_CSRF_ENABLED", "false") == "true"
	} else if cfg.Auth.Transport == TransportCookie {
		cfg.Auth.CSRFEnabled = true
	}

	cfg.Storage.Driver = strings.ToLower(getEnv("KILIMO_STORAGE", cfg.Storage.Driver))
	cfg.Storage.Path = getEnv("KILIMO_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.CredentialKey = getEnv("KILIMO_CREDENTIAL_KEY", cfg.Storage.CredentialKey)
	cfg.Storage.RedisAddr = getEnv("KILIMO_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("KILIMO_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getEnvInt("KILIMO_REDIS_DB", cfg.Storage.RedisDB)

	cfg.Portal.ListenAddress = getEnv("KILIMO_PORTAL_ADDRESS", cfg.Portal.ListenAddress)
	cfg.Session.RefreshSchedule = getEnv("KILIMO_REFRESH_SCHEDULE", cfg.Session.RefreshSchedule)

	cfg.Breaker.Threshold = getEnvInt("KILIMO_BREAKER_THRESHOLD", cfg.Breaker.Threshold)
	cfg.Breaker.Cooldown = getEnvDuration("KILIMO_BREAKER_COOLDOWN", cfg.Breaker.Cooldown)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and enumerations
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return ErrBaseURLRequired
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid API base URL %q: must be an absolute http(s) URL", c.API.BaseURL)
	}

	switch c.Auth.Transport {
	case TransportBearer, TransportCookie:
	default:
		return fmt.Errorf("invalid auth transport %q (want %s or %s)", c.Auth.Transport, TransportBearer, TransportCookie)
	}

	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage path is required for the sqlite driver")
		}
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			return errors.New("redis address is required for the redis driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage driver %q", c.Storage.Driver)
	}

	if c.Storage.CredentialKey == "" {
		return errors.New("credential key cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return errors.New("API timeout must be positive")
	}
	if c.Breaker.Threshold <= 0 {
		return errors.New("breaker threshold must be positive")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
