package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the portal.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:"127.0.0.1:8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIBaseURL    string        `envconfig:"API_BASE_URL" default:"http://localhost:3001/api"`
	APITimeout    time.Duration `envconfig:"API_TIMEOUT" default:"15s"`
	APIRetryCount int           `envconfig:"API_RETRY_COUNT" default:"2"`

	StorageDriver   string `envconfig:"STORAGE_DRIVER" default:"redis"`
	RedisAddr       string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	AccessTokenKey  string `envconfig:"ACCESS_TOKEN_KEY" default:"portal:access_token"`
	RefreshTokenKey string `envconfig:"REFRESH_TOKEN_KEY" default:"portal:refresh_token"`
	ThemeCacheKey   string `envconfig:"THEME_CACHE_KEY" default:"portal:theme:last_tenant"`

	RefreshSkew time.Duration `envconfig:"REFRESH_SKEW" default:"30s"`

	LoginPath    string `envconfig:"LOGIN_PATH" default:"/login"`
	DefaultRoute string `envconfig:"DEFAULT_ROUTE" default:"/dashboard"`

	CSRFSecret         string   `envconfig:"CSRF_SECRET"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// Storage drivers.
const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	switch c.StorageDriver {
	case StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageRedis, StorageMemory, c.StorageDriver)
	}
	if c.AccessTokenKey == "" || c.RefreshTokenKey == "" || c.AccessTokenKey == c.RefreshTokenKey {
		return errors.New("ACCESS_TOKEN_KEY and REFRESH_TOKEN_KEY must be set and distinct")
	}
	if !strings.HasPrefix(c.LoginPath, "/") || !strings.HasPrefix(c.DefaultRoute, "/") {
		return errors.New("LOGIN_PATH and DEFAULT_ROUTE must be absolute paths")
	}
	if c.APIRetryCount < 0 {
		return errors.New("API_RETRY_COUNT must not be negative")
	}
	return nil
}

// IsProduction returns true when the portal runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
