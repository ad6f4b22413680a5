package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"pix-gateway/internal/domain"
)

// AppConfig is read once at startup and passed down by value.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Server struct {
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
		ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
		WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"45s"`
		IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
		// Below WriteTimeout, otherwise the 504 is never written.
		RequestTimeout  time.Duration `envconfig:"SERVER_REQUEST_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Metrics struct {
		Enabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
		Addr    string `envconfig:"METRICS_ADDR" default:":9090"`
	} `envconfig:""`

	Provider struct {
		APIURL       string        `envconfig:"PROVIDER_API_URL" default:"https://api-h.nuvende.com.br"`
		ClientID     string        `envconfig:"PROVIDER_CLIENT_ID"`
		ClientSecret string        `envconfig:"PROVIDER_CLIENT_SECRET"`
		PixKey       string        `envconfig:"PROVIDER_PIX_KEY"`
		AccountID    string        `envconfig:"PROVIDER_ACCOUNT_ID"`
		Timeout      time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"15s"`
	} `envconfig:""`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	TokenCacheKey string `envconfig:"TOKEN_CACHE_KEY" default:"pix:provider_token"`

	PGDSN string `envconfig:"PG_DSN"`

	IdempotencyDBPath string `envconfig:"IDEMPOTENCY_DB_PATH"`
	AdminToken        string `envconfig:"ADMIN_TOKEN"`
}

// Parse reads the configuration from the environment.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

// Load reads the configuration and exits the process on failure.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("pix-gateway: failed to load config: %v", err)
	}
	return cfg
}

// Credentials extracts the provider credential set.
func (c AppConfig) Credentials() domain.Credentials {
	return domain.Credentials{
		ClientID:     c.Provider.ClientID,
		ClientSecret: c.Provider.ClientSecret,
		PixKey:       c.Provider.PixKey,
		AccountID:    c.Provider.AccountID,
		APIBaseURL:   c.Provider.APIURL,
	}
}
