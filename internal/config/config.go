// Package config loads process settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"journal/internal/domain"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Quota   QuotaConfig
	Auth    AuthConfig
	OIDC    OIDCConfig
	Uploads UploadConfig
}

type ServerConfig struct {
	Addr       string
	Production bool
}

type StorageConfig struct {
	DatabaseURL string
	RedisURL    string
}

type QuotaConfig struct {
	Login         domain.QuotaRule
	Upload        domain.QuotaRule
	SweepInterval time.Duration
}

type AuthConfig struct {
	SessionTTL    time.Duration
	BcryptCost    int
	AdminEmail    string
	AdminPassword string
}

type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	quota, err := buildQuotaConfig()
	if err != nil {
		return Config{}, err
	}

	auth, err := buildAuthConfig()
	if err != nil {
		return Config{}, err
	}

	maxBytes, err := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", strconv.Itoa(50<<20)), 10, 64)
	if err != nil || maxBytes <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %q", os.Getenv("MAX_UPLOAD_BYTES"))
	}

	return Config{
		Server: ServerConfig{
			Addr:       getEnv("ADDR", ":8080"),
			Production: strings.EqualFold(getEnv("APP_ENV", "development"), "production"),
		},
		Storage: StorageConfig{
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
			RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		},
		Quota: quota,
		Auth:  auth,
		OIDC: OIDCConfig{
			Issuer:       strings.TrimSpace(os.Getenv("OIDC_ISSUER")),
			ClientID:     strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID")),
			ClientSecret: strings.TrimSpace(os.Getenv("OIDC_CLIENT_SECRET")),
			RedirectURL:  strings.TrimSpace(os.Getenv("OIDC_REDIRECT_URL")),
		},
		Uploads: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "uploads"),
			MaxBytes: maxBytes,
		},
	}, nil
}

// SSOEnabled reports whether every OIDC setting is present.
func (c OIDCConfig) SSOEnabled() bool {
	return c.Issuer != "" && c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

func buildQuotaConfig() (QuotaConfig, error) {
	login, err := buildRule("LOGIN_MAX_ATTEMPTS", "5", "LOGIN_WINDOW", "15m")
	if err != nil {
		return QuotaConfig{}, err
	}
	upload, err := buildRule("UPLOAD_MAX_REQUESTS", "20", "UPLOAD_WINDOW", "10m")
	if err != nil {
		return QuotaConfig{}, err
	}
	sweep, err := getDuration("SWEEP_INTERVAL", "10m")
	if err != nil {
		return QuotaConfig{}, err
	}
	return QuotaConfig{Login: login, Upload: upload, SweepInterval: sweep}, nil
}

func buildRule(requestsKey, requestsDefault, windowKey, windowDefault string) (domain.QuotaRule, error) {
	requests, err := strconv.Atoi(getEnv(requestsKey, requestsDefault))
	if err != nil {
		return domain.QuotaRule{}, fmt.Errorf("invalid %s: %w", requestsKey, err)
	}
	window, err := getDuration(windowKey, windowDefault)
	if err != nil {
		return domain.QuotaRule{}, err
	}

	rule := domain.QuotaRule{Requests: requests, Window: window}
	if !rule.Valid() {
		return domain.QuotaRule{}, fmt.Errorf("%s and %s must be positive", requestsKey, windowKey)
	}
	return rule, nil
}

func buildAuthConfig() (AuthConfig, error) {
	ttl, err := getDuration("SESSION_TTL", "168h")
	if err != nil {
		return AuthConfig{}, err
	}
	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		return AuthConfig{}, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}
	return AuthConfig{
		SessionTTL:    ttl,
		BcryptCost:    cost,
		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}, nil
}

func getDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
