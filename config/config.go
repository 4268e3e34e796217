// Package config handles loading and managing application configuration.
//
// Values come from the process environment, optionally seeded from a .env
// file. Variables already set in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Gateway   GatewayConfig
	Reconcile ReconcileConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	// PublicBaseURL is this service as the payer's browser reaches it; the
	// gateway callback URLs are built from it.
	PublicBaseURL string
	// FrontendURL is where callbacks redirect with ?payment=<outcome>.
	FrontendURL string
	CORSOrigins []string
}

// DatabaseConfig selects and locates the store.
type DatabaseConfig struct {
	Driver string // "sqlite" or "postgres"
	Path   string // sqlite file, or ":memory:"
	URL    string // postgres DSN
}

// AuthConfig holds token and admin login settings.
type AuthConfig struct {
	JWTSecret         string
	TokenTTL          time.Duration
	AdminUsername     string
	AdminPasswordHash string
	CookieSecure      bool
}

// GatewayConfig holds payment gateway settings.
type GatewayConfig struct {
	Provider   string // "zarinpal" or "fake"
	MerchantID string
	Sandbox    bool
	BaseURL    string
	Timeout    time.Duration
}

// ReconcileConfig schedules re-verification of stale pending payments.
type ReconcileConfig struct {
	Schedule string // cron spec; empty disables the scheduler
	After    time.Duration
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	port := getEnv("PORT", "8080")
	cfg := &Config{
		Server: ServerConfig{
			Port:          port,
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
			FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			CORSOrigins:   getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "sqlite"),
			Path:   getEnv("DB_PATH", "./data/swim.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:         getEnv("JWT_SECRET", ""),
			TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),
			AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
			CookieSecure:      getEnvBool("COOKIE_SECURE", false),
		},
		Gateway: GatewayConfig{
			Provider:   getEnv("PAYMENT_GATEWAY", "zarinpal"),
			MerchantID: getEnv("ZARINPAL_MERCHANT_ID", ""),
			Sandbox:    getEnvBool("ZARINPAL_SANDBOX", true),
			BaseURL:    getEnv("ZARINPAL_BASE_URL", ""),
			Timeout:    getEnvDuration("ZARINPAL_TIMEOUT", 15*time.Second),
		},
		Reconcile: ReconcileConfig{
			Schedule: getEnv("RECONCILE_SCHEDULE", "@every 5m"),
			After:    getEnvDuration("RECONCILE_AFTER", 30*time.Minute),
		},
	}
	return cfg, nil
}

// Validate reports settings that make the server unusable.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	switch c.Gateway.Provider {
	case "zarinpal":
		if c.Gateway.MerchantID == "" {
			errs = append(errs, errors.New("ZARINPAL_MERCHANT_ID is required"))
		}
	case "fake":
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_GATEWAY %q", c.Gateway.Provider))
	}
	return errors.Join(errs...)
}

// RegistrationCallbackURL is the gateway callback for class payments.
func (c *Config) RegistrationCallbackURL() string {
	return c.Server.PublicBaseURL + "/api/registrations/payment-callback"
}

// WalletCallbackURL is the gateway callback for balance and cart payments.
func (c *Config) WalletCallbackURL() string {
	return c.Server.PublicBaseURL + "/api/payments/callback"
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
