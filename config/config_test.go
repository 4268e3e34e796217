package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.After)
	assert.True(t, cfg.Gateway.Sandbox)
	assert.Equal(t, "http://localhost:8080/api/registrations/payment-callback", cfg.RegistrationCallbackURL())
	assert.Equal(t, "http://localhost:8080/api/payments/callback", cfg.WalletCallbackURL())
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"PUBLIC_BASE_URL=https://swim.example.com/\n"+
			"ZARINPAL_SANDBOX=false\n"+
			"CORS_ORIGINS=https://a.example.com, https://b.example.com\n"+
			"RECONCILE_AFTER=45m\n"+
			"PORT=9000\n",
	), 0o600))
	t.Setenv("PORT", "7000")
	t.Cleanup(func() {
		for _, key := range []string{"PUBLIC_BASE_URL", "ZARINPAL_SANDBOX", "CORS_ORIGINS", "RECONCILE_AFTER"} {
			os.Unsetenv(key)
		}
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port, "process env wins over the file")
	assert.Equal(t, "https://swim.example.com", cfg.Server.PublicBaseURL)
	assert.False(t, cfg.Gateway.Sandbox)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Minute, cfg.Reconcile.After)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "postgres"},
		Auth:     AuthConfig{JWTSecret: "short"},
		Gateway:  GatewayConfig{Provider: "zarinpal"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "ZARINPAL_MERCHANT_ID")

	cfg.Database.URL = "postgres://localhost/swim"
	cfg.Auth.JWTSecret = "0123456789abcdef"
	cfg.Gateway.Provider = "fake"
	assert.NoError(t, cfg.Validate())
}
