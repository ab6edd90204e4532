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
	chdir(t, t.TempDir())

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "8000", cfg.App.Port)
	assert.Equal(t, "carelink_session", cfg.Auth.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestLoad_FileThenEnv(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	yaml := `
app:
  port: "9100"
ratelimit:
  window: 30s
  limit: 5
payout:
  currency: eur
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("PORT", "9200")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/carelink")
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "9200", cfg.App.Port)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, "eur", cfg.Payout.Currency)
	assert.Equal(t, "postgres://u:p@localhost/carelink", cfg.Database.URL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestValidate_Production(t *testing.T) {
	cfg := &Config{
		App:       AppConfig{Environment: "production"},
		RateLimit: RateLimitConfig{Backend: "memory", Window: time.Minute, Limit: 10},
		Realtime:  RealtimeConfig{Backend: "memory"},
	}
	assert.ErrorContains(t, cfg.Validate(), "jwt_secret")

	cfg.Auth.JWTSecret = "s"
	assert.ErrorContains(t, cfg.Validate(), "webhook_secret")

	cfg.Payout.WebhookSecret = "w"
	cfg.RateLimit.Backend = "redis"
	assert.ErrorContains(t, cfg.Validate(), "redis.address")

	cfg.Redis.Address = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
