package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Payout    PayoutConfig    `mapstructure:"payout"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL  string `mapstructure:"url"`  // postgres DSN; empty selects sqlite
	Path string `mapstructure:"path"` // sqlite file
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	BcryptCost   int           `mapstructure:"bcrypt_cost"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Backend    string        `mapstructure:"backend"` // memory or redis
	Window     time.Duration `mapstructure:"window"`
	Limit      int           `mapstructure:"limit"`
	LoginLimit int           `mapstructure:"login_limit"`
}

type RealtimeConfig struct {
	Backend    string        `mapstructure:"backend"` // memory or redis
	BufferSize int           `mapstructure:"buffer_size"`
	Heartbeat  time.Duration `mapstructure:"heartbeat"`
}

type PayoutConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Currency      string        `mapstructure:"currency"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Load reads config.yaml (if present), then .env, then the environment.
// Later sources win.
func Load(paths ...string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./configs", "../configs"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "carelink-api")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", "8000")

	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "carelink.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.cookie_name", "carelink_session")
	v.SetDefault("auth.cookie_secure", false)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("admin.email", "admin@carelink.local")
	v.SetDefault("admin.password", "")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.limit", 60)
	v.SetDefault("ratelimit.login_limit", 10)

	v.SetDefault("realtime.backend", "memory")
	v.SetDefault("realtime.buffer_size", 32)
	v.SetDefault("realtime.heartbeat", 25*time.Second)

	v.SetDefault("payout.base_url", "https://api.stripe.com")
	v.SetDefault("payout.api_key", "")
	v.SetDefault("payout.currency", "usd")
	v.SetDefault("payout.webhook_secret", "")
	v.SetDefault("payout.timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// bindLegacyEnv keeps the short variable names deployments already use.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("app.port", "APP_PORT", "PORT")
	_ = v.BindEnv("app.environment", "APP_ENVIRONMENT", "APP_ENV")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.path", "DATABASE_PATH", "DATA_PATH")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("admin.password", "ADMIN_PASSWORD")
	_ = v.BindEnv("admin.email", "ADMIN_EMAIL")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS", "REDIS_ADDR")
	_ = v.BindEnv("payout.api_key", "PAYOUT_API_KEY", "STRIPE_SECRET_KEY")
	_ = v.BindEnv("payout.webhook_secret", "PAYOUT_WEBHOOK_SECRET", "STRIPE_WEBHOOK_SECRET")
}

func loadEnvFile() {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("auth.jwt_secret is required in production")
		}
		c.Auth.JWTSecret = "dev-only-secret"
	}
	if c.IsProduction() && c.Payout.WebhookSecret == "" {
		return errors.New("payout.webhook_secret is required in production")
	}
	for name, backend := range map[string]string{"ratelimit": c.RateLimit.Backend, "realtime": c.Realtime.Backend} {
		switch backend {
		case "memory":
		case "redis":
			if c.Redis.Address == "" {
				return fmt.Errorf("%s.backend redis needs redis.address", name)
			}
		default:
			return fmt.Errorf("%s.backend must be memory or redis, got %q", name, backend)
		}
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.Limit <= 0 {
		return errors.New("ratelimit.window and ratelimit.limit must be positive")
	}
	if c.Realtime.BufferSize <= 0 {
		c.Realtime.BufferSize = 32
	}
	return nil
}
