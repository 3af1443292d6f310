package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type Config struct {
	App struct {
		Env        Environment `yaml:"env" env:"APP_ENV" validate:"oneof=local dev stage production"`
		LogLevel   string      `yaml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
		Timezone   string      `yaml:"timezone" env:"APP_TIMEZONE" validate:"required"`
		DateLayout string      `yaml:"date_layout" env:"DATE_LAYOUT" validate:"required"`
	} `yaml:"app"`

	HTTP struct {
		Addr            string        `yaml:"addr" env:"HTTP_ADDR" validate:"required"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" validate:"min=0"`
	} `yaml:"http"`

	Database struct {
		// Empty selects the in-memory store.
		URL     string `yaml:"url" env:"DATABASE_URL"`
		Migrate bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
	} `yaml:"database"`

	RateLimit struct {
		// Empty keeps counters in process.
		RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
		MaxRequests int           `yaml:"max_requests" env:"RATE_LIMIT_MAX_REQUESTS" validate:"min=1"`
		Window      time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW" validate:"min=1s"`
		CacheSize   int           `yaml:"cache_size" env:"RATE_LIMIT_CACHE_SIZE" validate:"min=1"`
	} `yaml:"rate_limit"`

	Booking struct {
		OnlineBufferMinutes   int  `yaml:"online_buffer_minutes" env:"ONLINE_BUFFER_MINUTES" validate:"min=0,max=1439"`
		OnsiteBufferMinutes   int  `yaml:"onsite_buffer_minutes" env:"ONSITE_BUFFER_MINUTES" validate:"min=0,max=1439"`
		ReleaseBlocksOnCancel bool `yaml:"release_blocks_on_cancel" env:"RELEASE_BLOCKS_ON_CANCEL"`
	} `yaml:"booking"`

	Notify struct {
		Timeout time.Duration `yaml:"timeout" env:"NOTIFY_TIMEOUT" validate:"min=0"`

		Telegram struct {
			Token  string `yaml:"token" env:"TG_TOKEN"`
			ChatID int64  `yaml:"chat_id" env:"TG_CHAT_ID"`
		} `yaml:"telegram"`

		AMQP struct {
			URL      string `yaml:"url" env:"RABBITMQ_URL"`
			Exchange string `yaml:"exchange" env:"RABBITMQ_EXCHANGE" validate:"required_with=URL"`
		} `yaml:"amqp"`

		Google struct {
			ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
			ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
			RedirectURL  string `yaml:"redirect_url" env:"GOOGLE_REDIRECT_URL"`
			RefreshToken string `yaml:"refresh_token" env:"GOOGLE_REFRESH_TOKEN"`
			CalendarID   string `yaml:"calendar_id" env:"GOOGLE_CALENDAR_ID"`
		} `yaml:"google"`
	} `yaml:"notify"`

	Auth struct {
		StaticTokens []string `yaml:"static_tokens" env:"STATIC_TOKENS" envSeparator:","`
		JWTSecret    string   `yaml:"jwt_hmac_secret" env:"JWT_HMAC_SECRET"`
	} `yaml:"auth"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Env = EnvLocal
	cfg.App.LogLevel = "info"
	cfg.App.Timezone = "UTC"
	cfg.App.DateLayout = "2006-01-02 (Mon)"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.RateLimit.MaxRequests = 10
	cfg.RateLimit.Window = time.Minute
	cfg.RateLimit.CacheSize = 10000
	cfg.Booking.OnlineBufferMinutes = 15
	cfg.Booking.OnsiteBufferMinutes = 30
	cfg.Notify.Timeout = 30 * time.Second
	cfg.Notify.AMQP.Exchange = "bookings"
	cfg.Notify.Google.CalendarID = "primary"
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file named by CONFIG_FILE and
// the environment, in increasing order of precedence. A .env file is loaded into the
// environment first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv("HTTP_ADDR") == "" {
		cfg.HTTP.Addr = ":" + port
	}
	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))
	cfg.Auth.StaticTokens = compact(cfg.Auth.StaticTokens)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

// Location resolves App.Timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

func compact(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
