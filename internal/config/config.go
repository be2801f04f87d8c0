package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type HTTPConfig struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout" env:"HTTP_HANDLER_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
}

type StoreConfig struct {
	Driver          string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	SQLitePath      string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"data/tasks.db"`
	PostgresDSN     string `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	ConnectAttempts uint   `yaml:"connect_attempts" env:"STORE_CONNECT_ATTEMPTS" env-default:"5"`
}

type AuthConfig struct {
	Mode string `yaml:"mode" env:"AUTH_MODE" env-default:"apikey"`
	// APIKeys maps key to user id; env form is "key1:alice,key2:bob".
	APIKeys   map[string]string `yaml:"api_keys" env:"AUTH_API_KEYS"`
	JWTSecret string            `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	JWTIssuer string            `yaml:"jwt_issuer" env:"AUTH_JWT_ISSUER" env-default:"tasks-api"`
	TokenTTL  time.Duration     `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"24h"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"0"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"20"`
}

type TracingConfig struct {
	Exporter    string  `yaml:"exporter" env:"TRACING_EXPORTER" env-default:"none"`
	Endpoint    string  `yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
	ServiceName string  `yaml:"service_name" env:"OTEL_SERVICE_NAME" env-default:"tasks-api"`
	SampleRatio float64 `yaml:"sample_ratio" env:"TRACING_SAMPLE_RATIO" env-default:"1"`
}

type Config struct {
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"auto"`

	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// Load reads configuration and validates it for serving.
func Load(configPath string) (Config, error) {
	cfg, err := Read(configPath)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Read reads configPath and then the environment. An empty path, or a file
// that does not exist, means environment only.
func Read(configPath string) (Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
		return cfg, nil
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("read config %q: %w", configPath, err)
		}
		cfg = Config{}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "auto", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format: unknown format %q", c.LogFormat))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.Auth.Mode {
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, errors.New("auth.api_keys must not be empty in apikey mode"))
		}
	case "jwt":
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required in jwt mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode: unknown mode %q", c.Auth.Mode))
	}

	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter: unknown exporter %q", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio: %v is outside [0,1]", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}
