package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration for the dashboard.
type Config struct {
	App         AppConfig         `yaml:"app"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	AuthService AuthServiceConfig `yaml:"auth_service"`
	Session     SessionConfig     `yaml:"session"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	Logger      LoggerConfig      `yaml:"logger"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// GatewayConfig points at the remote ticket API.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuthServiceConfig points at the external auth service.
type AuthServiceConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SessionConfig bounds how long an idle dashboard session keeps its ticket store.
type SessionConfig struct {
	IdleTTLMinutes      int `yaml:"idle_ttl_minutes"`
	ReapIntervalSeconds int `yaml:"reap_interval_seconds"`
}

// PostgresConfig holds DB connection values for the mutation journal.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_sec"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_sec"`
}

// RedisConfig holds Redis connection values for the notice feed.
type RedisConfig struct {
	Addr             string `yaml:"addr"`
	Password         string `yaml:"password"`
	DB               int    `yaml:"db"`
	NoticeTTLMinutes int    `yaml:"notice_ttl_minutes"`
	NoticeCap        int    `yaml:"notice_cap"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticket-desk",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Gateway: GatewayConfig{
			BaseURL:        "http://127.0.0.1:4000/api/v1",
			TimeoutSeconds: 15,
		},
		AuthService: AuthServiceConfig{
			BaseURL: "http://127.0.0.1:4000/api/v1",
		},
		Session: SessionConfig{
			IdleTTLMinutes:      30,
			ReapIntervalSeconds: 60,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			NoticeTTLMinutes: 60,
			NoticeCap:        50,
		},
		Logger:  LoggerConfig{Level: "info"},
		Metrics: MetricsConfig{Namespace: "ticket_desk"},
	}
}

// Load reads configuration from an optional YAML file and environment variables,
// applying defaults where possible. Environment variables win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TICKETDESK_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		redisDB, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.Redis.DB = redisDB
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)

	cfg.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", cfg.Gateway.BaseURL)
	cfg.Gateway.TimeoutSeconds = getEnvAsInt("GATEWAY_TIMEOUT_SECONDS", cfg.Gateway.TimeoutSeconds)
	cfg.AuthService.BaseURL = getEnv("AUTH_SERVICE_BASE_URL", cfg.AuthService.BaseURL)

	cfg.Session.IdleTTLMinutes = getEnvAsInt("SESSION_IDLE_TTL_MINUTES", cfg.Session.IdleTTLMinutes)
	cfg.Session.ReapIntervalSeconds = getEnvAsInt("SESSION_REAP_INTERVAL_SECONDS", cfg.Session.ReapIntervalSeconds)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations)
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.NoticeTTLMinutes = getEnvAsInt("REDIS_NOTICE_TTL_MINUTES", cfg.Redis.NoticeTTLMinutes)
	cfg.Redis.NoticeCap = getEnvAsInt("REDIS_NOTICE_CAP", cfg.Redis.NoticeCap)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)
	cfg.Metrics.Namespace = getEnv("METRICS_NAMESPACE", cfg.Metrics.Namespace)
	cfg.Tracing.Enabled = getEnvAsBool("TRACING_ENABLED", cfg.Tracing.Enabled)

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call gateway deadline.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// IdleTTL returns how long an unused session survives.
func (s SessionConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

// ReapInterval returns how often idle sessions are evicted.
func (s SessionConfig) ReapInterval() time.Duration {
	return time.Duration(s.ReapIntervalSeconds) * time.Second
}

// NoticeTTL returns the expiry applied to a session's notice list.
func (r RedisConfig) NoticeTTL() time.Duration {
	return time.Duration(r.NoticeTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
