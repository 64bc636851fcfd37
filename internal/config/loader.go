package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "fanout.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom is Load with an explicit YAML path.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FANOUT_PORT")
	setDuration(&cfg.Server.ShutdownTimeout, "FANOUT_SHUTDOWN_TIMEOUT")
	setFloat64(&cfg.RateLimit.Rate, "FANOUT_RATE_LIMIT")
	setInt(&cfg.RateLimit.Burst, "FANOUT_RATE_BURST")
	setString(&cfg.Store.Driver, "FANOUT_STORE")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FANOUT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FANOUT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FANOUT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FANOUT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FANOUT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Stream, "FANOUT_NATS_STREAM")
	setString(&cfg.NATS.Consumer, "FANOUT_NATS_CONSUMER")
	setString(&cfg.Logging.Level, "FANOUT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FANOUT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "FANOUT_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "FANOUT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FANOUT_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "FANOUT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "FANOUT_OTEL_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "FANOUT_OTEL_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRatio, "FANOUT_OTEL_SAMPLE_RATIO")
	setString(&cfg.Auth.JWTSecret, "FANOUT_JWT_SECRET")
	setString(&cfg.Auth.Issuer, "FANOUT_JWT_ISSUER")
	setString(&cfg.Auth.AdminToken, "FANOUT_ADMIN_TOKEN")
	setString(&cfg.Auth.IngestSecret, "FANOUT_INGEST_SECRET")
	setString(&cfg.Orders.URL, "FANOUT_ORDERS_URL")
	setDuration(&cfg.Orders.Timeout, "FANOUT_ORDERS_TIMEOUT")
	setDuration(&cfg.Orders.CacheTTL, "FANOUT_ORDERS_CACHE_TTL")
	setInt64(&cfg.Orders.CacheMaxCost, "FANOUT_ORDERS_CACHE_MAX_COST")
	setInt(&cfg.WebSocket.SendQueue, "FANOUT_WS_SEND_QUEUE")
	setDuration(&cfg.WebSocket.PingInterval, "FANOUT_WS_PING_INTERVAL")
	setDuration(&cfg.WebSocket.WriteTimeout, "FANOUT_WS_WRITE_TIMEOUT")
	setList(&cfg.WebSocket.AllowedOrigins, "FANOUT_WS_ALLOWED_ORIGINS")
	setDuration(&cfg.Webhook.RetryUnit, "FANOUT_WEBHOOK_RETRY_UNIT")
	setInt(&cfg.Webhook.Workers, "FANOUT_WEBHOOK_WORKERS")
	setDuration(&cfg.Webhook.Timeout, "FANOUT_WEBHOOK_TIMEOUT")
	setString(&cfg.Webhook.UserAgent, "FANOUT_WEBHOOK_USER_AGENT")
	setString(&cfg.Alerts.SlackWebhookURL, "FANOUT_ALERT_SLACK_URL")
	setString(&cfg.Alerts.DiscordWebhookURL, "FANOUT_ALERT_DISCORD_URL")
	setDuration(&cfg.Alerts.Timeout, "FANOUT_ALERT_TIMEOUT")
}

func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.RateLimit.Rate < 0 {
		return errors.New("rate_limit.rate must be >= 0")
	}
	if cfg.RateLimit.Rate > 0 && cfg.RateLimit.Burst < 1 {
		return errors.New("rate_limit.burst must be >= 1")
	}
	switch cfg.Store.Driver {
	case "memory":
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", cfg.Store.Driver)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if cfg.Auth.AdminToken == "" {
		return errors.New("auth.admin_token is required")
	}
	if cfg.Orders.URL == "" {
		return errors.New("orders.url is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.WebSocket.SendQueue < 1 {
		return errors.New("websocket.send_queue must be >= 1")
	}
	if cfg.WebSocket.PingInterval <= 0 {
		return errors.New("websocket.ping_interval must be > 0")
	}
	if cfg.Webhook.Workers < 1 {
		return errors.New("webhook.workers must be >= 1")
	}
	if cfg.Webhook.RetryUnit <= 0 {
		return errors.New("webhook.retry_unit must be > 0")
	}
	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setList reads a comma-separated list, dropping empty items.
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
