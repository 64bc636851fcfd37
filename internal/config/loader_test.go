package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected memory store, got %s", cfg.Store.Driver)
	}
	if cfg.WebSocket.SendQueue != 64 {
		t.Errorf("expected send queue 64, got %d", cfg.WebSocket.SendQueue)
	}
	if cfg.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("expected ping interval 30s, got %v", cfg.WebSocket.PingInterval)
	}
	if cfg.Webhook.RetryUnit != time.Second {
		t.Errorf("expected retry unit 1s, got %v", cfg.Webhook.RetryUnit)
	}
	if cfg.Webhook.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Webhook.Workers)
	}
	if cfg.NATS.URL != "" {
		t.Errorf("expected NATS disabled by default, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
store:
  driver: postgres
websocket:
  send_queue: 16
  allowed_origins: ["shop.example.com"]
webhook:
  retry_unit: 500ms
logging:
  level: "debug"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("expected postgres store, got %s", cfg.Store.Driver)
	}
	if cfg.WebSocket.SendQueue != 16 {
		t.Errorf("expected send queue 16, got %d", cfg.WebSocket.SendQueue)
	}
	if !slices.Equal(cfg.WebSocket.AllowedOrigins, []string{"shop.example.com"}) {
		t.Errorf("expected allowed origins, got %v", cfg.WebSocket.AllowedOrigins)
	}
	if cfg.Webhook.RetryUnit != 500*time.Millisecond {
		t.Errorf("expected retry unit 500ms, got %v", cfg.Webhook.RetryUnit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
	// Unchanged fields keep defaults
	if cfg.Webhook.Workers != 8 {
		t.Errorf("expected default workers, got %d", cfg.Webhook.Workers)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(yamlPath)
	if err == nil || !strings.Contains(err.Error(), "config yaml") {
		t.Fatalf("expected config yaml error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("FANOUT_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("FANOUT_LOG_LEVEL", "warn")
	t.Setenv("FANOUT_WEBHOOK_WORKERS", "3")
	t.Setenv("FANOUT_WS_PING_INTERVAL", "5s")
	t.Setenv("FANOUT_WS_ALLOWED_ORIGINS", "a.example.com, ,b.example.com")
	t.Setenv("FANOUT_OTEL_SAMPLE_RATIO", "0.25")
	t.Setenv("FANOUT_ALERT_SLACK_URL", "https://hooks.slack.test/x")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.NATS.URL != "nats://nats:4222" {
		t.Errorf("expected NATS URL, got %s", cfg.NATS.URL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Webhook.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Webhook.Workers)
	}
	if cfg.WebSocket.PingInterval != 5*time.Second {
		t.Errorf("expected ping interval 5s, got %v", cfg.WebSocket.PingInterval)
	}
	if !slices.Equal(cfg.WebSocket.AllowedOrigins, []string{"a.example.com", "b.example.com"}) {
		t.Errorf("unexpected origins %v", cfg.WebSocket.AllowedOrigins)
	}
	if cfg.Telemetry.SampleRatio != 0.25 {
		t.Errorf("expected sample ratio 0.25, got %v", cfg.Telemetry.SampleRatio)
	}
	if cfg.Alerts.SlackWebhookURL != "https://hooks.slack.test/x" {
		t.Errorf("expected slack alert url, got %q", cfg.Alerts.SlackWebhookURL)
	}
}

func TestEnvInvalidValuesKeepDefaults(t *testing.T) {
	cfg := Defaults()

	t.Setenv("FANOUT_WEBHOOK_WORKERS", "many")
	t.Setenv("FANOUT_WEBHOOK_RETRY_UNIT", "soon")
	t.Setenv("FANOUT_LOG_ASYNC", "maybe")

	loadEnv(&cfg)

	if cfg.Webhook.Workers != 8 {
		t.Errorf("expected default workers, got %d", cfg.Webhook.Workers)
	}
	if cfg.Webhook.RetryUnit != time.Second {
		t.Errorf("expected default retry unit, got %v", cfg.Webhook.RetryUnit)
	}
	if cfg.Logging.Async {
		t.Error("expected async logging to stay off")
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "unknown store",
			modify: func(c *Config) { c.Store.Driver = "redis" },
			errMsg: `store.driver must be memory or postgres, got "redis"`,
		},
		{
			name: "postgres without DSN",
			modify: func(c *Config) {
				c.Store.Driver = "postgres"
				c.Postgres.DSN = ""
			},
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "empty jwt secret",
			modify: func(c *Config) { c.Auth.JWTSecret = "" },
			errMsg: "auth.jwt_secret is required",
		},
		{
			name:   "empty admin token",
			modify: func(c *Config) { c.Auth.AdminToken = "" },
			errMsg: "auth.admin_token is required",
		},
		{
			name:   "zero send queue",
			modify: func(c *Config) { c.WebSocket.SendQueue = 0 },
			errMsg: "websocket.send_queue must be >= 1",
		},
		{
			name:   "zero workers",
			modify: func(c *Config) { c.Webhook.Workers = 0 },
			errMsg: "webhook.workers must be >= 1",
		},
		{
			name:   "zero retry unit",
			modify: func(c *Config) { c.Webhook.RetryUnit = 0 },
			errMsg: "webhook.retry_unit must be > 0",
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.RateLimit.Rate = -1 },
			errMsg: "rate_limit.rate must be >= 0",
		},
		{
			name:   "rate limit without burst",
			modify: func(c *Config) { c.RateLimit.Burst = 0 },
			errMsg: "rate_limit.burst must be >= 1",
		},
		{
			name:   "sample ratio out of range",
			modify: func(c *Config) { c.Telemetry.SampleRatio = 2 },
			errMsg: "telemetry.sample_ratio must be within [0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromFullHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "fanout.yaml")
	content := `
server:
  port: "9000"
webhook:
  workers: 4
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FANOUT_PORT", "9100")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Errorf("expected env to win, got %s", cfg.Server.Port)
	}
	if cfg.Webhook.Workers != 4 {
		t.Errorf("expected yaml workers 4, got %d", cfg.Webhook.Workers)
	}
}
