package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
account:
  email: "user@example.com"
  password: "secret"
  session_timeout: "2h"
  refresh_margin: "10m"
cache:
  context_ttl: "15s"
polling:
  interval: "1m"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
  topic_prefix: "appliances"
api:
  host: "0.0.0.0"
  port: 8080
  auth:
    secret: "0123456789abcdef0123456789abcdef"
    token_ttl: "12h"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Account.Email != "user@example.com" {
		t.Errorf("Account.Email = %q, want %q", cfg.Account.Email, "user@example.com")
	}
	if cfg.Account.SessionTimeout != 2*time.Hour {
		t.Errorf("Account.SessionTimeout = %v, want 2h", cfg.Account.SessionTimeout)
	}
	if cfg.Account.RefreshMargin != 10*time.Minute {
		t.Errorf("Account.RefreshMargin = %v, want 10m", cfg.Account.RefreshMargin)
	}
	if cfg.Cache.ContextTTL != 15*time.Second {
		t.Errorf("Cache.ContextTTL = %v, want 15s", cfg.Cache.ContextTTL)
	}
	// Unset keys keep their defaults.
	if cfg.Cache.StatisticsTTL != 5*time.Minute {
		t.Errorf("Cache.StatisticsTTL = %v, want default 5m", cfg.Cache.StatisticsTTL)
	}
	if cfg.Polling.Interval != time.Minute {
		t.Errorf("Polling.Interval = %v, want 1m", cfg.Polling.Interval)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.TopicPrefix != "appliances" {
		t.Errorf("MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "appliances")
	}
	if cfg.Account.APIURL != "https://api-iot.he.services" {
		t.Errorf("Account.APIURL = %q, want default", cfg.Account.APIURL)
	}
	if !cfg.API.Auth.Enabled || cfg.API.Auth.TokenTTL != 12*time.Hour || cfg.API.Auth.Issuer != "honbridge" {
		t.Errorf("API.Auth = %+v, want enabled with 12h TTL and default issuer", cfg.API.Auth)
	}
}

func TestLoad_CredentialsFromEnvironment(t *testing.T) {
	t.Setenv("HON_EMAIL", "env@example.com")
	t.Setenv("HON_PASSWORD", "env-secret")
	t.Setenv("HON_API_JWT_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := Load(writeConfig(t, "database:\n  path: /tmp/test.db\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.Email != "env@example.com" || cfg.Account.Password != "env-secret" {
		t.Errorf("Account = %q / %q, want values from environment", cfg.Account.Email, cfg.Account.Password)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "account:\n  session_timeout: \"soon\"\n"))
	if err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  path: /tmp/test.db\n"))
	if err == nil {
		t.Fatal("Load() expected validation error for missing credentials, got nil")
	}
	for _, want := range []string{"account.email", "account.password"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Load() error = %v, want it to mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Account.Email = "user@example.com"
		cfg.Account.Password = "secret"
		cfg.API.Auth.Secret = "0123456789abcdef0123456789abcdef"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing email", func(c *Config) { c.Account.Email = "" }, true},
		{"missing password", func(c *Config) { c.Account.Password = "" }, true},
		{"margin exceeds timeout", func(c *Config) { c.Account.RefreshMargin = 7 * time.Hour }, true},
		{"zero session timeout", func(c *Config) { c.Account.SessionTimeout = 0 }, true},
		{"zero context ttl", func(c *Config) { c.Cache.ContextTTL = 0 }, true},
		{"zero poll interval", func(c *Config) { c.Polling.Interval = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"empty topic prefix", func(c *Config) { c.MQTT.TopicPrefix = "" }, true},
		{"empty topic prefix with mqtt disabled", func(c *Config) {
			c.MQTT.Enabled = false
			c.MQTT.TopicPrefix = ""
		}, false},
		{"influxdb without url", func(c *Config) { c.InfluxDB.Enabled = true }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
		{"invalid port with api disabled", func(c *Config) {
			c.API.Enabled = false
			c.API.Port = 0
		}, false},
		{"missing auth secret", func(c *Config) { c.API.Auth.Secret = "" }, true},
		{"short auth secret", func(c *Config) { c.API.Auth.Secret = "too-short" }, true},
		{"zero token ttl", func(c *Config) { c.API.Auth.TokenTTL = 0 }, true},
		{"no secret with auth disabled", func(c *Config) {
			c.API.Auth.Enabled = false
			c.API.Auth.Secret = ""
		}, false},
		{"no secret with api disabled", func(c *Config) {
			c.API.Enabled = false
			c.API.Auth.Secret = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("HON_EMAIL", "user@example.com")
	t.Setenv("HON_PASSWORD", "pw")
	t.Setenv("HON_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HON_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HON_MQTT_USERNAME", "testuser")
	t.Setenv("HON_MQTT_PASSWORD", "testpass")
	t.Setenv("HON_API_HOST", "192.168.1.1")
	t.Setenv("HON_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HON_API_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Account.Email", cfg.Account.Email, "user@example.com"},
		{"Account.Password", cfg.Account.Password, "pw"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"API.Auth.Secret", cfg.API.Auth.Secret, "jwt-secret"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Account.SessionTimeout != 6*time.Hour {
		t.Errorf("defaultConfig Account.SessionTimeout = %v, want 6h", cfg.Account.SessionTimeout)
	}
	if cfg.Account.Framework != "None" {
		t.Errorf("defaultConfig Account.Framework = %q, want %q", cfg.Account.Framework, "None")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.TopicPrefix != "hon" {
		t.Errorf("defaultConfig MQTT.TopicPrefix = %q, want %q", cfg.MQTT.TopicPrefix, "hon")
	}
}
