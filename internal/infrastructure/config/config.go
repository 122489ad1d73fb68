package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the hOn bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account  AccountConfig  `yaml:"account"`
	Cache    CacheConfig    `yaml:"cache"`
	Polling  PollingConfig  `yaml:"polling"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AccountConfig contains the cloud account credentials and the identity
// the bridge presents to the remote API.
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`

	// Framework is the initial framework-version tag. The server corrects
	// it on mismatch and the corrected tag is persisted in the database.
	Framework string `yaml:"framework"`

	AuthURL     string `yaml:"auth_url"`
	APIURL      string `yaml:"api_url"`
	AppVersion  string `yaml:"app_version"`
	OS          string `yaml:"os"`
	OSVersion   int    `yaml:"os_version"`
	DeviceModel string `yaml:"device_model"`

	// SessionTimeout is how long a login stays usable. The session is
	// renewed RefreshMargin before it runs out.
	SessionTimeout time.Duration `yaml:"session_timeout"`
	RefreshMargin  time.Duration `yaml:"refresh_margin"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
}

// CacheConfig contains the TTLs of cached cloud reads.
type CacheConfig struct {
	ContextTTL    time.Duration `yaml:"context_ttl"`
	StatisticsTTL time.Duration `yaml:"statistics_ttl"`
	CommandsTTL   time.Duration `yaml:"commands_ttl"`
}

// PollingConfig contains the bridge polling settings.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains operator HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig contains operator token settings. Routes that change
// appliance state require an HS256 bearer token signed with Secret.
type APIAuthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HON_SECTION_KEY
// For example: HON_DATABASE_PATH, HON_MQTT_HOST. Credentials use HON_EMAIL
// and HON_PASSWORD; the operator token secret uses HON_API_JWT_SECRET.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Account: AccountConfig{
			Framework:      "None",
			AuthURL:        "https://account2.hon-smarthome.com/SmartHome",
			APIURL:         "https://api-iot.he.services",
			AppVersion:     "2.0.10",
			OS:             "android",
			OSVersion:      31,
			DeviceModel:    "exynos9820",
			SessionTimeout: 6 * time.Hour,
			RefreshMargin:  5 * time.Minute,
			HTTPTimeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			ContextTTL:    10 * time.Second,
			StatisticsTTL: 5 * time.Minute,
			CommandsTTL:   10 * time.Second,
		},
		Polling: PollingConfig{
			Interval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/honbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "honbridge",
			},
			QoS:         1,
			TopicPrefix: "hon",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
			Auth: APIAuthConfig{
				Enabled:  true,
				Issuer:   "honbridge",
				TokenTTL: 30 * 24 * time.Hour,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Account
	if v := os.Getenv("HON_EMAIL"); v != "" {
		cfg.Account.Email = v
	}
	if v := os.Getenv("HON_PASSWORD"); v != "" {
		cfg.Account.Password = v
	}

	// Database
	if v := os.Getenv("HON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("HON_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HON_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.Secret = v
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Account
	if c.Account.Email == "" {
		errs = append(errs, "account.email is required (set HON_EMAIL environment variable)")
	}
	if c.Account.Password == "" {
		errs = append(errs, "account.password is required (set HON_PASSWORD environment variable)")
	}
	if c.Account.SessionTimeout <= 0 {
		errs = append(errs, "account.session_timeout must be positive")
	} else if c.Account.RefreshMargin < 0 || c.Account.RefreshMargin >= c.Account.SessionTimeout {
		errs = append(errs, "account.refresh_margin must be shorter than account.session_timeout")
	}

	// Cache
	if c.Cache.ContextTTL <= 0 || c.Cache.StatisticsTTL <= 0 || c.Cache.CommandsTTL <= 0 {
		errs = append(errs, "cache TTLs must be positive")
	}

	// Polling
	if c.Polling.Interval <= 0 {
		errs = append(errs, "polling.interval must be positive")
	}

	// Database
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && c.API.Auth.Enabled {
		const minSecretLength = 32
		if len(c.API.Auth.Secret) < minSecretLength {
			errs = append(errs, "api.auth.secret must be at least 32 characters (set HON_API_JWT_SECRET environment variable)")
		}
		if c.API.Auth.TokenTTL <= 0 {
			errs = append(errs, "api.auth.token_ttl must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
