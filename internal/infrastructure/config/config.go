package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Puck Central.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	BLE       BLEConfig       `yaml:"ble"`
	Pairing   PairingConfig   `yaml:"pairing"`
	Actuators ActuatorsConfig `yaml:"actuators"`
}

// ServiceConfig identifies this Puck Central instance.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig contains API authentication settings.
type APIAuthConfig struct {
	// JWTSecret signs and verifies bearer tokens. Empty disables
	// authentication, which is only sensible on a loopback listener.
	JWTSecret string `yaml:"jwt_secret"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// BLEConfig contains settings for the BLE bridge and GATT discovery sessions.
type BLEConfig struct {
	// TopicPrefix is the MQTT topic root shared with the BLE bridge.
	// Default: "puckcentral"
	TopicPrefix string `yaml:"topic_prefix"`

	// SessionTimeout aborts a discovery session that has not terminated
	// within the given duration. Zero disables the timeout, which leaves a
	// non-connectable puck in the connecting state until shutdown.
	// Default: 0
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// EventBuffer is the per-session event queue depth.
	// Default: 16
	EventBuffer int `yaml:"event_buffer"`

	// RefreshSchedule is a cron expression (with seconds field) for re-running
	// service discovery against every registered puck. Empty disables it.
	RefreshSchedule string `yaml:"refresh_schedule"`

	// Bridge configures the BLE-to-MQTT bridge process.
	Bridge BLEBridgeConfig `yaml:"bridge"`
}

// BLEBridgeConfig contains settings for managing the BLE bridge subprocess.
type BLEBridgeConfig struct {
	// Managed indicates whether Puck Central should manage the bridge lifecycle.
	// If false, the bridge is expected to be running externally.
	Managed bool `yaml:"managed"`

	// Binary is the path to the bridge executable.
	Binary string `yaml:"binary"`

	// Args are extra command-line arguments passed to the bridge.
	Args []string `yaml:"args"`

	// Adapter is the HCI adapter handed to the bridge (e.g. "hci0").
	Adapter string `yaml:"adapter"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`

	// MaxRestartAttempts limits restart attempts. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// PairingConfig controls how newly sighted beacons become pucks.
type PairingConfig struct {
	// AutoPair creates a puck as soon as an unknown beacon enters range.
	// When false the beacon is held as a candidate until accepted via the API.
	AutoPair bool `yaml:"auto_pair"`

	// CandidateTTL is how long an unaccepted candidate is remembered.
	// Default: 10m
	CandidateTTL time.Duration `yaml:"candidate_ttl"`
}

// ActuatorsConfig contains per-actuator settings.
type ActuatorsConfig struct {
	Notify  NotifyConfig  `yaml:"notify"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// NotifyConfig configures the notify actuator.
type NotifyConfig struct {
	// DefaultChannel is used when an action does not name a channel.
	DefaultChannel string `yaml:"default_channel"`
}

// WebhookConfig configures the webhook actuator.
type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the maximum sustained requests per second across all
	// webhook actions. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PUCKCENTRAL_SECTION_KEY
// For example: PUCKCENTRAL_DATABASE_PATH, PUCKCENTRAL_MQTT_HOST
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
		Service: ServiceConfig{
			ID:   "puckcentral-001",
			Name: "Puck Central",
		},
		Database: DatabaseConfig{
			Path:        "./data/puckcentral.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "puckcentral",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		BLE: BLEConfig{
			TopicPrefix: "puckcentral",
			EventBuffer: 16,
			Bridge: BLEBridgeConfig{
				Binary:              "/usr/bin/puck-ble-bridge",
				Adapter:             "hci0",
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		Pairing: PairingConfig{
			CandidateTTL: 10 * time.Minute,
		},
		Actuators: ActuatorsConfig{
			Notify: NotifyConfig{
				DefaultChannel: "default",
			},
			Webhook: WebhookConfig{
				Timeout:   10 * time.Second,
				RateLimit: 5,
				Burst:     10,
				Breaker: BreakerConfig{
					MaxFailures: 5,
					Timeout:     30 * time.Second,
					Interval:    60 * time.Second,
				},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PUCKCENTRAL_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("PUCKCENTRAL_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PUCKCENTRAL_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PUCKCENTRAL_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PUCKCENTRAL_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PUCKCENTRAL_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PUCKCENTRAL_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PUCKCENTRAL_API_JWT_SECRET"); v != "" {
		cfg.API.Auth.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("PUCKCENTRAL_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// BLE
	if v := os.Getenv("PUCKCENTRAL_BLE_SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.BLE.SessionTimeout = d
		}
	}
}

// Validate checks the configuration for errors.
// All problems are collected and reported together.
// minJWTSecretLength matches auth.MinSecretLength.
const minJWTSecretLength = 32

func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if s := c.API.Auth.JWTSecret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.jwt_secret must be at least %d characters", minJWTSecretLength))
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if c.BLE.TopicPrefix == "" || strings.ContainsAny(c.BLE.TopicPrefix, "#+") {
		errs = append(errs, "ble.topic_prefix must be a non-empty topic without wildcards")
	}
	if c.BLE.SessionTimeout < 0 {
		errs = append(errs, "ble.session_timeout cannot be negative")
	}
	if c.BLE.EventBuffer < 1 {
		errs = append(errs, "ble.event_buffer must be at least 1")
	}
	if c.BLE.Bridge.Managed && c.BLE.Bridge.Binary == "" {
		errs = append(errs, "ble.bridge.binary is required when the bridge is managed")
	}

	if c.Pairing.CandidateTTL <= 0 {
		errs = append(errs, "pairing.candidate_ttl must be positive")
	}

	if c.Actuators.Webhook.RateLimit < 0 {
		errs = append(errs, "actuators.webhook.rate_limit cannot be negative")
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
