package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for rigbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Sequence SequenceConfig `yaml:"sequence"`
	Media    MediaConfig    `yaml:"media"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig contains settings for the downstream device-control server link.
type DeviceConfig struct {
	// URL is the WebSocket address of the device-control server.
	// Example: "ws://192.168.1.40:8000/ws"
	URL string `yaml:"url"`

	// ConnectTimeout is the maximum time for one connection attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// RequestTimeout is the default per-request timeout (seconds).
	RequestTimeout int `yaml:"request_timeout"`

	// CaptureTimeout is the timeout for capture_image requests, which move
	// image payloads and take longer than control commands (seconds).
	CaptureTimeout int `yaml:"capture_timeout"`

	// ReconnectInterval is the fixed delay between reconnection attempts
	// after the link drops (seconds). Retry is unbounded.
	ReconnectInterval int `yaml:"reconnect_interval"`
}

// SequenceConfig contains timing settings for capture-set sequences.
type SequenceConfig struct {
	// SettleDelayMS is the pause between switching a light on and capturing,
	// letting exposure stabilise (milliseconds).
	SettleDelayMS int `yaml:"settle_delay_ms"`

	// InterStepDelayMS is the pause between sequence steps (milliseconds).
	InterStepDelayMS int `yaml:"inter_step_delay_ms"`

	// CleanupTimeout bounds each best-effort light-off command in the
	// cleanup phase (seconds).
	CleanupTimeout int `yaml:"cleanup_timeout"`
}

// MediaConfig contains artifact storage settings.
type MediaConfig struct {
	// BaseDir is the root directory for captured artifacts.
	// Capture sets are created under BaseDir/sets/.
	BaseDir string `yaml:"base_dir"`
}

// DatabaseConfig contains SQLite database settings for the capture-set index.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains frontend WebSocket settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// MQTTConfig contains optional MQTT event-publishing settings.
type MQTTConfig struct {
	Enabled bool             `yaml:"enabled"`
	Broker  MQTTBrokerConfig `yaml:"broker"`
	Auth    MQTTAuthConfig   `yaml:"auth"`
	QoS     int              `yaml:"qos"`
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

// InfluxDBConfig contains optional telemetry settings.
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RIGBRIDGE_SECTION_KEY
// For example: RIGBRIDGE_DEVICE_URL, RIGBRIDGE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		Device: DeviceConfig{
			URL:               "ws://localhost:8000/ws",
			ConnectTimeout:    5,
			RequestTimeout:    10,
			CaptureTimeout:    20,
			ReconnectInterval: 5,
		},
		Sequence: SequenceConfig{
			SettleDelayMS:    1500,
			InterStepDelayMS: 750,
			CleanupTimeout:   2,
		},
		Media: MediaConfig{
			BaseDir: "./data/captures",
		},
		Database: DatabaseConfig{
			Path:        "./data/rigbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				Path:           "/ws",
				MaxMessageSize: 1 << 20,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rigbridge",
			},
			QoS: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RIGBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RIGBRIDGE_DEVICE_URL"); v != "" {
		cfg.Device.URL = v
	}
	if v := os.Getenv("RIGBRIDGE_MEDIA_BASE_DIR"); v != "" {
		cfg.Media.BaseDir = v
	}
	if v := os.Getenv("RIGBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RIGBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RIGBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("RIGBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RIGBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RIGBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("RIGBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("RIGBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.URL == "" {
		errs = append(errs, "device.url is required")
	} else if !strings.HasPrefix(c.Device.URL, "ws://") && !strings.HasPrefix(c.Device.URL, "wss://") {
		errs = append(errs, "device.url must use ws:// or wss:// scheme")
	}
	if c.Device.ConnectTimeout <= 0 {
		errs = append(errs, "device.connect_timeout must be positive")
	}
	if c.Device.RequestTimeout <= 0 {
		errs = append(errs, "device.request_timeout must be positive")
	}
	if c.Device.ReconnectInterval <= 0 {
		errs = append(errs, "device.reconnect_interval must be positive")
	}

	if c.Sequence.SettleDelayMS < 0 {
		errs = append(errs, "sequence.settle_delay_ms must not be negative")
	}
	if c.Sequence.InterStepDelayMS < 0 {
		errs = append(errs, "sequence.inter_step_delay_ms must not be negative")
	}

	if c.Media.BaseDir == "" {
		errs = append(errs, "media.base_dir is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetConnectTimeout returns the device connect timeout as a Duration.
func (c *DeviceConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetRequestTimeout returns the default request timeout as a Duration.
func (c *DeviceConfig) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetCaptureTimeout returns the capture request timeout as a Duration.
func (c *DeviceConfig) GetCaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeout) * time.Second
}

// GetReconnectInterval returns the reconnect backoff as a Duration.
func (c *DeviceConfig) GetReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectInterval) * time.Second
}

// GetSettleDelay returns the per-step settle delay as a Duration.
func (c *SequenceConfig) GetSettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// GetInterStepDelay returns the inter-step delay as a Duration.
func (c *SequenceConfig) GetInterStepDelay() time.Duration {
	return time.Duration(c.InterStepDelayMS) * time.Millisecond
}

// GetCleanupTimeout returns the cleanup light-off timeout as a Duration.
func (c *SequenceConfig) GetCleanupTimeout() time.Duration {
	return time.Duration(c.CleanupTimeout) * time.Second
}
