package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor BACKLIGHTD_CONFIG is set.
const DefaultPath = "/etc/backlightd/config.yaml"

// Config is the root configuration structure for backlightd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Sysfs    SysfsConfig    `yaml:"sysfs"`
	Loop     LoopConfig     `yaml:"loop"`
	Capture  CaptureConfig  `yaml:"capture"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BusConfig selects the D-Bus bus and the exported identity.
type BusConfig struct {
	Type      string `yaml:"type"` // "system" or "session"
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
}

// SysfsConfig locates the device tree. Tests and containers point these at
// a fake tree.
type SysfsConfig struct {
	Root    string `yaml:"root"`
	DevRoot string `yaml:"dev_root"`
}

// LoopConfig tunes the request loop.
type LoopConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// CaptureConfig contains the optional frame capture feature.
type CaptureConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	QueueSize int      `yaml:"queue_size"`
	Timeout   int      `yaml:"timeout"` // seconds
}

// DatabaseConfig contains SQLite settings for the audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Commands    MQTTCommandsConfig  `yaml:"commands"`
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

// MQTTCommandsConfig enables brightness commands over MQTT.
type MQTTCommandsConfig struct {
	Enabled bool `yaml:"enabled"`
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

// APIConfig contains the health and metrics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
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

// ResolvePath picks the config file: the flag value, then BACKLIGHTD_CONFIG,
// then DefaultPath. explicit is false only for DefaultPath.
func ResolvePath(flagValue string) (path string, explicit bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if v := os.Getenv("BACKLIGHTD_CONFIG"); v != "" {
		return v, true
	}
	return DefaultPath, false
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BACKLIGHTD_SECTION_KEY
// For example: BACKLIGHTD_BUS_TYPE, BACKLIGHTD_MQTT_HOST
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadIfExists is Load, except that a missing file yields the defaults.
func LoadIfExists(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, allowMissing bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case allowMissing && errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
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
		Bus: BusConfig{
			Type:      "system",
			Name:      "org.clight.backlight",
			Path:      "/org/clight/backlight",
			Interface: "org.clight.backlight",
		},
		Sysfs: SysfsConfig{
			Root:    "/sys",
			DevRoot: "/dev",
		},
		Loop: LoopConfig{
			QueueSize: 64,
		},
		Capture: CaptureConfig{
			Command:   "/usr/libexec/backlightd/capture",
			QueueSize: 4,
			Timeout:   30,
		},
		Database: DatabaseConfig{
			Path:        "/var/lib/backlightd/audit.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "backlightd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "backlightd",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "backlightd",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9440,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
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
// Environment variables follow the pattern: BACKLIGHTD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bus
	if v := os.Getenv("BACKLIGHTD_BUS_TYPE"); v != "" {
		cfg.Bus.Type = v
	}

	// Sysfs
	if v := os.Getenv("BACKLIGHTD_SYSFS_ROOT"); v != "" {
		cfg.Sysfs.Root = v
	}

	// Capture
	if v := os.Getenv("BACKLIGHTD_CAPTURE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Capture.Enabled = b
		}
	}
	if v := os.Getenv("BACKLIGHTD_CAPTURE_COMMAND"); v != "" {
		cfg.Capture.Command = v
	}

	// Database
	if v := os.Getenv("BACKLIGHTD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BACKLIGHTD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BACKLIGHTD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BACKLIGHTD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BACKLIGHTD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("BACKLIGHTD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Logging
	if v := os.Getenv("BACKLIGHTD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	// Bus validation
	if c.Bus.Type != "system" && c.Bus.Type != "session" {
		errs = append(errs, "bus.type must be system or session")
	}
	if c.Bus.Name == "" {
		errs = append(errs, "bus.name is required")
	}
	if !strings.HasPrefix(c.Bus.Path, "/") {
		errs = append(errs, "bus.path must be an absolute object path")
	}
	if c.Bus.Interface == "" {
		errs = append(errs, "bus.interface is required")
	}

	// Sysfs validation
	if c.Sysfs.Root == "" {
		errs = append(errs, "sysfs.root is required")
	}

	// Loop validation
	if c.Loop.QueueSize < 1 {
		errs = append(errs, "loop.queue_size must be at least 1")
	}

	// Capture validation, only when enabled
	if c.Capture.Enabled {
		if c.Capture.Command == "" {
			errs = append(errs, "capture.command is required when capture is enabled")
		}
		if c.Capture.QueueSize < 1 {
			errs = append(errs, "capture.queue_size must be at least 1")
		}
		if c.Capture.Timeout < 0 {
			errs = append(errs, "capture.timeout must not be negative")
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#") {
			errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
		}
	}
	if c.MQTT.Commands.Enabled && !c.MQTT.Enabled {
		errs = append(errs, "mqtt.commands.enabled requires mqtt.enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// GetCaptureTimeout returns the per-capture timeout. Zero means none.
func (c *Config) GetCaptureTimeout() time.Duration {
	return time.Duration(c.Capture.Timeout) * time.Second
}
