package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default broker credentials used by Tether deployments.
const (
	DefaultUsername = "tether"
	DefaultPassword = "sp_ceB0ss!"
)

// Config is the root configuration structure for a Tether process.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
}

// AgentConfig identifies the agent on the topic hierarchy.
type AgentConfig struct {
	Role string `yaml:"role"`
	ID   string `yaml:"id"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker            MQTTBrokerConfig    `yaml:"broker"`
	Auth              MQTTAuthConfig      `yaml:"auth"`
	QoS               int                 `yaml:"qos"`
	KeepAlive         int                 `yaml:"keep_alive"`         // seconds
	ConnectTimeout    int                 `yaml:"connect_timeout"`    // seconds
	DisconnectQuiesce int                 `yaml:"disconnect_quiesce"` // milliseconds
	Reconnect         MQTTReconnectConfig `yaml:"reconnect"`
	Will              MQTTWillConfig      `yaml:"will"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig controls the optional reconnect supervisor.
type MQTTReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	InitialDelay int  `yaml:"initial_delay"` // seconds
	MaxDelay     int  `yaml:"max_delay"`     // seconds
	MaxAttempts  int  `yaml:"max_attempts"`
}

// MQTTWillConfig is an optional Last Will and Testament registered on connect.
type MQTTWillConfig struct {
	Topic    string `yaml:"topic"`
	Payload  string `yaml:"payload"`
	QoS      int    `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
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

// DatabaseConfig contains SQLite settings for the recordings store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (skipped when path is empty)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TETHER_SECTION_KEY
// For example: TETHER_MQTT_HOST, TETHER_AGENT_ROLE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file or environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Role: "tether-cli",
			ID:   "any",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Protocol: "tcp",
				Host:     "localhost",
				Port:     1883,
			},
			Auth: MQTTAuthConfig{
				Username: DefaultUsername,
				Password: DefaultPassword,
			},
			QoS:               1,
			KeepAlive:         60,
			ConnectTimeout:    10,
			DisconnectQuiesce: 250,
			Reconnect: MQTTReconnectConfig{
				Enabled:      false,
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Database: DatabaseConfig{
			Path:        "./data/recordings.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Agent
	if v := os.Getenv("TETHER_AGENT_ROLE"); v != "" {
		cfg.Agent.Role = v
	}
	if v := os.Getenv("TETHER_AGENT_ID"); v != "" {
		cfg.Agent.ID = v
	}

	// MQTT
	if v := os.Getenv("TETHER_MQTT_PROTOCOL"); v != "" {
		cfg.MQTT.Broker.Protocol = v
	}
	if v := os.Getenv("TETHER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TETHER_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("TETHER_MQTT_BASE_PATH"); v != "" {
		cfg.MQTT.Broker.BasePath = v
	}
	if v := os.Getenv("TETHER_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("TETHER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TETHER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Logging
	if v := os.Getenv("TETHER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Metrics
	if v := os.Getenv("TETHER_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	// InfluxDB
	if v := os.Getenv("TETHER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("TETHER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Agent.Role == "" {
		errs = append(errs, "agent.role is required")
	}
	if c.Agent.ID == "" {
		errs = append(errs, "agent.id is required")
	}
	if strings.ContainsAny(c.Agent.Role+c.Agent.ID, "/+#") {
		errs = append(errs, "agent.role and agent.id must not contain '/', '+' or '#'")
	}

	switch strings.ToLower(c.MQTT.Broker.Protocol) {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		errs = append(errs, fmt.Sprintf("mqtt.broker.protocol %q is not supported", c.MQTT.Broker.Protocol))
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.Enabled && c.MQTT.Reconnect.MaxAttempts < 1 {
		errs = append(errs, "mqtt.reconnect.max_attempts must be at least 1 when reconnect is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the broker handshake timeout as a Duration.
func (c *MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetKeepAlive returns the keepalive interval as a Duration.
func (c *MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// GetDisconnectQuiesce returns the graceful disconnect bound as a Duration.
func (c *MQTTConfig) GetDisconnectQuiesce() time.Duration {
	return time.Duration(c.DisconnectQuiesce) * time.Millisecond
}

// GetInitialDelay returns the first reconnect delay as a Duration.
func (c *MQTTReconnectConfig) GetInitialDelay() time.Duration {
	return time.Duration(c.InitialDelay) * time.Second
}

// GetMaxDelay returns the reconnect delay ceiling as a Duration.
func (c *MQTTReconnectConfig) GetMaxDelay() time.Duration {
	return time.Duration(c.MaxDelay) * time.Second
}
