package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendYAML   = "yaml"
)

// minJWTSecretLength is the shortest accepted HS256 secret.
const minJWTSecretLength = 32

// Config is the root configuration structure for lanwake.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Wake      WakeConfig      `yaml:"wake"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// StorageConfig selects where the device registry is persisted.
type StorageConfig struct {
	// Backend is "sqlite" (database section) or "yaml" (File).
	Backend string `yaml:"backend"`
	File    string `yaml:"file"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MonitorConfig contains reachability polling settings.
type MonitorConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	Jitter         time.Duration `yaml:"jitter"`
	ResyncInterval time.Duration `yaml:"resync_interval"`
	WakeProbeDelay time.Duration `yaml:"wake_probe_delay"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

// WakeConfig contains magic packet transmission settings.
type WakeConfig struct {
	// BroadcastAddress is the default destination, e.g. "192.168.1.255"
	// for a directed broadcast. Devices with wake targets ignore it.
	BroadcastAddress string        `yaml:"broadcast_address"`
	Ports            []int         `yaml:"ports"`
	SendTimeout      time.Duration `yaml:"send_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty Secret disables API authentication.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// Environment variables follow the pattern: LANWAKE_SECTION_KEY
// For example: LANWAKE_DATABASE_PATH, LANWAKE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendSQLite,
			File:    "./data/devices.yaml",
		},
		Database: DatabaseConfig{
			Path:        "./data/lanwake.db",
			WALMode:     true,
			BusyTimeout: 5 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:       10 * time.Second,
			Timeout:        2 * time.Second,
			Jitter:         1 * time.Second,
			ResyncInterval: 30 * time.Second,
			WakeProbeDelay: 3 * time.Second,
			ShutdownGrace:  3 * time.Second,
		},
		Wake: WakeConfig{
			BroadcastAddress: "255.255.255.255",
			Ports:            []int{9, 7},
			SendTimeout:      2 * time.Second,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "lanwake",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lanwake",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// Storage
	if v := os.Getenv("LANWAKE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("LANWAKE_STORAGE_FILE"); v != "" {
		cfg.Storage.File = v
	}

	// Database
	if v := os.Getenv("LANWAKE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Wake
	if v := os.Getenv("LANWAKE_WAKE_BROADCAST_ADDRESS"); v != "" {
		cfg.Wake.BroadcastAddress = v
	}

	// MQTT
	if v := os.Getenv("LANWAKE_MQTT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LANWAKE_MQTT_ENABLED: %w", err)
		}
		cfg.MQTT.Enabled = enabled
	}
	if v := os.Getenv("LANWAKE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LANWAKE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LANWAKE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("LANWAKE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LANWAKE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LANWAKE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// InfluxDB
	if v := os.Getenv("LANWAKE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LANWAKE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security
	if v := os.Getenv("LANWAKE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendYAML:
		if c.Storage.File == "" {
			errs = append(errs, "storage.file is required for the yaml backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be %q or %q", BackendSQLite, BackendYAML))
	}

	errs = append(errs, c.Monitor.validate()...)
	errs = append(errs, c.Wake.validate()...)

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
			errs = append(errs, "mqtt.topic_prefix must be non-empty and contain no wildcards")
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (m MonitorConfig) validate() []string {
	var errs []string
	if m.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}
	if m.Timeout <= 0 {
		errs = append(errs, "monitor.timeout must be positive")
	} else if m.Interval > 0 && m.Timeout > m.Interval {
		errs = append(errs, "monitor.timeout must not exceed monitor.interval")
	}
	if m.Jitter < 0 {
		errs = append(errs, "monitor.jitter must not be negative")
	}
	if m.ResyncInterval <= 0 {
		errs = append(errs, "monitor.resync_interval must be positive")
	}
	if m.WakeProbeDelay < 0 {
		errs = append(errs, "monitor.wake_probe_delay must not be negative")
	}
	if m.ShutdownGrace <= 0 {
		errs = append(errs, "monitor.shutdown_grace must be positive")
	}
	return errs
}

func (w WakeConfig) validate() []string {
	var errs []string
	if _, err := netip.ParseAddr(w.BroadcastAddress); err != nil {
		errs = append(errs, fmt.Sprintf("wake.broadcast_address %q is not an IP address", w.BroadcastAddress))
	}
	if len(w.Ports) == 0 {
		errs = append(errs, "wake.ports must list at least one port")
	}
	for _, p := range w.Ports {
		if p < 1 || p > 65535 {
			errs = append(errs, fmt.Sprintf("wake.ports entry %d must be between 1 and 65535", p))
		}
	}
	if w.SendTimeout <= 0 {
		errs = append(errs, "wake.send_timeout must be positive")
	}
	return errs
}

// BroadcastAddr returns the parsed default broadcast address.
// Call only on a validated config.
func (w WakeConfig) BroadcastAddr() netip.Addr {
	addr, err := netip.ParseAddr(w.BroadcastAddress)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// PortList returns the default wake ports as uint16.
func (w WakeConfig) PortList() []uint16 {
	ports := make([]uint16, 0, len(w.Ports))
	for _, p := range w.Ports {
		if p >= 1 && p <= 65535 {
			ports = append(ports, uint16(p)) //nolint:gosec // Range checked above
		}
	}
	return ports
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
