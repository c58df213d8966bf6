package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/hapt/internal/hostapd"
)

// Config is the root configuration structure for hapt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Presence      PresenceConfig      `yaml:"presence"`
	Hostapd       HostapdConfig       `yaml:"hostapd"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Leases        LeasesConfig        `yaml:"leases"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// PresenceConfig contains the presence tracking policy.
type PresenceConfig struct {
	// Radios is an optional allow-list of hostapd interface names.
	// Empty means every radio that appears is tracked.
	Radios []string `yaml:"radios"`

	// Devices is an optional allow-list of device MAC addresses.
	// Empty means every device is tracked.
	Devices []string `yaml:"devices"`

	// DeviceIDPrefix is prepended to the device id sent to Home Assistant.
	DeviceIDPrefix string `yaml:"device_id_prefix"`

	// ConsiderHomeConnect is the home timeout (seconds) sent with "arrived".
	ConsiderHomeConnect int `yaml:"consider_home_connect"`

	// ConsiderHomeDisconnect is the away timeout (seconds) sent with "departed".
	ConsiderHomeDisconnect int `yaml:"consider_home_disconnect"`
}

// HostapdConfig contains hostapd control interface settings.
type HostapdConfig struct {
	// CtrlDir is the directory holding one control socket per radio.
	// Default: "/var/run/hostapd"
	CtrlDir string `yaml:"ctrl_dir"`

	// LocalDir is where hapt creates its own client sockets. hostapd must be
	// able to write to sockets in this directory.
	// Default: "/var/run"
	LocalDir string `yaml:"local_dir"`

	// ReplyTimeout bounds the wait for the ATTACH/DETACH acknowledgement.
	// Default: 2s
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// QueryBinary is the ubus executable used for the startup association query.
	// Default: "ubus"
	QueryBinary string `yaml:"query_binary"`

	// QueryTimeout bounds a single association query.
	// Default: 5s
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// HomeAssistantConfig contains the notification target.
type HomeAssistantConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// LeasesConfig contains the dnsmasq lease file used to name devices.
type LeasesConfig struct {
	File   string `yaml:"file"`
	Domain string `yaml:"domain"`
}

// DatabaseConfig contains SQLite presence journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays drops journal rows older than this at startup.
	// Zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HAPT_SECTION_KEY
// For example: HAPT_HOMEASSISTANT_TOKEN, HAPT_MQTT_HOST
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

// defaultConfig returns a Config with the defaults of a stock OpenWrt install.
func defaultConfig() *Config {
	return &Config{
		Presence: PresenceConfig{
			ConsiderHomeConnect:    86400,
			ConsiderHomeDisconnect: 180,
		},
		Hostapd: HostapdConfig{
			CtrlDir:      "/var/run/hostapd",
			LocalDir:     "/var/run",
			ReplyTimeout: 2 * time.Second,
			QueryBinary:  "ubus",
			QueryTimeout: 5 * time.Second,
		},
		HomeAssistant: HomeAssistantConfig{
			Timeout: 10 * time.Second,
		},
		Leases: LeasesConfig{
			File: "/tmp/dhcp.leases",
		},
		Database: DatabaseConfig{
			Path:        "/tmp/hapt/journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hapt",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    1,
				MaxBackups: 2,
				MaxAge:     7,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Secrets are expected to come from here rather than the file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HAPT_HOMEASSISTANT_URL"); v != "" {
		cfg.HomeAssistant.URL = v
	}
	if v := os.Getenv("HAPT_HOMEASSISTANT_TOKEN"); v != "" {
		cfg.HomeAssistant.Token = v
	}

	if v := os.Getenv("HAPT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HAPT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HAPT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HAPT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("HAPT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HAPT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// presence.devices entries are rewritten in place to the lower-case,
// colon-separated form hostapd reports, so "AA-BB-CC-DD-EE-FF" matches.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Presence.ConsiderHomeConnect < 0 {
		errs = append(errs, "presence.consider_home_connect must not be negative")
	}
	if c.Presence.ConsiderHomeDisconnect < 0 {
		errs = append(errs, "presence.consider_home_disconnect must not be negative")
	}
	for i, mac := range c.Presence.Devices {
		canonical, err := hostapd.NormalizeMAC(mac)
		if err != nil {
			errs = append(errs, fmt.Sprintf("presence.devices[%d]: %q is not a MAC address", i, mac))
			continue
		}
		c.Presence.Devices[i] = canonical
	}

	if c.Hostapd.CtrlDir == "" {
		errs = append(errs, "hostapd.ctrl_dir is required")
	}
	if c.Hostapd.LocalDir == "" {
		errs = append(errs, "hostapd.local_dir is required")
	}
	if c.Hostapd.ReplyTimeout <= 0 {
		errs = append(errs, "hostapd.reply_timeout must be positive")
	}

	if c.HomeAssistant.URL == "" {
		errs = append(errs, "homeassistant.url is required")
	} else if !strings.HasPrefix(c.HomeAssistant.URL, "http://") && !strings.HasPrefix(c.HomeAssistant.URL, "https://") {
		errs = append(errs, "homeassistant.url must start with http:// or https://")
	}
	if c.HomeAssistant.Token == "" {
		errs = append(errs, "homeassistant.token is required (set HAPT_HOMEASSISTANT_TOKEN environment variable)")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
