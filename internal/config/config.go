package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig configures the HTTP/WebSocket API.
type ServerConfig struct {
	Port           string   `json:"port"`
	WebFilesDir    string   `json:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// BLEConfig configures the Bluetooth bridge transport.
type BLEConfig struct {
	DeviceNames        []string `json:"device_names"`
	ServiceUUID        string   `json:"service_uuid"`
	CharacteristicUUID string   `json:"characteristic_uuid"`
	ScanTimeout        string   `json:"scan_timeout"`
	ConnectTimeout     string   `json:"connect_timeout"`
	HeartbeatInterval  string   `json:"heartbeat_interval"`
	RetryDelay         string   `json:"retry_delay"`
	RateLimit          float64  `json:"command_rate_limit"`
	RateBurst          int      `json:"command_rate_burst"`
}

// DeviceConfig selects and configures the keyboard transport.
type DeviceConfig struct {
	// Transport is one of "hidraw", "ble" or "log".
	Transport string `json:"transport"`
	// HIDRawPath skips discovery when set, e.g. /dev/hidraw3.
	HIDRawPath string    `json:"hidraw_path"`
	SysfsRoot  string    `json:"sysfs_root"`
	BLE        BLEConfig `json:"ble"`
}

// MQTTConfig configures the optional MQTT bridge.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	Broker      string `json:"broker"` // tcp://IP:PORT
	Username    string `json:"username"`
	Password    string `json:"password"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// EffectsConfig tunes the effect worker.
type EffectsConfig struct {
	// PollInterval bounds how long the worker blocks on an empty mailbox
	// before it re-checks for shutdown.
	PollInterval   string `json:"poll_interval"`
	StartupProfile string `json:"startup_profile"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
}

// Config is the top-level agent configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Device  DeviceConfig  `json:"device"`
	MQTT    MQTTConfig    `json:"mqtt"`
	Effects EffectsConfig `json:"effects"`
	Logging LoggingConfig `json:"logging"`

	PatternsDir   string `json:"patterns_dir"`
	SchedulesFile string `json:"schedules_file"`
	ProfilesFile  string `json:"profiles_file"`
}

// Load reads the JSON file at path, applies defaults and validates it.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	}

	if v := os.Getenv("KBLIGHT_SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("KBLIGHT_TRANSPORT"); v != "" {
		cfg.Device.Transport = v
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PollInterval returns the parsed worker poll interval.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Effects.PollInterval)
	if err != nil || d <= 0 {
		return 20 * time.Millisecond
	}
	return d
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.Device.Transport = strings.ToLower(strings.TrimSpace(c.Device.Transport))
	c.Device.HIDRawPath = strings.TrimSpace(c.Device.HIDRawPath)
	c.Effects.StartupProfile = strings.TrimSpace(c.Effects.StartupProfile)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.PatternsDir = strings.TrimSpace(c.PatternsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	c.ProfilesFile = strings.TrimSpace(c.ProfilesFile)
	// BLE names are matched exactly, trailing spaces included.
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:8080"}
	}

	if c.Device.Transport == "" {
		c.Device.Transport = "hidraw"
	}
	if c.Device.SysfsRoot == "" {
		c.Device.SysfsRoot = "/sys"
	}
	if len(c.Device.BLE.DeviceNames) == 0 {
		c.Device.BLE.DeviceNames = []string{"KB-BRIDGE"}
	}
	if c.Device.BLE.ServiceUUID == "" {
		c.Device.BLE.ServiceUUID = "0000fff0-0000-1000-8000-00805f9b34fb"
	}
	if c.Device.BLE.CharacteristicUUID == "" {
		c.Device.BLE.CharacteristicUUID = "0000fff3-0000-1000-8000-00805f9b34fb"
	}
	if c.Device.BLE.ScanTimeout == "" {
		c.Device.BLE.ScanTimeout = "30s"
	}
	if c.Device.BLE.ConnectTimeout == "" {
		c.Device.BLE.ConnectTimeout = "7s"
	}
	if c.Device.BLE.HeartbeatInterval == "" {
		c.Device.BLE.HeartbeatInterval = "60s"
	}
	if c.Device.BLE.RetryDelay == "" {
		c.Device.BLE.RetryDelay = "5s"
	}
	if c.Device.BLE.RateLimit == 0 {
		c.Device.BLE.RateLimit = 50.0
	}
	if c.Device.BLE.RateBurst <= 0 {
		c.Device.BLE.RateBurst = 25
	}

	if c.Effects.PollInterval == "" {
		c.Effects.PollInterval = "20ms"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.PatternsDir == "" {
		c.PatternsDir = "patterns"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}
	if c.ProfilesFile == "" {
		c.ProfilesFile = "profiles.yaml"
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "kblight"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "kblight"
	}
}

func (c *Config) validate() error {
	switch c.Device.Transport {
	case "hidraw", "ble", "log":
	default:
		return fmt.Errorf("config error: unknown device transport %q", c.Device.Transport)
	}
	if c.Device.BLE.RateLimit < 0 {
		return fmt.Errorf("config error: 'command_rate_limit' must be positive")
	}
	for name, v := range map[string]string{
		"scan_timeout":       c.Device.BLE.ScanTimeout,
		"connect_timeout":    c.Device.BLE.ConnectTimeout,
		"heartbeat_interval": c.Device.BLE.HeartbeatInterval,
		"retry_delay":        c.Device.BLE.RetryDelay,
		"poll_interval":      c.Effects.PollInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("config error: '%s': %w", name, err)
		}
	}
	return nil
}
