package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port           string   `json:"port" yaml:"port"`
	WebFilesDir    string   `json:"web_files_dir" yaml:"web_files_dir"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// BridgeConfig holds the Hue bridge connection settings.
type BridgeConfig struct {
	IP             string  `json:"ip" yaml:"ip"`
	AppKey         string  `json:"app_key" yaml:"app_key"`
	LightID        string  `json:"light_id" yaml:"light_id"`
	InsecureTLS    *bool   `json:"insecure_tls" yaml:"insecure_tls"`
	RateLimit      float64 `json:"rate_limit" yaml:"rate_limit"`
	RateBurst      int     `json:"rate_burst" yaml:"rate_burst"`
	RequestTimeout string  `json:"request_timeout" yaml:"request_timeout"`
	RetryDelay     string  `json:"retry_delay" yaml:"retry_delay"`
}

// DispatcherConfig holds the command coalescing settings.
type DispatcherConfig struct {
	Interval string `json:"interval" yaml:"interval"`
}

// MQTTConfig holds MQTT and Home Assistant discovery settings.
type MQTTConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Broker             string `json:"broker" yaml:"broker"` // tcp://IP:PORT
	Username           string `json:"username" yaml:"username"`
	Password           string `json:"password" yaml:"password"`
	ClientID           string `json:"client_id" yaml:"client_id"`
	TopicPrefix        string `json:"topic_prefix" yaml:"topic_prefix"`
	HADiscoveryEnabled bool   `json:"ha_discovery_enabled" yaml:"ha_discovery_enabled"`
	HADiscoveryPrefix  string `json:"ha_discovery_prefix" yaml:"ha_discovery_prefix"`
}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Bridge     BridgeConfig     `json:"bridge" yaml:"bridge"`
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`
	MQTT       MQTTConfig       `json:"mqtt" yaml:"mqtt"`

	PatternsDir   string `json:"patterns_dir" yaml:"patterns_dir"`
	SchedulesFile string `json:"schedules_file" yaml:"schedules_file"`
	LogLevel      string `json:"log_level" yaml:"log_level"`
}

// Load reads the file at path, applies defaults and validates the result.
// A missing file yields the defaults. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := &Config{}
			cfg.setDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file '%s': %w", path, err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
	}

	if envKey := os.Getenv("HUE_APP_KEY"); envKey != "" {
		cfg.Bridge.AppKey = envKey
	}

	cfg.sanitize()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) sanitize() {
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Server.WebFilesDir = strings.TrimSpace(c.Server.WebFilesDir)
	c.Bridge.IP = strings.TrimSpace(c.Bridge.IP)
	c.Bridge.AppKey = strings.TrimSpace(c.Bridge.AppKey)
	c.Bridge.LightID = strings.TrimSpace(c.Bridge.LightID)
	c.Dispatcher.Interval = strings.TrimSpace(c.Dispatcher.Interval)
	c.PatternsDir = strings.TrimSpace(c.PatternsDir)
	c.SchedulesFile = strings.TrimSpace(c.SchedulesFile)
	c.MQTT.TopicPrefix = strings.Trim(strings.TrimSpace(c.MQTT.TopicPrefix), "/")
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.WebFilesDir == "" {
		c.Server.WebFilesDir = "./web"
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:" + c.Server.Port}
	}

	if c.Bridge.InsecureTLS == nil {
		insecure := true
		c.Bridge.InsecureTLS = &insecure
	}
	if c.Bridge.RateLimit == 0 {
		c.Bridge.RateLimit = 10
	}
	if c.Bridge.RateBurst == 0 {
		c.Bridge.RateBurst = 5
	}
	if c.Bridge.RequestTimeout == "" {
		c.Bridge.RequestTimeout = "5s"
	}
	if c.Bridge.RetryDelay == "" {
		c.Bridge.RetryDelay = "5s"
	}

	if c.Dispatcher.Interval == "" {
		c.Dispatcher.Interval = "500ms"
	}

	if c.PatternsDir == "" {
		c.PatternsDir = "patterns"
	}
	if c.SchedulesFile == "" {
		c.SchedulesFile = "schedules.json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "hue-controller-" + uuid.NewString()[:8]
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "hue"
	}
	if c.MQTT.HADiscoveryPrefix == "" {
		c.MQTT.HADiscoveryPrefix = "homeassistant"
	}
}

func (c *Config) validate() error {
	if c.Bridge.IP == "" {
		return fmt.Errorf("config error: 'bridge.ip' is required")
	}
	if c.Bridge.AppKey == "" {
		return fmt.Errorf("config error: 'bridge.app_key' is required")
	}
	if c.Bridge.RateLimit < 0 {
		return fmt.Errorf("config error: 'bridge.rate_limit' must be positive")
	}
	if c.Bridge.RateBurst < 0 {
		return fmt.Errorf("config error: 'bridge.rate_burst' must be positive")
	}
	if _, err := positiveDuration("bridge.request_timeout", c.Bridge.RequestTimeout); err != nil {
		return err
	}
	if _, err := positiveDuration("bridge.retry_delay", c.Bridge.RetryDelay); err != nil {
		return err
	}
	if _, err := positiveDuration("dispatcher.interval", c.Dispatcher.Interval); err != nil {
		return err
	}
	return nil
}

func positiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config error: '%s': %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config error: '%s' must be positive", name)
	}
	return d, nil
}

// DispatchInterval returns the parsed dispatcher interval.
func (c *Config) DispatchInterval() time.Duration {
	d, _ := time.ParseDuration(c.Dispatcher.Interval)
	return d
}

// Timeout returns the parsed bridge request timeout.
func (b BridgeConfig) Timeout() time.Duration {
	d, _ := time.ParseDuration(b.RequestTimeout)
	return d
}

// Retry returns the parsed delay between bridge initialization attempts.
func (b BridgeConfig) Retry() time.Duration {
	d, _ := time.ParseDuration(b.RetryDelay)
	return d
}

// Insecure reports whether bridge certificate verification is skipped.
func (b BridgeConfig) Insecure() bool {
	return b.InsecureTLS == nil || *b.InsecureTLS
}
