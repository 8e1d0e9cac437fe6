package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol names the wire protocol a session binds to
type Protocol string

const (
	// ProtocolMQTT selects the MQTT adapter ("/", "+", "#")
	ProtocolMQTT Protocol = "mqtt"
	// ProtocolNATS selects the "*"/">" dialect adapter
	ProtocolNATS Protocol = "nats"
)

// SharePolicy controls how transport subscriptions are shared between handles
type SharePolicy string

const (
	// SharePolicyFilter shares one transport subscription per filter string
	SharePolicyFilter SharePolicy = "filter"
	// SharePolicyHandle issues one transport subscription per handle
	SharePolicyHandle SharePolicy = "handle"
)

type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LogConfig      `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	API      APIConfig      `yaml:"api"`
	Routes   RoutesConfig   `yaml:"routes"`
}

type BrokerConfig struct {
	Protocol       Protocol     `yaml:"protocol"`
	URLs           []string     `yaml:"urls"`
	ClientID       string       `yaml:"clientId"`
	Username       string       `yaml:"username"`
	Password       string       `yaml:"password"`
	TLS            *TLSConfig   `yaml:"tls,omitempty"`
	RetryDelay     string       `yaml:"retryDelay"`     // Duration string
	ConnectTimeout string       `yaml:"connectTimeout"` // Duration string
	Queue          *QueueConfig `yaml:"queue,omitempty"`
}

type TLSConfig struct {
	Enable   bool   `yaml:"enable"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`
}

// QueueConfig binds the session to a named durable queue (nats only)
type QueueConfig struct {
	Name    string `yaml:"name"`
	Subject string `yaml:"subject"`
}

type RegistryConfig struct {
	SharePolicy SharePolicy `yaml:"sharePolicy"`
}

type LogConfig struct {
	Level      string `yaml:"level"`      // debug, info, warn, error
	OutputPath string `yaml:"outputPath"` // file path or "stdout"
	Encoding   string `yaml:"encoding"`   // json or console
	MaxSize    int    `yaml:"maxSize"`    // megabytes
	MaxAge     int    `yaml:"maxAge"`     // days
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	UpdateInterval string `yaml:"updateInterval"` // Duration string
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type RoutesConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the configuration file. JSON files are accepted as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates configuration data
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Broker.Protocol == "" {
		c.Broker.Protocol = ProtocolMQTT
	}
	c.Broker.Protocol = Protocol(strings.ToLower(string(c.Broker.Protocol)))
	if c.Broker.RetryDelay == "" {
		c.Broker.RetryDelay = "1s"
	}
	if c.Broker.ConnectTimeout == "" {
		c.Broker.ConnectTimeout = "10s"
	}

	if c.Registry.SharePolicy == "" {
		c.Registry.SharePolicy = SharePolicyFilter
	}

	// Set defaults for logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.OutputPath == "" {
		c.Logging.OutputPath = "stdout"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}

	// Set defaults for metrics
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}

	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if err := validateBrokerConfig(&cfg.Broker); err != nil {
		return err
	}

	switch cfg.Registry.SharePolicy {
	case SharePolicyFilter, SharePolicyHandle:
	default:
		return fmt.Errorf("invalid share policy: %s", cfg.Registry.SharePolicy)
	}

	// Validate logging config
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	// Validate metrics config
	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	return nil
}

func validateBrokerConfig(cfg *BrokerConfig) error {
	switch cfg.Protocol {
	case ProtocolMQTT, ProtocolNATS:
	default:
		return fmt.Errorf("invalid broker protocol: %s", cfg.Protocol)
	}

	if len(cfg.URLs) == 0 {
		return fmt.Errorf("at least one broker url is required")
	}

	// persistent MQTT sessions are keyed by client id
	if cfg.Protocol == ProtocolMQTT && cfg.ClientID == "" {
		return fmt.Errorf("client id is required for mqtt")
	}

	if _, err := time.ParseDuration(cfg.RetryDelay); err != nil {
		return fmt.Errorf("invalid retry delay: %w", err)
	}
	if _, err := time.ParseDuration(cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("invalid connect timeout: %w", err)
	}

	// Validate TLS config if enabled
	if cfg.TLS != nil && cfg.TLS.Enable {
		if cfg.TLS.CertFile == "" {
			return fmt.Errorf("tls cert file is required when tls is enabled")
		}
		if cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls key file is required when tls is enabled")
		}
		if cfg.TLS.CAFile == "" {
			return fmt.Errorf("tls ca file is required when tls is enabled")
		}
	}

	if cfg.Queue != nil {
		if cfg.Protocol != ProtocolNATS {
			return fmt.Errorf("queue binding is only supported for nats")
		}
		if cfg.Queue.Name == "" || cfg.Queue.Subject == "" {
			return fmt.Errorf("queue binding requires name and subject")
		}
	}

	return nil
}

// RetryDelayDuration returns the parsed retry delay
func (b BrokerConfig) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(b.RetryDelay)
	if err != nil {
		return time.Second
	}
	return d
}

// ConnectTimeoutDuration returns the parsed connect timeout
func (b BrokerConfig) ConnectTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(b.ConnectTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(url, clientID, apiAddr, routesDir string, retryDelay time.Duration) {
	if url != "" {
		c.Broker.URLs = []string{url}
	}
	if clientID != "" {
		c.Broker.ClientID = clientID
	}
	if apiAddr != "" {
		c.API.Address = apiAddr
		c.API.Enabled = true
	}
	if routesDir != "" {
		c.Routes.Directory = routesDir
	}
	if retryDelay > 0 {
		c.Broker.RetryDelay = retryDelay.String()
	}
}
