package mqttcore

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative configuration consumed by broker binaries.
// Everything here maps onto a ServerOption or a listener; the protocol
// engine itself is configured in code.
type Config struct {
	Listen ListenConfig `yaml:"listen"`

	// MaxPacketSize bounds inbound packets in bytes. Zero means the
	// protocol ceiling (256 MiB).
	MaxPacketSize uint32 `yaml:"max_packet_size"`

	// MaxConnections caps concurrent clients. Zero means unlimited.
	MaxConnections int `yaml:"max_connections"`

	// MaxQoS caps the QoS granted on SUBACK (0, 1, or 2).
	MaxQoS byte `yaml:"max_qos"`

	// SessionExpiry is the retention for v3.1.1 non-clean sessions,
	// e.g. "1h30m"; v5 sessions use their CONNECT's expiry interval.
	SessionExpiry time.Duration `yaml:"session_expiry"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	Log LogConfig `yaml:"log"`
}

// ListenConfig selects the listening sockets. TCP and WS may both be set;
// each empty address disables that listener.
type ListenConfig struct {
	TCP string `yaml:"tcp"`
	WS  string `yaml:"ws"`

	// TLS applies to the TCP listener when both files are set.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration a broker runs with when no file
// is supplied.
func DefaultConfig() *Config {
	return &Config{
		Listen:         ListenConfig{TCP: ":1883"},
		MaxQoS:         2,
		SessionExpiry:  time.Hour,
		ConnectTimeout: 10 * time.Second,
		Log:            LogConfig{Level: "info"},
	}
}

// LoadConfig reads a YAML config file, layering it over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes, layering them over DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("mqttcore: parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects configurations the server would misbehave under.
func (c *Config) Validate() error {
	if c.Listen.TCP == "" && c.Listen.WS == "" {
		return fmt.Errorf("mqttcore: config: no listener configured")
	}
	if c.MaxQoS > 2 {
		return fmt.Errorf("mqttcore: config: max_qos must be 0, 1 or 2, got %d", c.MaxQoS)
	}
	if (c.Listen.TLSCert == "") != (c.Listen.TLSKey == "") {
		return fmt.Errorf("mqttcore: config: tls_cert and tls_key must be set together")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error", "none":
	default:
		return fmt.Errorf("mqttcore: config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// LogLevelValue maps the config string to a LogLevel.
func (c *Config) LogLevelValue() LogLevel {
	switch c.Log.Level {
	case "debug":
		return LogLevelDebug
	case "warn":
		return LogLevelWarn
	case "error":
		return LogLevelError
	case "none":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}

// ServerOptions expands the config into the options NewServer takes.
func (c *Config) ServerOptions(logger Logger) []ServerOption {
	opts := []ServerOption{
		WithServerLogger(logger),
		WithMaxQoS(c.MaxQoS),
		WithSessionExpiry(c.SessionExpiry),
	}
	if c.MaxPacketSize > 0 {
		opts = append(opts, WithServerMaxPacketSize(c.MaxPacketSize))
	}
	if c.MaxConnections > 0 {
		opts = append(opts, WithMaxConnections(c.MaxConnections))
	}
	if c.ConnectTimeout > 0 {
		opts = append(opts, WithServerConnectTimeout(c.ConnectTimeout))
	}
	return opts
}
