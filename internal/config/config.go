// Package config holds the daemon configuration: defaults, a YAML or TOML
// file, command-line overrides and a file watcher for live reloads.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/internal/ipc"
	"github.com/rmacdonaldsmith/shellwatch/internal/logging"
)

var (
	// ErrUnsupportedFormat is returned for config files that are neither
	// YAML nor TOML
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	// ErrShowVersion is returned by FromArgs when -version is given
	ErrShowVersion = errors.New("version requested")
	// ErrNoTransport is returned when every transport is disabled
	ErrNoTransport = errors.New("at least one transport must be enabled")
)

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// BrokerConfig configures the broker
type BrokerConfig struct {
	Strict       bool `yaml:"strict" toml:"strict"`
	ClientBuffer int  `yaml:"client_buffer" toml:"client_buffer"`
	QueueSize    int  `yaml:"queue_size" toml:"queue_size"`
}

// IPCConfig configures the Unix socket transport
type IPCConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled"`
	Socket         string `yaml:"socket" toml:"socket"`
	MaxMessageSize uint32 `yaml:"max_message_size" toml:"max_message_size"`
}

// HTTPConfig configures the HTTP transport
type HTTPConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Address   string `yaml:"address" toml:"address"`
	SecretKey string `yaml:"secret_key" toml:"secret_key"`
	AdminKey  string `yaml:"admin_key" toml:"admin_key"`
	Keepalive string `yaml:"keepalive" toml:"keepalive"`
	TokenTTL  string `yaml:"token_ttl" toml:"token_ttl"`
}

// GRPCConfig configures the gRPC watch transport
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Address string `yaml:"address" toml:"address"`
}

// MQTTConfig configures the MQTT bridge
type MQTTConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Broker   string   `yaml:"broker" toml:"broker"`
	ClientID string   `yaml:"client_id" toml:"client_id"`
	Username string   `yaml:"username" toml:"username"`
	Password string   `yaml:"password" toml:"password"`
	Prefix   string   `yaml:"prefix" toml:"prefix"`
	Events   []string `yaml:"events" toml:"events"`
	QoS      int      `yaml:"qos" toml:"qos"`
	Retain   bool     `yaml:"retain" toml:"retain"`
}

// OutputConfig describes an output created at startup
type OutputConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Width  int    `yaml:"width" toml:"width"`
	Height int    `yaml:"height" toml:"height"`
}

// ShellConfig seeds the shell model
type ShellConfig struct {
	Outputs []OutputConfig `yaml:"outputs" toml:"outputs"`
}

// Config is the daemon configuration
type Config struct {
	Log    LogConfig    `yaml:"log" toml:"log"`
	Broker BrokerConfig `yaml:"broker" toml:"broker"`
	IPC    IPCConfig    `yaml:"ipc" toml:"ipc"`
	HTTP   HTTPConfig   `yaml:"http" toml:"http"`
	GRPC   GRPCConfig   `yaml:"grpc" toml:"grpc"`
	MQTT   MQTTConfig   `yaml:"mqtt" toml:"mqtt"`
	Shell  ShellConfig  `yaml:"shell" toml:"shell"`

	// path is the file the config was loaded from, if any
	path string
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: logging.FormatText},
		IPC: IPCConfig{
			Enabled: true,
			Socket:  ipc.DefaultSocketPath(),
		},
		HTTP: HTTPConfig{
			Address:   "127.0.0.1:8080",
			Keepalive: "15s",
			TokenTTL:  "24h",
		},
		GRPC: GRPCConfig{Address: "127.0.0.1:9090"},
		MQTT: MQTTConfig{Prefix: "shellwatch"},
	}
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if c.Broker.ClientBuffer < 0 {
		return fmt.Errorf("client buffer cannot be negative")
	}
	if !c.IPC.Enabled && !c.HTTP.Enabled && !c.GRPC.Enabled && !c.MQTT.Enabled {
		return ErrNoTransport
	}
	if c.IPC.Enabled && c.IPC.Socket == "" {
		return fmt.Errorf("ipc socket path cannot be empty")
	}
	if c.HTTP.Enabled {
		if c.HTTP.Address == "" {
			return fmt.Errorf("http address cannot be empty")
		}
		if _, err := c.HTTPKeepalive(); err != nil {
			return err
		}
		if _, err := c.HTTPTokenTTL(); err != nil {
			return err
		}
	}
	if c.GRPC.Enabled && c.GRPC.Address == "" {
		return fmt.Errorf("grpc address cannot be empty")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker cannot be empty")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("invalid mqtt qos %d", c.MQTT.QoS)
		}
	}
	for i, o := range c.Shell.Outputs {
		if o.Width < 0 || o.Height < 0 {
			return fmt.Errorf("output %d has a negative size", i)
		}
	}
	return nil
}

// HTTPKeepalive parses the SSE keepalive interval
func (c *Config) HTTPKeepalive() (time.Duration, error) {
	return parseDuration("http.keepalive", c.HTTP.Keepalive)
}

// HTTPTokenTTL parses the token lifetime
func (c *Config) HTTPTokenTTL() (time.Duration, error) {
	return parseDuration("http.token_ttl", c.HTTP.TokenTTL)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: negative duration", field)
	}
	return d, nil
}
