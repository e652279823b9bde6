package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML or TOML file over the defaults. The format is chosen
// by extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	c := Default()
	if err := Parse(filepath.Ext(path), data, c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.path = path
	return c, nil
}

// Parse decodes data in the format named by ext into c
func Parse(ext string, data []byte, c *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	case ".toml":
		return toml.Unmarshal(data, c)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// flagSetters maps flag names to the field they override
var flagSetters = map[string]func(c *Config, v string) error{
	"log-level":   func(c *Config, v string) error { c.Log.Level = v; return nil },
	"log-format":  func(c *Config, v string) error { c.Log.Format = v; return nil },
	"strict":      boolSetter(func(c *Config, b bool) { c.Broker.Strict = b }),
	"socket":      func(c *Config, v string) error { c.IPC.Socket = v; return nil },
	"no-ipc":      boolSetter(func(c *Config, b bool) { c.IPC.Enabled = !b }),
	"http":        func(c *Config, v string) error { c.HTTP.Address = v; c.HTTP.Enabled = v != ""; return nil },
	"admin-key":   func(c *Config, v string) error { c.HTTP.AdminKey = v; return nil },
	"grpc":        func(c *Config, v string) error { c.GRPC.Address = v; c.GRPC.Enabled = v != ""; return nil },
	"mqtt":        func(c *Config, v string) error { c.MQTT.Broker = v; c.MQTT.Enabled = v != ""; return nil },
	"mqtt-prefix": func(c *Config, v string) error { c.MQTT.Prefix = v; return nil },
}

func boolSetter(set func(c *Config, b bool)) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

// FromArgs parses command-line arguments into a configuration: defaults,
// then the file named by -config, then every flag given explicitly.
func FromArgs(name string, args []string) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "Path to a YAML or TOML config file")
	version := fs.Bool("version", false, "Show version and exit")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "text", "Log format (text, json)")
	fs.Bool("strict", false, "Panic on activation count underflow")
	fs.String("socket", "", "Unix socket path for IPC clients")
	fs.Bool("no-ipc", false, "Disable the Unix socket transport")
	fs.String("http", "", "Listen address for the HTTP API (empty disables)")
	fs.String("admin-key", "", "Key exchanged for admin tokens")
	fs.String("grpc", "", "Listen address for the gRPC watch service (empty disables)")
	fs.String("mqtt", "", "MQTT broker URL to bridge records to (empty disables)")
	fs.String("mqtt-prefix", "shellwatch", "MQTT topic prefix")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *version {
		return nil, ErrShowVersion
	}

	c := Default()
	if *path != "" {
		loaded, err := Load(*path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	var applyErr error
	fs.Visit(func(f *flag.Flag) {
		set, ok := flagSetters[f.Name]
		if !ok || applyErr != nil {
			return
		}
		if err := set(c, f.Value.String()); err != nil {
			applyErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if applyErr != nil {
		return nil, applyErr
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}
