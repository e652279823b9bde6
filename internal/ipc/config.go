package ipc

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

var (
	// ErrEmptySocketPath is returned when no socket path is configured
	ErrEmptySocketPath = errors.New("socket path cannot be empty")
	// ErrInvalidBuffer is returned when the client buffer is not positive
	ErrInvalidBuffer = errors.New("client buffer must be positive")
)

// Config represents configuration for the Unix socket server
type Config struct {
	// SocketPath is where the server listens
	SocketPath string

	// ClientBuffer is the outbound record buffer per connection
	ClientBuffer int

	// MaxMessageSize bounds incoming request frames
	MaxMessageSize uint32

	Logger *slog.Logger
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/shellwatch.sock, falling back
// to the temp directory
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "shellwatch.sock")
}

// SetDefaults fills in unset fields
func (c *Config) SetDefaults() {
	if c.SocketPath == "" {
		c.SocketPath = DefaultSocketPath()
	}
	if c.ClientBuffer == 0 {
		c.ClientBuffer = 256
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return ErrEmptySocketPath
	}
	if c.ClientBuffer <= 0 {
		return ErrInvalidBuffer
	}
	return nil
}
