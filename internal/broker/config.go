package broker

import (
	"errors"
	"log/slog"

	"github.com/rmacdonaldsmith/shellwatch/internal/scopes"
)

var (
	// ErrInvalidClientBuffer is returned when the outbound buffer size is not positive
	ErrInvalidClientBuffer = errors.New("client buffer size must be positive")
	// ErrLifecycleTopicClash is returned when added and removed topics share a name
	ErrLifecycleTopicClash = errors.New("scope added and removed topics must differ")
)

// DefaultClientBuffer is the outbound buffer size of a connection
const DefaultClientBuffer = 256

// Config represents configuration for a Broker
type Config struct {
	// Strict panics on activation count underflow instead of logging it.
	// Meant for development builds.
	Strict bool

	// ClientBuffer is the outbound record buffer of each connection
	ClientBuffer int

	// ScopeAddedTopic and ScopeRemovedTopic name the lifecycle events
	// published when an output appears or goes away
	ScopeAddedTopic   string
	ScopeRemovedTopic string

	Logger *slog.Logger
}

// NewConfig creates a broker configuration with safe defaults
func NewConfig() *Config {
	c := &Config{}
	c.SetDefaults()
	return c
}

// SetDefaults fills in unset fields
func (c *Config) SetDefaults() {
	if c.ClientBuffer == 0 {
		c.ClientBuffer = DefaultClientBuffer
	}
	if c.ScopeAddedTopic == "" {
		c.ScopeAddedTopic = scopes.DefaultAddedTopic
	}
	if c.ScopeRemovedTopic == "" {
		c.ScopeRemovedTopic = scopes.DefaultRemovedTopic
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.ClientBuffer <= 0 {
		return ErrInvalidClientBuffer
	}
	if c.ScopeAddedTopic == c.ScopeRemovedTopic {
		return ErrLifecycleTopicClash
	}
	return nil
}
