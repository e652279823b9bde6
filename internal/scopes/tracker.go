// Package scopes keeps topic activation in step with scopes that appear and
// disappear at runtime, and announces those lifecycle changes to subscribers.
package scopes

import (
	"log/slog"

	"github.com/rmacdonaldsmith/shellwatch/internal/topics"
	"github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

const (
	DefaultAddedTopic   = "output-added"
	DefaultRemovedTopic = "output-removed"
	DefaultField        = "output"
)

// Replayer hooks active topics into a scope
type Replayer interface {
	ReplayScope(s scope.Scope)
}

// Config configures a Tracker
type Config struct {
	// AddedTopic is the event published when a scope appears
	AddedTopic string

	// RemovedTopic is the event published when a scope goes away
	RemovedTopic string

	// Field is the record key holding the scope description
	Field string

	Logger *slog.Logger
}

// SetDefaults fills in the output lifecycle names
func (c *Config) SetDefaults() {
	if c.AddedTopic == "" {
		c.AddedTopic = DefaultAddedTopic
	}
	if c.RemovedTopic == "" {
		c.RemovedTopic = DefaultRemovedTopic
	}
	if c.Field == "" {
		c.Field = DefaultField
	}
}

// Tracker observes scope lifecycle. New scopes get every active topic
// replayed into them; per-scope hooks are not tracked here because the
// scope's own teardown detaches them.
type Tracker struct {
	config    Config
	replayer  Replayer
	publisher broker.Publisher
	logger    *slog.Logger
}

// NewTracker creates a tracker. The replayer and publisher may be nil and
// set later, since the counter is built from the tracker's own topics.
func NewTracker(config Config, replayer Replayer, publisher broker.Publisher) *Tracker {
	config.SetDefaults()
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{
		config:    config,
		replayer:  replayer,
		publisher: publisher,
		logger:    logger,
	}
}

// SetReplayer sets what hooks active topics into new scopes
func (t *Tracker) SetReplayer(r Replayer) {
	t.replayer = r
}

// SetPublisher sets where lifecycle records are published
func (t *Tracker) SetPublisher(p broker.Publisher) {
	t.publisher = p
}

// Topics returns the lifecycle topics. They have no hooks and are
// registered so subscribers can filter on them.
func (t *Tracker) Topics() []topics.Topic {
	return []topics.Topic{
		{Name: t.config.AddedTopic},
		{Name: t.config.RemovedTopic},
	}
}

// ScopeCreated replays active topics into s, then announces it
func (t *Tracker) ScopeCreated(s scope.Scope) {
	t.logger.Debug("scope created", "scope", s.ScopeID())
	if t.replayer != nil {
		t.replayer.ReplayScope(s)
	}
	t.publish(t.config.AddedTopic, s)
}

// ScopeDestroyed announces that s is going away
func (t *Tracker) ScopeDestroyed(s scope.Scope) {
	t.logger.Debug("scope destroyed", "scope", s.ScopeID())
	t.publish(t.config.RemovedTopic, s)
}

func (t *Tracker) publish(event string, s scope.Scope) {
	if t.publisher == nil {
		return
	}
	t.publisher.Publish(record.New(event).With(t.config.Field, s.Describe()))
}

// Verify that Tracker implements scope.Observer at compile time
var _ scope.Observer = (*Tracker)(nil)
