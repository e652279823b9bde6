package topics

import (
	"fmt"
	"log/slog"

	"github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
)

// Counter keeps one reference count per registered topic. Hooks of a topic
// are attached on its 0 -> 1 transition and detached on 1 -> 0.
//
// Counter is not safe for concurrent use; it lives on the host event loop.
type Counter struct {
	registry *Registry
	scopes   scope.Lister
	strict   bool
	logger   *slog.Logger
	counts   map[string]int
}

// CounterConfig configures a Counter
type CounterConfig struct {
	// Scopes enumerates the live scopes activated topics hook into
	Scopes scope.Lister

	// Strict makes a count underflow panic instead of being ignored
	Strict bool

	Logger *slog.Logger
}

// NewCounter creates a counter with every topic of r at zero
func NewCounter(r *Registry, config CounterConfig) *Counter {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Counter{
		registry: r,
		scopes:   config.Scopes,
		strict:   config.Strict,
		logger:   logger,
		counts:   make(map[string]int, r.Len()),
	}
}

// Increase takes a reference on a topic, attaching its hooks to the core
// and to every live scope when the count leaves zero.
func (c *Counter) Increase(name string) error {
	t, ok := c.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}

	c.counts[name]++
	if c.counts[name] > 1 {
		return nil
	}

	c.logger.Debug("activating topic", "topic", name)
	t.activateCore()
	if c.scopes != nil {
		for _, s := range c.scopes.Scopes() {
			t.activateScope(s)
		}
	}
	return nil
}

// Decrease drops a reference on a topic, detaching its hooks when the count
// reaches zero. Dropping a reference that was never taken returns
// ErrCountUnderflow, or panics in strict mode.
func (c *Counter) Decrease(name string) error {
	t, ok := c.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, name)
	}

	if c.counts[name] == 0 {
		err := fmt.Errorf("%w: %s", ErrCountUnderflow, name)
		if c.strict {
			panic(err)
		}
		c.logger.Error("ignoring topic release without a matching acquire", "topic", name)
		return err
	}

	c.counts[name]--
	if c.counts[name] > 0 {
		return nil
	}

	delete(c.counts, name)
	c.logger.Debug("deactivating topic", "topic", name)
	t.deactivate()
	return nil
}

// ReplayScope hooks every active topic into a newly created scope
func (c *Counter) ReplayScope(s scope.Scope) {
	for _, name := range c.registry.names {
		if c.counts[name] > 0 {
			t, _ := c.registry.Lookup(name)
			t.activateScope(s)
		}
	}
}

// Count returns the activation count of a topic
func (c *Counter) Count(name string) int {
	return c.counts[name]
}

// Active returns the names of topics with a positive count, sorted
func (c *Counter) Active() []string {
	var active []string
	for _, name := range c.registry.names {
		if c.counts[name] > 0 {
			active = append(active, name)
		}
	}
	return active
}

// States returns every registered topic with its count, sorted by name
func (c *Counter) States() []broker.TopicState {
	states := make([]broker.TopicState, 0, c.registry.Len())
	for _, name := range c.registry.names {
		n := c.counts[name]
		states = append(states, broker.TopicState{Name: name, Subscribers: n, Active: n > 0})
	}
	return states
}
