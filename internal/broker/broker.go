// Package broker implements the event subscription and broadcast broker.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rmacdonaldsmith/shellwatch/internal/scopes"
	"github.com/rmacdonaldsmith/shellwatch/internal/subscriptions"
	"github.com/rmacdonaldsmith/shellwatch/internal/topics"
	brokerpkg "github.com/rmacdonaldsmith/shellwatch/pkg/broker"
	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/scope"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

var (
	// ErrClosed is returned by operations on a closed broker
	ErrClosed = errors.New("broker is closed")
	// ErrNilSubscriber is returned when Watch is called without a subscriber
	ErrNilSubscriber = errors.New("subscriber cannot be nil")
)

// Host is the scope owner the broker tracks
type Host interface {
	scope.Lister

	// AddScopeObserver registers o and returns a func that removes it
	AddScopeObserver(o scope.Observer) func()
}

// TopicSource contributes topics whose hooks publish through the broker
type TopicSource interface {
	Topics() []topics.Topic
	SetPublisher(p brokerpkg.Publisher)
}

// ShellBroker implements brokerpkg.Broker on top of the topic registry,
// the activation counter and the subscription table.
//
// ShellBroker is not safe for concurrent use. Every method runs on the host
// event loop; transports reach it through eventloop.Loop.Call.
type ShellBroker struct {
	config *Config
	logger *slog.Logger

	host     Host
	registry *topics.Registry
	counter  *topics.Counter
	table    *subscriptions.InMemoryTable
	tracker  *scopes.Tracker

	stopObserving func()

	published int64
	delivered int64
	dropped   int64
	perTopic  map[string]*brokerpkg.TopicStats

	closed bool
}

// New creates a broker for host. Topics from every source are registered
// alongside the scope lifecycle topics, and each source publishes through
// the new broker.
func New(config *Config, host Host, sources ...TopicSource) (*ShellBroker, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if host == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := &ShellBroker{
		config:   config,
		logger:   config.Logger,
		host:     host,
		table:    subscriptions.NewInMemoryTable(),
		perTopic: make(map[string]*brokerpkg.TopicStats),
	}

	b.tracker = scopes.NewTracker(scopes.Config{
		AddedTopic:   config.ScopeAddedTopic,
		RemovedTopic: config.ScopeRemovedTopic,
		Logger:       config.Logger,
	}, nil, b)

	all := b.tracker.Topics()
	for _, src := range sources {
		all = append(all, src.Topics()...)
	}
	registry, err := topics.NewRegistry(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to build topic registry: %w", err)
	}
	b.registry = registry
	b.counter = topics.NewCounter(registry, topics.CounterConfig{
		Scopes: host,
		Strict: config.Strict,
		Logger: config.Logger,
	})
	b.tracker.SetReplayer(b.counter)
	for _, name := range registry.Names() {
		b.perTopic[name] = &brokerpkg.TopicStats{}
	}

	for _, src := range sources {
		src.SetPublisher(b)
	}
	b.stopObserving = host.AddScopeObserver(b.tracker)

	b.logger.Info("broker ready", "topics", registry.Len(), "strict", config.Strict)
	return b, nil
}

// Registry returns the topic registry
func (b *ShellBroker) Registry() *topics.Registry {
	return b.registry
}

// Watch subscribes sub to the topics in req. Unknown names are dropped. A
// connection that is already subscribed has its previous set released after
// the new one is acquired, so topics present in both stay attached.
func (b *ShellBroker) Watch(sub subscription.Subscriber, req brokerpkg.WatchRequest) ([]string, error) {
	if b.closed {
		return nil, ErrClosed
	}
	if sub == nil {
		return nil, ErrNilSubscriber
	}

	set := b.resolve(req)
	for _, name := range set {
		if err := b.counter.Increase(name); err != nil {
			b.logger.Error("failed to activate topic", "topic", name, "error", err)
		}
	}

	previous, existed := b.table.Set(sub, set)
	if existed {
		b.release(previous)
	}

	b.logger.Debug("client subscribed", "client", sub.ID(), "topics", set, "resubscribe", existed)
	return set, nil
}

// resolve turns a request into a sorted, deduplicated set of known topics
func (b *ShellBroker) resolve(req brokerpkg.WatchRequest) []string {
	if req.All {
		return b.registry.Names()
	}
	set := make([]string, 0, len(req.Events))
	for _, name := range req.Events {
		if b.registry.Contains(name) {
			set = append(set, name)
		}
	}
	slices.Sort(set)
	return slices.Compact(set)
}

func (b *ShellBroker) release(names []string) {
	for _, name := range names {
		if err := b.counter.Decrease(name); err != nil {
			b.logger.Error("failed to release topic", "topic", name, "error", err)
		}
	}
}

// Disconnect releases every topic held by the connection. Unknown ids are
// ignored.
func (b *ShellBroker) Disconnect(id string) bool {
	previous, ok := b.table.Remove(id)
	if !ok {
		return false
	}
	b.release(previous)
	b.logger.Debug("client disconnected", "client", id, "topics", len(previous))
	return true
}

// Publish delivers rec to every subscriber whose set is empty or contains
// its event name. It returns the number of subscribers that accepted it.
func (b *ShellBroker) Publish(rec *record.Record) int {
	if rec == nil || b.closed {
		return 0
	}
	event := rec.Event()
	stats := b.perTopic[event]
	if stats == nil {
		// unregistered events only show up in the totals
		stats = &brokerpkg.TopicStats{}
	}
	stats.Published++
	b.published++

	delivered := 0
	for _, sub := range b.table.Match(event) {
		if sub.Send(rec) {
			delivered++
			continue
		}
		stats.Dropped++
		b.dropped++
		b.logger.Warn("dropped record for slow client", "client", sub.ID(), "event", event)
	}
	stats.Delivered += int64(delivered)
	b.delivered += int64(delivered)
	return delivered
}

// Topics returns every registered topic with its activation count
func (b *ShellBroker) Topics() []brokerpkg.TopicState {
	return b.counter.States()
}

// Clients returns every subscribed connection
func (b *ShellBroker) Clients() []brokerpkg.ClientInfo {
	entries := b.table.Entries()
	clients := make([]brokerpkg.ClientInfo, 0, len(entries))
	for _, e := range entries {
		names := e.Topics
		if names == nil {
			names = []string{}
		}
		clients = append(clients, brokerpkg.ClientInfo{
			ID:       e.Subscriber.ID(),
			Topics:   names,
			Wildcard: e.Wildcard(),
			Since:    e.Since,
		})
	}
	return clients
}

// Stats returns dispatch statistics
func (b *ShellBroker) Stats() brokerpkg.Stats {
	perTopic := make(map[string]brokerpkg.TopicStats, len(b.perTopic))
	for name, s := range b.perTopic {
		perTopic[name] = *s
	}
	return brokerpkg.Stats{
		Clients:      b.table.Len(),
		TotalTopics:  b.registry.Len(),
		ActiveTopics: len(b.counter.Active()),
		Published:    b.published,
		Delivered:    b.delivered,
		Dropped:      b.dropped,
		PerTopic:     perTopic,
	}
}

// Health reports whether the broker is accepting subscriptions
func (b *ShellBroker) Health() brokerpkg.HealthStatus {
	status := brokerpkg.HealthStatus{
		Healthy:      !b.closed,
		Clients:      b.table.Len(),
		ActiveTopics: len(b.counter.Active()),
		Scopes:       len(b.host.Scopes()),
		Message:      "ok",
	}
	if b.closed {
		status.Message = "broker is closed"
	}
	return status
}

// Close disconnects every remaining subscriber, detaching all hooks, and
// stops tracking scopes. Close is idempotent.
func (b *ShellBroker) Close() error {
	if b.closed {
		return nil
	}
	for _, e := range b.table.Entries() {
		b.Disconnect(e.Subscriber.ID())
	}
	if b.stopObserving != nil {
		b.stopObserving()
	}
	b.closed = true
	b.logger.Info("broker closed")
	return nil
}

// Verify that ShellBroker implements the Broker interface at compile time
var _ brokerpkg.Broker = (*ShellBroker)(nil)
