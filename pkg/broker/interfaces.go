package broker

import (
	"io"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

// Publisher delivers records to matching subscribers
type Publisher interface {
	// Publish routes rec by its event name and returns how many
	// subscribers accepted it.
	Publish(rec *record.Record) int
}

// PublisherFunc adapts a function to the Publisher interface
type PublisherFunc func(rec *record.Record) int

// Publish calls f(rec)
func (f PublisherFunc) Publish(rec *record.Record) int {
	return f(rec)
}

// Broker is the event subscription and broadcast broker.
type Broker interface {
	io.Closer
	Publisher

	// Watch subscribes sub to the topics in req, replacing any previous
	// subscription of the same connection. It returns the resulting topic set.
	Watch(sub subscription.Subscriber, req WatchRequest) ([]string, error)

	// Disconnect releases every topic held by the connection and forgets it.
	// It reports whether the connection was subscribed.
	Disconnect(id string) bool

	// Topics returns every known topic with its activation count.
	Topics() []TopicState

	// Clients returns every subscribed connection.
	Clients() []ClientInfo

	// Stats returns dispatch statistics.
	Stats() Stats

	// Health returns the overall health of the broker.
	Health() HealthStatus
}

// TopicState describes one topic and its activation count
type TopicState struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	Active      bool   `json:"active"`
}

// ClientInfo describes a subscribed connection
type ClientInfo struct {
	ID       string    `json:"id"`
	Topics   []string  `json:"topics"`
	Wildcard bool      `json:"wildcard"`
	Since    time.Time `json:"since"`
}

// TopicStats holds dispatch counters for one topic
type TopicStats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Stats provides aggregate dispatch statistics
type Stats struct {
	Clients      int                   `json:"clients"`
	TotalTopics  int                   `json:"totalTopics"`
	ActiveTopics int                   `json:"activeTopics"`
	Published    int64                 `json:"published"`
	Delivered    int64                 `json:"delivered"`
	Dropped      int64                 `json:"dropped"`
	PerTopic     map[string]TopicStats `json:"perTopic"`
}

// HealthStatus represents the overall health of the broker
type HealthStatus struct {
	// Healthy indicates the broker accepts subscriptions
	Healthy bool

	// Clients is the number of subscribed connections
	Clients int

	// ActiveTopics is the number of topics with hooks attached
	ActiveTopics int

	// Scopes is the number of live scopes
	Scopes int

	// Message provides additional health information
	Message string
}
