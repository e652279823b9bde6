package subscription

import (
	"time"

	"github.com/rmacdonaldsmith/shellwatch/pkg/record"
)

// Subscriber represents a connection that receives event records
type Subscriber interface {
	// ID returns the unique identifier for this connection
	ID() string

	// Send enqueues a record on the connection's outbound buffer.
	// It never blocks; it returns false when the record was dropped.
	Send(rec *record.Record) bool
}

// Entry is a subscriber together with the topics it is subscribed to
type Entry struct {
	// Subscriber receives matching records
	Subscriber Subscriber

	// Topics is the subscribed topic set; empty means every topic
	Topics []string

	// Since is when the entry was last replaced
	Since time.Time
}

// Wildcard reports whether the entry matches every topic
func (e Entry) Wildcard() bool {
	return len(e.Topics) == 0
}

// Table maps subscribers to the topics they want.
type Table interface {
	// Set stores the topic set for a subscriber, replacing any prior entry.
	// It returns the previous topic set and whether an entry existed.
	Set(sub Subscriber, topics []string) (previous []string, existed bool)

	// Remove deletes a subscriber's entry and returns its topic set.
	Remove(id string) (topics []string, ok bool)

	// Get returns the entry for a subscriber.
	Get(id string) (Entry, bool)

	// Match returns every subscriber whose set is empty or contains topic.
	Match(topic string) []Subscriber

	// Entries returns all entries ordered by subscriber ID.
	Entries() []Entry

	// Len returns the number of subscribers.
	Len() int
}
