// Package subscriptions provides the in-memory subscription table.
package subscriptions

import (
	"slices"
	"sort"
	"time"

	"github.com/rmacdonaldsmith/shellwatch/pkg/subscription"
)

// InMemoryTable implements subscription.Table with a per-topic index.
// It is not safe for concurrent use; it lives on the host event loop.
type InMemoryTable struct {
	entries  map[string]*subscription.Entry
	byTopic  map[string]map[string]subscription.Subscriber
	wildcard map[string]subscription.Subscriber
	now      func() time.Time
}

// NewInMemoryTable creates an empty table
func NewInMemoryTable() *InMemoryTable {
	return &InMemoryTable{
		entries:  make(map[string]*subscription.Entry),
		byTopic:  make(map[string]map[string]subscription.Subscriber),
		wildcard: make(map[string]subscription.Subscriber),
		now:      time.Now,
	}
}

// Set stores the topic set for sub, replacing any prior entry. Duplicate
// topics are collapsed; an empty set subscribes to everything.
func (t *InMemoryTable) Set(sub subscription.Subscriber, topics []string) ([]string, bool) {
	id := sub.ID()
	previous, existed := t.Remove(id)

	set := normalize(topics)
	t.entries[id] = &subscription.Entry{Subscriber: sub, Topics: set, Since: t.now()}
	if len(set) == 0 {
		t.wildcard[id] = sub
	}
	for _, topic := range set {
		subs, ok := t.byTopic[topic]
		if !ok {
			subs = make(map[string]subscription.Subscriber)
			t.byTopic[topic] = subs
		}
		subs[id] = sub
	}
	return previous, existed
}

// Remove deletes the entry for id and returns its topic set
func (t *InMemoryTable) Remove(id string) ([]string, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	delete(t.wildcard, id)
	for _, topic := range entry.Topics {
		subs := t.byTopic[topic]
		delete(subs, id)
		if len(subs) == 0 {
			delete(t.byTopic, topic)
		}
	}
	return entry.Topics, true
}

// Get returns a copy of the entry for id
func (t *InMemoryTable) Get(id string) (subscription.Entry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return subscription.Entry{}, false
	}
	return copyEntry(entry), true
}

// Match returns the subscribers with an empty set or a set containing
// topic, ordered by ID.
func (t *InMemoryTable) Match(topic string) []subscription.Subscriber {
	subs := t.byTopic[topic]
	if len(subs) == 0 && len(t.wildcard) == 0 {
		return nil
	}
	matched := make([]subscription.Subscriber, 0, len(subs)+len(t.wildcard))
	for _, sub := range subs {
		matched = append(matched, sub)
	}
	for _, sub := range t.wildcard {
		matched = append(matched, sub)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID() < matched[j].ID() })
	return matched
}

// Entries returns every entry ordered by subscriber ID
func (t *InMemoryTable) Entries() []subscription.Entry {
	entries := make([]subscription.Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		entries = append(entries, copyEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Subscriber.ID() < entries[j].Subscriber.ID()
	})
	return entries
}

// Len returns the number of subscribers
func (t *InMemoryTable) Len() int {
	return len(t.entries)
}

// TopicCount returns the number of distinct topics named by explicit sets
func (t *InMemoryTable) TopicCount() int {
	return len(t.byTopic)
}

func normalize(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}
	set := slices.Clone(topics)
	sort.Strings(set)
	return slices.Compact(set)
}

func copyEntry(e *subscription.Entry) subscription.Entry {
	return subscription.Entry{
		Subscriber: e.Subscriber,
		Topics:     slices.Clone(e.Topics),
		Since:      e.Since,
	}
}

// Verify that InMemoryTable implements subscription.Table at compile time
var _ subscription.Table = (*InMemoryTable)(nil)
